//go:build integration_test || all_tests

package test

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/2beens/fitassess/internal/auth"
	"github.com/2beens/fitassess/internal/flow"
	"github.com/2beens/fitassess/internal/results"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verticalJumpPayload = `{
	"success": true,
	"cheat_detected": false,
	"final_counter": 3,
	"total_frames": 60,
	"frame_results": [
		{"frame_index": 0, "correct_form": true, "joint_angle": 120, "landmarks_detected": true},
		{"frame_index": 30, "correct_form": true, "joint_angle": 140, "landmarks_detected": true}
	]
}`

func (s *IntegrationTestSuite) uploadVideo(ctx context.Context, flowID, token string) *http.Response {
	t := s.T()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "jump.mp4")
	require.NoError(t, err)
	_, err = part.Write([]byte(strings.Repeat("v", 2048)))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverEndpoint+"/flows/"+flowID+"/upload", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(auth.TokenHeader, "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (s *IntegrationTestSuite) TestFlow_UploadSubmitResults() {
	t := s.T()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.analysisResponder.Store(verticalJumpPayload)
	callsBefore := s.analysisCalls.Load()

	_, session := doRegister(ctx, t)

	resp := postJSON(ctx, t, "/flows", session.Token, map[string]string{"testId": "vertical-jump"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var status flow.Status
	decodeBody(t, resp, &status)
	require.NotEmpty(t, status.ID)
	assert.Equal(t, flow.StepInstructions, status.Step)

	// someone else's flow is not visible
	_, other := doRegister(ctx, t)
	resp = doGet(ctx, t, "/flows/"+status.ID, other.Token)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = s.uploadVideo(ctx, status.ID, session.Token)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	// auto submit policy sends the upload right away
	require.Eventually(t, func() bool {
		resp := doGet(ctx, t, "/flows/"+status.ID, session.Token)
		var current flow.Status
		decodeBody(t, resp, &current)
		return current.HasResults
	}, 10*time.Second, 100*time.Millisecond)
	assert.Equal(t, callsBefore+1, s.analysisCalls.Load())

	resp = doGet(ctx, t, "/flows/"+status.ID+"/results", session.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary results.Summary
	decodeBody(t, resp, &summary)
	assert.Equal(t, 100, summary.OverallScore)
	assert.Equal(t, 3, summary.RepetitionCount)
	assert.Equal(t, "Excellent", summary.FormQuality)

	require.Eventually(t, func() bool {
		return s.countResults(ctx, session.User.ID) == 1
	}, 5*time.Second, 100*time.Millisecond)

	resp = doGet(ctx, t, "/progress", session.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var progress results.ProgressResponse
	decodeBody(t, resp, &progress)
	assert.Equal(t, 1, progress.Stats.TotalTests)
	assert.Equal(t, 100, progress.Stats.BestScore)
	require.Len(t, progress.Results, 1)
	assert.Equal(t, "vertical-jump", progress.Results[0].TestID)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, serverEndpoint+"/flows/"+status.ID, nil)
	require.NoError(t, err)
	req.Header.Set(auth.TokenHeader, "Bearer "+session.Token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func (s *IntegrationTestSuite) TestFlow_FaceVerificationRequired() {
	t := s.T()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, session := doRegister(ctx, t)

	resp := postJSON(ctx, t, "/flows", session.Token, map[string]string{"testId": "sit-ups"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var status flow.Status
	decodeBody(t, resp, &status)

	resp = s.uploadVideo(ctx, status.ID, session.Token)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Zero(t, s.countResults(ctx, session.User.ID))
}
