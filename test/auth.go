//go:build integration_test || all_tests

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/2beens/fitassess/internal/auth"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/require"
)

const testPassword = "testpass123"

func newRegisterRequest() auth.RegisterRequest {
	return auth.RegisterRequest{
		Name:            gofakeit.Name(),
		Username:        gofakeit.Username() + gofakeit.DigitN(4),
		Email:           gofakeit.Email(),
		Password:        testPassword,
		ConfirmPassword: testPassword,
		Age:             gofakeit.Number(16, 40),
		Gender:          gofakeit.RandomString([]string{"male", "female"}),
		HeightCm:        float64(gofakeit.Number(150, 200)),
		WeightKg:        float64(gofakeit.Number(45, 110)),
		Sport:           gofakeit.RandomString([]string{"athletics", "football", "kabaddi"}),
		NationalID:      gofakeit.DigitN(12),
	}
}

func postJSON(ctx context.Context, t *testing.T, path, token string, body any) *http.Response {
	t.Helper()

	reqJSON, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverEndpoint+path, bytes.NewBuffer(reqJSON))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(auth.TokenHeader, "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func doGet(ctx context.Context, t *testing.T, path, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverEndpoint+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set(auth.TokenHeader, "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(respBytes, v), string(respBytes))
}

// doRegister registers a fresh athlete and returns its session.
func doRegister(ctx context.Context, t *testing.T) (auth.RegisterRequest, auth.SessionResponse) {
	t.Helper()

	registerReq := newRegisterRequest()
	resp := postJSON(ctx, t, "/a/register", "", registerReq)
	require.Equal(t, http.StatusCreated, resp.StatusCode, fmt.Sprintf("register %s", registerReq.Username))

	var session auth.SessionResponse
	decodeBody(t, resp, &session)
	require.NotEmpty(t, session.Token)

	return registerReq, session
}
