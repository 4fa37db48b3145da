//go:build integration_test || all_tests

package test

import (
	"context"
	"net/http"

	"github.com/2beens/fitassess/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) TestRegisterLoginLogout() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registerReq, registered := doRegister(ctx, t)
	assert.Equal(t, registerReq.Username, registered.User.Username)
	assert.NotZero(t, registered.User.ID)

	// same username again
	resp := postJSON(ctx, t, "/a/register", "", registerReq)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(ctx, t, "/a/login", "", auth.Credentials{
		Username: registerReq.Username,
		Password: "wrong-password",
	})
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(ctx, t, "/a/login", "", auth.Credentials{
		Username: registerReq.Username,
		Password: testPassword,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loggedIn auth.SessionResponse
	decodeBody(t, resp, &loggedIn)
	require.NotEmpty(t, loggedIn.Token)

	resp = doGet(ctx, t, "/a/me", loggedIn.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me auth.User
	decodeBody(t, resp, &me)
	assert.Equal(t, registered.User.ID, me.ID)
	assert.Equal(t, registerReq.NationalID, me.NationalID)

	resp = doGet(ctx, t, "/a/logout", loggedIn.Token)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doGet(ctx, t, "/a/me", loggedIn.Token)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func (s *IntegrationTestSuite) TestRegisterValidation() {
	t := s.T()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registerReq := newRegisterRequest()
	registerReq.NationalID = "123"
	registerReq.ConfirmPassword = "other"

	resp := postJSON(ctx, t, "/a/register", "", registerReq)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var fields map[string]string
	decodeBody(t, resp, &fields)
	assert.Contains(t, fields, "nationalId")
	assert.Contains(t, fields, "confirmPassword")
}
