package e2e

import (
	"net/http"
	"testing"

	"github.com/omriShneor/calbot/internal/chat"
	"github.com/omriShneor/calbot/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginLogout(t *testing.T) {
	ts := testutil.NewTestServer(t)

	t.Run("login url", func(t *testing.T) {
		resp := ts.Get("/auth/login")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]string
		testutil.DecodeJSON(t, resp, &body)
		assert.Contains(t, body["authUrl"], "client_id=e2e-client")
		assert.Contains(t, body["authUrl"], "access_type=offline")
	})

	t.Run("failed callback greets the session", func(t *testing.T) {
		resp := ts.Get("/chat/session")
		resp.Body.Close()

		resp = ts.Get("/auth/callback?code=unknown")
		resp.Body.Close()
		assert.Equal(t, "/?error=auth_failed", resp.Header.Get("Location"))

		var view chat.View
		testutil.DecodeJSON(t, ts.Get("/chat/session"), &view)
		assert.Equal(t, "❌ Authentication failed: auth_failed. Please try logging in again.", lastText(view))
	})

	t.Run("login then list works", func(t *testing.T) {
		ts.Login()

		resp := ts.Get("/events/list")
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("logout drops credential and transcript", func(t *testing.T) {
		resp := ts.PostJSON("/auth/logout", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var view chat.View
		testutil.DecodeJSON(t, resp, &view)
		require.Len(t, view.Messages, 1)
		assert.Equal(t, "You have been logged out successfully.", view.Messages[0].Text)

		resp = ts.Get("/events/list")
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
