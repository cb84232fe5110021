package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"together-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsEvent struct {
	Type    string         `json:"type"`
	Online  *bool          `json:"online"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func dialWS(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn) wsEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev wsEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	env := newAPIEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	_, resp, err := dialWS(t, srv, "garbage")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketPresenceAndPushes(t *testing.T) {
	env := newAPIEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	alice, _, err := dialWS(t, srv, env.token(t, "alice"))
	require.NoError(t, err)
	defer alice.Close()

	status := readEvent(t, alice)
	assert.Equal(t, services.EventPairStatus, status.Type)
	assert.Equal(t, true, status.Data["has_pair"])
	assert.Equal(t, false, status.Data["partner_online"])

	bob, _, err := dialWS(t, srv, env.token(t, "bob"))
	require.NoError(t, err)

	bobStatus := readEvent(t, bob)
	assert.Equal(t, services.EventPairStatus, bobStatus.Type)
	assert.Equal(t, true, bobStatus.Data["partner_online"])

	online := readEvent(t, alice)
	assert.Equal(t, services.EventPartnerStatus, online.Type)
	require.NotNil(t, online.Online)
	assert.True(t, *online.Online)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, services.EventPong, readEvent(t, alice).Type)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "dance"}))
	unknown := readEvent(t, alice)
	assert.Equal(t, services.EventError, unknown.Type)
	assert.Equal(t, "Unknown message type", unknown.Message)

	rec := env.do(t, http.MethodPost, "/api/messages/send", "bob", map[string]string{"content": "on my way"})
	require.Equal(t, http.StatusCreated, rec.Code)
	received := readEvent(t, alice)
	assert.Equal(t, services.EventMessageReceived, received.Type)
	assert.Equal(t, "on my way", received.Data["content"])

	require.NoError(t, bob.Close())
	offline := readEvent(t, alice)
	assert.Equal(t, services.EventPartnerStatus, offline.Type)
	require.NotNil(t, offline.Online)
	assert.False(t, *offline.Online)
}
