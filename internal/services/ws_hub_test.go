package services_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"together-backend/internal/services"
	"together-backend/internal/testfixtures"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hubEnv struct {
	hub         *services.WSHub
	srv         *httptest.Server
	serverConns chan *websocket.Conn
}

func newHubEnv(t *testing.T) *hubEnv {
	db := testfixtures.NewDB()
	db.AddUser("alice", "Alice", "alice@example.com")
	db.AddUser("bob", "Bob", "bob@example.com")
	db.Link("alice", "bob")

	env := &hubEnv{
		hub:         services.NewWSHub(db.Users()),
		serverConns: make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{}
	env.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		env.hub.Register(r.URL.Query().Get("user"), conn)
		env.serverConns <- conn
	}))
	t.Cleanup(env.srv.Close)
	t.Cleanup(env.hub.Close)
	return env
}

// connect dials the hub as userID and returns the client and server ends
func (e *hubEnv) connect(t *testing.T, userID string) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/?user=" + userID
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-e.serverConns:
		return client, conn
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not registered")
		return nil, nil
	}
}

func TestSendToUserDeliversToConnectedClient(t *testing.T) {
	env := newHubEnv(t)
	aliceClient, _ := env.connect(t, "alice")

	require.NoError(t, env.hub.SendToUser("alice", services.WSMessage{Type: services.EventPong}))

	require.NoError(t, aliceClient.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg services.WSMessage
	require.NoError(t, aliceClient.ReadJSON(&msg))
	assert.Equal(t, services.EventPong, msg.Type)
	assert.NotZero(t, msg.Timestamp)

	assert.Error(t, env.hub.SendToUser("carol", services.WSMessage{Type: services.EventPong}))
}

func TestFailedWriteDropsClientAndTellsPartner(t *testing.T) {
	env := newHubEnv(t)
	_, aliceServer := env.connect(t, "alice")
	bobClient, _ := env.connect(t, "bob")
	require.Equal(t, 2, env.hub.OnlineCount())

	require.NoError(t, aliceServer.Close())
	err := env.hub.SendToUser("alice", services.WSMessage{Type: services.EventMessageReceived})
	require.Error(t, err)
	assert.False(t, env.hub.IsOnline("alice"))
	assert.False(t, env.hub.Unregister("alice", aliceServer), "already removed")

	require.NoError(t, bobClient.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg services.WSMessage
	require.NoError(t, bobClient.ReadJSON(&msg))
	assert.Equal(t, services.EventPartnerStatus, msg.Type)
	require.NotNil(t, msg.Online)
	assert.False(t, *msg.Online)
	data, ok := msg.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "alice", data["partner_id"])
}
