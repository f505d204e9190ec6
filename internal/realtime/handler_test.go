package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/constants"
	"github.com/sensorgrid/iot-core/pkg/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var handlerSecret = []byte("handler-test-secret")

func signedToken(t *testing.T, claims jwtlib.MapClaims) string {
	t.Helper()
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(handlerSecret)
	require.NoError(t, err)
	return token
}

func newHandlerServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	verifier := jwt.NewVerifierFromSecret(handlerSecret)
	server := httptest.NewServer(Handler(hub, verifier, zerolog.Nop()))
	t.Cleanup(server.Close)
	return hub, server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	_, server := newHandlerServer(t)

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_RejectsInvalidToken(t *testing.T) {
	_, server := newHandlerServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(server)+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_AcceptsBearerHeader(t *testing.T) {
	hub, server := newHandlerServer(t)
	token := signedToken(t, jwtlib.MapClaims{
		"user_id": "user-1", "client_id": "client-7", "role": "viewer",
	})

	header := http.Header{"Authorization": {"Bearer " + token}}
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL(server), header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(time.Second)))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, constants.EventConnectionSuccess, ev.Type)
	payload, ok := ev.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "user-1", payload["user_id"])
	assert.Equal(t, "client-7", payload["client_id"])

	assert.Equal(t, 1, hub.ConnectionCount())
}

func TestHandler_AcceptsTokenQueryParameter(t *testing.T) {
	hub, server := newHandlerServer(t)
	token := signedToken(t, jwtlib.MapClaims{"user_id": "user-2", "client_id": "client-7"})

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL(server)+"?token="+token, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, 1, hub.ConnectionCount())
}

func TestHandler_SubscribeRoundTrip(t *testing.T) {
	hub, server := newHandlerServer(t)
	token := signedToken(t, jwtlib.MapClaims{"user_id": "user-3", "client_id": "client-7"})

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL(server)+"?token="+token, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = ws.ReadMessage() // connection:success
	require.NoError(t, err)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"telemetry:subscribe","payload":{"device_ids":["meter-001"]}}`)))

	// Poll until the subscription lands, then broadcast into the room.
	require.Eventually(t, func() bool {
		hub.roomsMu.RLock()
		defer hub.roomsMu.RUnlock()
		return len(hub.rooms[deviceRoom("meter-001")]) == 1
	}, time.Second, 10*time.Millisecond)

	hub.BroadcastCommandStatus("meter-001", "cmd-1", "COMPLETED", "done")

	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, constants.EventCommandStatusUpdate, ev.Type)
}
