package realtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sensorgrid/iot-core/internal/constants"
	"github.com/sensorgrid/iot-core/pkg/jwt"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Sessions are authenticated by bearer token, not origin.
		return true
	},
}

// Handler upgrades authenticated requests into realtime sessions.
// Authentication happens once, here; a bad token refuses the connection
// outright and the client must reconnect with valid credentials.
func Handler(hub *Hub, verifier jwt.VerifierInterface, logger zerolog.Logger) http.HandlerFunc {
	log := logger.With().Str("component", "realtime").Logger()

	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Rejected realtime connection")
			http.Error(w, "invalid bearer token", http.StatusUnauthorized)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("Websocket upgrade failed")
			return
		}

		conn := newConnection(uuid.New().String(), claims, ws, hub, log)
		hub.register(conn)

		go conn.writePump()
		go conn.readPump()

		hub.sendEvent(conn, Event{
			Type: constants.EventConnectionSuccess,
			Payload: map[string]interface{}{
				"connection_id": conn.ID,
				"user_id":       conn.UserID,
				"client_id":     conn.ClientID,
				"role":          conn.Role,
			},
			Timestamp: time.Now().UTC(),
		})
	}
}

// bearerToken extracts the token from the Authorization header, falling
// back to the token query parameter for browser clients that cannot set
// websocket headers.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
