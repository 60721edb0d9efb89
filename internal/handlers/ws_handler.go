package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dias221467/Habit_Streaks/internal/reconciler"
	jwtutil "github.com/Dias221467/Habit_Streaks/pkg/jwt"
)

const writeWait = 10 * time.Second

// WSMessage is the envelope of every websocket frame.
type WSMessage struct {
	Type string           `json:"type"` // "view" from the server, "refresh" from the client
	View *reconciler.View `json:"view,omitempty"`
}

// RealtimeHandler serves live habit views over websockets, one reconciler
// session per connection.
type RealtimeHandler struct {
	Deps      reconciler.Deps
	JWTSecret string
	upgrader  websocket.Upgrader
}

// NewRealtimeHandler creates a RealtimeHandler accepting the given origins.
// "*" accepts any origin.
func NewRealtimeHandler(deps reconciler.Deps, jwtSecret string, allowedOrigins []string) *RealtimeHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &RealtimeHandler{
		Deps:      deps,
		JWTSecret: jwtSecret,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// ServeWS upgrades the connection and streams views until the client leaves.
// The token travels in the query string; without one the session is absent
// and receives a single empty view.
func (h *RealtimeHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	owner := primitive.NilObjectID
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := jwtutil.ValidateToken(token, h.JWTSecret)
		if err != nil {
			logrus.WithError(err).Warn("WebSocket auth failed")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		if owner, err = primitive.ObjectIDFromHex(claims.UserID); err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sessionID := uuid.NewString()
	log := logrus.WithFields(logrus.Fields{"session_id": sessionID, "user_id": owner.Hex()})
	log.Info("WebSocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	session := reconciler.New(sessionID, owner, h.Deps, wsSink{conn: conn})
	done := make(chan struct{})
	go func() {
		defer close(done)
		session.Run(ctx)
	}()

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		if msg.Type == "refresh" {
			session.Refresh()
		}
	}

	cancel()
	<-done
	log.Info("WebSocket disconnected")
}

// wsSink writes views to the connection. Only the session goroutine calls it.
type wsSink struct {
	conn *websocket.Conn
}

func (s wsSink) Emit(v reconciler.View) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(WSMessage{Type: "view", View: &v})
}
