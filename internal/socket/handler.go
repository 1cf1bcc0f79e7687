// internal/socket/handler.go
package socket

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Identity is what the handshake needs to know about the caller.
type Identity struct {
	UserID string
	Staff  bool
}

// AuthenticatorFunc resolves a session token into an Identity.
type AuthenticatorFunc func(ctx context.Context, token string) (Identity, error)

// Handler handles WebSocket connections
type Handler struct {
	Hub          *Hub
	authenticate AuthenticatorFunc
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

// NewHandler builds the upgrade handler. allowedOrigins empty allows any origin.
func NewHandler(hub *Hub, authenticate AuthenticatorFunc, allowedOrigins []string, logger *zap.Logger) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Handler{
		Hub:          hub,
		authenticate: authenticate,
		logger:       logger.Named("websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins[origin]
			},
		},
	}
}

// HandleWebSocket authenticates before upgrading. Browsers cannot set headers
// on WebSocket requests, so the token may also come from the query string.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
		return
	}

	identity, err := h.authenticate(c.Request.Context(), tokenString)
	if err != nil || identity.UserID == "" {
		h.logger.Debug("handshake rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(h.Hub, identity.UserID, identity.Staff, conn)
	if !h.Hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	h.logger.Info("client connected", zap.String("user_id", identity.UserID), zap.String("client_id", client.ID))

	go client.WritePump()
	go client.ReadPump()
}
