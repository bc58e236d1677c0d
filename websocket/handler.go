package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/CUknot/nexus_chat/middleware"
	"github.com/CUknot/nexus_chat/models"
	"github.com/CUknot/nexus_chat/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// MessageStore is the persistence the gateway needs for chat events.
type MessageStore interface {
	AppendMessage(ctx context.Context, senderID, roomID, content string) (*models.Message, error)
	GetHistoryForUser(ctx context.Context, userID, roomID string, limit int) ([]models.Message, error)
}

// Gateway accepts websocket connections and dispatches their events.
type Gateway struct {
	hub      *Hub
	verifier services.IdentityVerifier
	messages MessageStore
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewGateway(hub *Hub, verifier services.IdentityVerifier, messages MessageStore, allowedOrigins []string, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		hub:      hub,
		verifier: verifier,
		messages: messages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return middleware.OriginAllowed(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		logger: logger,
	}
}

// HandleConnection godoc
// @Summary      Open a chat connection
// @Description  Upgrades to a websocket after verifying the bearer token from the Authorization header or the token query parameter.
// @Tags         chat
// @Param        token  query  string  false  "JWT when the Authorization header cannot be set"
// @Success      101
// @Failure      401  {object}  map[string]string
// @Router       /ws [get]
func (g *Gateway) HandleConnection(c *gin.Context) {
	credential := c.GetHeader("Authorization")
	if credential == "" {
		credential = c.Query("token")
	}

	user, err := g.verifier.Verify(c.Request.Context(), credential)
	if err != nil {
		if errors.Is(err, services.ErrUnauthenticated) {
			g.logger.Debug("websocket handshake rejected", "remote", c.ClientIP(), "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token invalid or expired"})
			return
		}
		g.logger.Error("websocket handshake failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify credentials"})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "user_id", user.ID, "error", err)
		return
	}

	client := newClient(g.hub, conn, user, g.logger)
	g.hub.register(client)
	client.logger.Info("websocket connected")

	go client.writePump()
	go client.readPump(g.handleFrame)
}
