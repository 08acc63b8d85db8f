package handler

import (
	"context"
	"net/http"
	"time"

	"consultgo/backend/internal/apperrors"
	"consultgo/backend/internal/auth"
	"consultgo/backend/internal/chathub"
	"consultgo/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allows connections from any origin. Tighten in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// AuthTimeout bounds credential verification on a new connection.
var AuthTimeout = 5 * time.Second

// ServeWebSocket authenticates the bearer credential and upgrades the
// connection. Authentication failures refuse the upgrade; after that,
// protocol failures only ever answer the originating call.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), AuthTimeout)
	defer cancel()

	principal, err := h.Identity.Verify(ctx, auth.BearerCredential(c.Request))
	if err != nil {
		respondErr(c, apperrors.HTTPStatus(err), apperrors.Code(err), err.Error())
		c.Abort()
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		respondErr(c, http.StatusInternalServerError, "INTERNAL", "failed to upgrade connection")
		c.Abort()
		return
	}

	client := &chathub.WebSocketClient{
		Hub:         h.Hub,
		Participant: principal.Participant,
		TenantID:    principal.TenantID,
		Conn:        conn,
		Send:        make(chan models.Envelope, 256),
	}

	h.Hub.RegisterCh <- client
	client.Run()
}
