// Package handler exposes the REST query surface and the websocket
// upgrade endpoint.
package handler

import (
	"consultgo/backend/internal/auth"
	"consultgo/backend/internal/chathub"
	"consultgo/backend/internal/conversation"
	"consultgo/backend/internal/storage"
	"consultgo/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handler wires the HTTP surface to the gateway and the state machine.
type Handler struct {
	Hub           *chathub.Gateway
	Conversations *conversation.Service
	Storage       storage.Store
	Identity      *auth.Identity
	Log           *logger.Logger

	// DefaultMaxConversations seeds new responder rows created through the
	// dev token endpoint.
	DefaultMaxConversations int
}

// New constructs a Handler.
func New(hub *chathub.Gateway, convs *conversation.Service, store storage.Store, identity *auth.Identity, log *logger.Logger, defaultMax int) *Handler {
	return &Handler{Hub: hub, Conversations: convs, Storage: store, Identity: identity, Log: log, DefaultMaxConversations: defaultMax}
}

func respondErr(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   gin.H{"code": code, "message": message},
	})
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(200, gin.H{"success": true, "data": data})
}
