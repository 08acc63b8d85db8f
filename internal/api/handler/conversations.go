package handler

import (
	"net/http"
	"strconv"
	"time"

	"consultgo/backend/internal/apperrors"
	"consultgo/backend/internal/auth"
	"consultgo/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// conversationView is the listing projection: full rows minus the
// counterpart's unread counter, plus the caller's own unread count.
type conversationView struct {
	models.Conversation
	UnreadCount int `json:"unread_count"`
}

func viewFor(conv models.Conversation, p models.Participant) conversationView {
	unread := conv.RequesterUnreadCount
	if p.Class == models.ClassResponder {
		unread = conv.ResponderUnreadCount
	}
	return conversationView{Conversation: conv, UnreadCount: unread}
}

// ListConversations returns the caller's conversations, optionally
// filtered by status, most recent activity first.
func (h *Handler) ListConversations(c *gin.Context) {
	principal, ok := auth.PrincipalFrom(c)
	if !ok {
		respondErr(c, http.StatusUnauthorized, apperrors.Code(apperrors.ErrMissingCredential), "not authenticated")
		return
	}

	convs, err := h.Conversations.ListForParticipant(c.Request.Context(), principal, c.Query("status"))
	if err != nil {
		respondErr(c, apperrors.HTTPStatus(err), apperrors.Code(err), err.Error())
		return
	}

	views := lo.Map(convs, func(conv models.Conversation, _ int) conversationView {
		return viewFor(conv, principal.Participant)
	})
	respondOK(c, views)
}

// ListMessages returns one page of a conversation's messages, oldest-first.
// The before cursor is an RFC 3339 timestamp.
func (h *Handler) ListMessages(c *gin.Context) {
	principal, ok := auth.PrincipalFrom(c)
	if !ok {
		respondErr(c, http.StatusUnauthorized, apperrors.Code(apperrors.ErrMissingCredential), "not authenticated")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondErr(c, http.StatusBadRequest, apperrors.Code(apperrors.ErrValidation), "before must be RFC 3339")
			return
		}
		before = parsed
	}

	msgs, err := h.Conversations.ListMessages(c.Request.Context(), principal, c.Param("id"), limit, before)
	if err != nil {
		respondErr(c, apperrors.HTTPStatus(err), apperrors.Code(err), err.Error())
		return
	}
	respondOK(c, msgs)
}

// GetPresence returns a responder's presence and capacity counters.
func (h *Handler) GetPresence(c *gin.Context) {
	responder, err := h.Storage.GetResponder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, apperrors.HTTPStatus(err), apperrors.Code(err), err.Error())
		return
	}
	respondOK(c, gin.H{
		"responder_id":               responder.ID,
		"online_status":              responder.OnlineStatus,
		"active_conversations_count": responder.ActiveConversationsCount,
		"max_conversations":          responder.MaxConversations,
		"last_active_at":             responder.LastActiveAt,
	})
}

type presencePatch struct {
	MaxConversations int `json:"max_conversations" binding:"required,min=1"`
}

// PatchPresence updates a responder's capacity bound. Responders may only
// patch themselves.
func (h *Handler) PatchPresence(c *gin.Context) {
	principal, ok := auth.PrincipalFrom(c)
	if !ok {
		respondErr(c, http.StatusUnauthorized, apperrors.Code(apperrors.ErrMissingCredential), "not authenticated")
		return
	}
	id := c.Param("id")
	if principal.Participant.Class != models.ClassResponder || principal.Participant.ID != id {
		respondErr(c, http.StatusForbidden, apperrors.Code(apperrors.ErrForbidden), "responders may only patch their own presence")
		return
	}

	var patch presencePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondErr(c, http.StatusBadRequest, apperrors.Code(apperrors.ErrValidation), "max_conversations must be a positive integer")
		return
	}

	responder, err := h.Storage.UpdateMaxConversations(c.Request.Context(), id, patch.MaxConversations)
	if err != nil {
		respondErr(c, apperrors.HTTPStatus(err), apperrors.Code(err), err.Error())
		return
	}

	// Capacity changed, so busy/online may have flipped.
	if status, err := h.Hub.RecomputePresence(c.Request.Context(), id); err == nil {
		responder.OnlineStatus = status
	}
	respondOK(c, responder)
}
