package handler

import (
	"net/http"

	"consultgo/backend/internal/apperrors"
	"consultgo/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type tokenRequest struct {
	ParticipantID string `json:"participant_id"`
	Class         string `json:"class" binding:"required"`
	TenantID      string `json:"tenant_id"`
}

// IssueToken mints a development credential. In production the identity
// collaborator issues tokens; this endpoint exists so local clients and
// integration tests can connect without it.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, http.StatusBadRequest, apperrors.Code(apperrors.ErrValidation), "class is required")
		return
	}

	class := models.ParticipantClass(req.Class)
	if !class.Valid() {
		respondErr(c, http.StatusBadRequest, apperrors.Code(apperrors.ErrValidation), "class must be responder or requester")
		return
	}
	if req.ParticipantID == "" {
		req.ParticipantID = uuid.New().String()
	}

	// A responder credential is useless without a responder row: token
	// verification resolves the principal against storage.
	if class == models.ClassResponder {
		if _, err := h.Storage.EnsureResponder(c.Request.Context(), req.ParticipantID, h.DefaultMaxConversations); err != nil {
			h.Log.Error("ensure responder", zap.String("responder_id", req.ParticipantID), zap.Error(err))
			respondErr(c, http.StatusInternalServerError, "INTERNAL", "failed to provision responder")
			return
		}
	}

	token, err := h.Identity.Issue(models.Participant{ID: req.ParticipantID, Class: class}, req.TenantID)
	if err != nil {
		respondErr(c, http.StatusInternalServerError, "INTERNAL", "failed to create token")
		return
	}

	respondOK(c, gin.H{
		"token":          token,
		"participant_id": req.ParticipantID,
		"class":          class,
	})
}
