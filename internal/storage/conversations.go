package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consultgo/backend/internal/apperrors"
	"consultgo/backend/internal/models"
	"consultgo/backend/internal/presence"

	"gorm.io/gorm"
)

// CreateConversation inserts a new pending conversation.
func (s *Service) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return s.DB.WithContext(ctx).Create(conv).Error
}

// GetConversation loads a conversation by id.
func (s *Service) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("conversation %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindOpenConversation returns the one non-terminal conversation for a
// (responder, requester) pair, or nil when none exists.
func (s *Service) FindOpenConversation(ctx context.Context, responderID, requesterID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.DB.WithContext(ctx).
		Where("responder_id = ? AND requester_id = ?", responderID, requesterID).
		Where("status IN ?", models.OpenStatuses).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListConversations returns a participant's conversations, most recent
// activity first, optionally filtered by status.
func (s *Service) ListConversations(ctx context.Context, p models.Participant, status string) ([]models.Conversation, error) {
	q := s.DB.WithContext(ctx).Model(&models.Conversation{})
	switch p.Class {
	case models.ClassResponder:
		q = q.Where("responder_id = ?", p.ID)
	case models.ClassRequester:
		q = q.Where("requester_id = ?", p.ID)
	default:
		return nil, fmt.Errorf("unknown participant class %q: %w", p.Class, apperrors.ErrValidation)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var convs []models.Conversation
	if err := q.Order("COALESCE(last_message_at, started_at) DESC").Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}

// AcceptConversation performs the single capacity-checked transition as one
// atomic unit: status pending→accepted, slot reservation and presence
// recomputation commit together or not at all.
func (s *Service) AcceptConversation(ctx context.Context, convID string, responderLive bool) (*models.Conversation, *models.Responder, error) {
	var (
		conv      models.Conversation
		responder models.Responder
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Conversation{}).
			Where("id = ? AND status = ?", convID, models.ConversationPending).
			Updates(map[string]interface{}{
				"status":                 models.ConversationAccepted,
				"is_accepted_by_partner": true,
				"accepted_at":            now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Either absent or no longer pending. Disambiguate for the caller.
			if err := tx.Where("id = ?", convID).First(&conv).Error; err != nil {
				return fmt.Errorf("conversation %s: %w", convID, apperrors.ErrNotFound)
			}
			return fmt.Errorf("conversation %s is %s: %w", convID, conv.Status, apperrors.ErrInvalidTransition)
		}

		if err := tx.Where("id = ?", convID).First(&conv).Error; err != nil {
			return err
		}
		if err := reserveSlot(tx, conv.ResponderID); err != nil {
			return err
		}
		if err := tx.Where("id = ?", conv.ResponderID).First(&responder).Error; err != nil {
			return err
		}

		status := presence.Derive(responder.ActiveConversationsCount, responder.MaxConversations, responderLive)
		if status != responder.OnlineStatus {
			if err := tx.Model(&models.Responder{}).Where("id = ?", responder.ID).
				Update("online_status", status).Error; err != nil {
				return err
			}
			responder.OnlineStatus = status
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.trackActiveConversation(ctx, convID)
	return &conv, &responder, nil
}

// MarkRejected transitions pending→rejected. Capacity is untouched: the
// responder never held a slot for a pending conversation.
func (s *Service) MarkRejected(ctx context.Context, convID string) (*models.Conversation, error) {
	return s.closeWithoutSlot(ctx, convID, models.ConversationRejected, "rejected_at")
}

// MarkCancelled transitions pending→cancelled.
func (s *Service) MarkCancelled(ctx context.Context, convID string) (*models.Conversation, error) {
	return s.closeWithoutSlot(ctx, convID, models.ConversationCancelled, "cancelled_at")
}

func (s *Service) closeWithoutSlot(ctx context.Context, convID, target, stampColumn string) (*models.Conversation, error) {
	res := s.DB.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ? AND status = ?", convID, models.ConversationPending).
		Updates(map[string]interface{}{
			"status":    target,
			stampColumn: time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		conv, err := s.GetConversation(ctx, convID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("conversation %s is %s: %w", convID, conv.Status, apperrors.ErrInvalidTransition)
	}
	return s.GetConversation(ctx, convID)
}

// EndConversation performs the single capacity-releasing transition as one
// atomic unit: status →ended, slot release, presence recomputation and the
// closure summary. The guarded status update makes session creation
// exactly-once; the unique index on conversation_id backs that up.
func (s *Service) EndConversation(ctx context.Context, convID string, responderLive bool) (*models.Conversation, *models.Responder, *models.ConversationSession, error) {
	var (
		conv      models.Conversation
		responder models.Responder
		session   models.ConversationSession
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Conversation{}).
			Where("id = ? AND status IN ?", convID, []string{models.ConversationAccepted, models.ConversationActive}).
			Updates(map[string]interface{}{
				"status":   models.ConversationEnded,
				"ended_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if err := tx.Where("id = ?", convID).First(&conv).Error; err != nil {
				return fmt.Errorf("conversation %s: %w", convID, apperrors.ErrNotFound)
			}
			return fmt.Errorf("conversation %s is %s: %w", convID, conv.Status, apperrors.ErrInvalidTransition)
		}

		if err := tx.Where("id = ?", convID).First(&conv).Error; err != nil {
			return err
		}
		if err := releaseSlot(tx, conv.ResponderID); err != nil {
			return err
		}
		if err := tx.Where("id = ?", conv.ResponderID).First(&responder).Error; err != nil {
			return err
		}

		status := presence.Derive(responder.ActiveConversationsCount, responder.MaxConversations, responderLive)
		if status != responder.OnlineStatus {
			if err := tx.Model(&models.Responder{}).Where("id = ?", responder.ID).
				Update("online_status", status).Error; err != nil {
				return err
			}
			responder.OnlineStatus = status
		}

		session = buildSession(&conv)
		return tx.Create(&session).Error
	})
	if err != nil {
		return nil, nil, nil, err
	}

	s.untrackActiveConversation(ctx, convID)
	return &conv, &responder, &session, nil
}

// buildSession denormalizes a terminated conversation into its immutable
// closure summary. Duration runs from acceptance to close.
func buildSession(conv *models.Conversation) models.ConversationSession {
	session := models.ConversationSession{
		ConversationID: conv.ID,
		ResponderID:    conv.ResponderID,
		RequesterID:    conv.RequesterID,
		MessageCount:   conv.MessageCount,
	}
	if conv.AcceptedAt != nil && conv.EndedAt != nil {
		duration := conv.EndedAt.Sub(*conv.AcceptedAt)
		session.DurationSeconds = int(duration.Seconds())
		if minutes := duration.Minutes(); minutes > 0 {
			session.MessagesPerMinute = float64(conv.MessageCount) / minutes
		}
	}
	return session
}
