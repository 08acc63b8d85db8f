package storage

import (
	"context"
	"fmt"
	"time"

	"consultgo/backend/internal/apperrors"
	"consultgo/backend/internal/models"

	"gorm.io/gorm"
)

// SaveMessage persists a message and, in the same transaction, refreshes
// the conversation's last-message snapshot, bumps the message count and the
// receiver-side unread counter, and flips accepted→active when this is the
// first message after acceptance. receiverViewing skips the unread
// increment and stamps the message read immediately, because a receiver
// with the conversation open reads it on arrival.
func (s *Service) SaveMessage(ctx context.Context, msg *models.Message, activate, receiverViewing bool) (*models.Conversation, error) {
	var conv models.Conversation

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if receiverViewing {
			msg.Delivered = true
			msg.DeliveredAt = &now
			msg.Read = true
			msg.ReadAt = &now
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"last_message_content":   msg.Content,
			"last_message_sender_id": msg.SenderID,
			"last_message_at":        now,
			"message_count":          gorm.Expr("message_count + 1"),
		}
		if !receiverViewing {
			col := "requester_unread_count"
			if msg.ReceiverClass == models.ClassResponder {
				col = "responder_unread_count"
			}
			updates[col] = gorm.Expr(col + " + 1")
		}
		if activate {
			updates["status"] = models.ConversationActive
		}

		// Guarded so a racing end cannot be resurrected or have its
		// snapshot and counters overwritten after closing.
		res := tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Where("status IN ?", []string{models.ConversationAccepted, models.ConversationActive}).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("conversation %s: %w", msg.ConversationID, apperrors.ErrInvalidTransition)
		}

		return tx.Where("id = ?", msg.ConversationID).First(&conv).Error
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// ListMessages returns up to limit messages for a conversation. The query
// walks newest-first (with an optional before cursor) and the page is
// reversed so callers receive it oldest-first.
func (s *Service) ListMessages(ctx context.Context, convID string, limit int, before time.Time) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	q := s.DB.WithContext(ctx).
		Where("conversation_id = ?", convID).
		Order("created_at DESC").
		Limit(limit)
	if !before.IsZero() {
		q = q.Where("created_at < ?", before)
	}

	var page []models.Message
	if err := q.Find(&page).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

// MarkConversationRead reconciles a participant joining a conversation:
// every unread message addressed to them becomes delivered and read, and
// their unread counter drops to zero. Returns how many messages changed.
func (s *Service) MarkConversationRead(ctx context.Context, convID string, reader models.Participant) (int64, error) {
	var marked int64

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND receiver_id = ? AND read = ?", convID, reader.ID, false).
			Updates(map[string]interface{}{
				"read":         true,
				"read_at":      now,
				"delivered":    true,
				"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", now),
			})
		if res.Error != nil {
			return res.Error
		}
		marked = res.RowsAffected

		col := "requester_unread_count"
		if reader.Class == models.ClassResponder {
			col = "responder_unread_count"
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", convID).
			Update(col, 0).Error
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}
