package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consultgo/backend/internal/apperrors"
	"consultgo/backend/internal/models"

	"gorm.io/gorm"
)

// GetResponder loads a responder row.
func (s *Service) GetResponder(ctx context.Context, id string) (*models.Responder, error) {
	var responder models.Responder
	err := s.DB.WithContext(ctx).Where("id = ?", id).First(&responder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("responder %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &responder, nil
}

// EnsureResponder returns the responder row, creating it with defaults when
// it does not exist yet. Used by the dev token endpoint so a freshly minted
// responder identity can connect without a separate provisioning step.
func (s *Service) EnsureResponder(ctx context.Context, id string, maxConversations int) (*models.Responder, error) {
	responder, err := s.GetResponder(ctx, id)
	if err == nil {
		return responder, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	responder = &models.Responder{
		ID:               id,
		OnlineStatus:     models.StatusOffline,
		MaxConversations: maxConversations,
	}
	if err := s.DB.WithContext(ctx).Create(responder).Error; err != nil {
		return nil, err
	}
	return responder, nil
}

// SetResponderStatus persists the derived presence for a responder.
func (s *Service) SetResponderStatus(ctx context.Context, id, status string) error {
	return s.DB.WithContext(ctx).Model(&models.Responder{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"online_status":  status,
			"last_active_at": time.Now(),
		}).Error
}

// TouchResponder bumps the last-active timestamp.
func (s *Service) TouchResponder(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Model(&models.Responder{}).
		Where("id = ?", id).
		Update("last_active_at", time.Now()).Error
}

// UpdateMaxConversations patches the capacity bound supplied by the profile
// collaborator. The counter is left alone; presence is recomputed by the
// caller because only the registry knows about live connections.
func (s *Service) UpdateMaxConversations(ctx context.Context, id string, max int) (*models.Responder, error) {
	if max < 1 {
		return nil, fmt.Errorf("max_conversations must be positive: %w", apperrors.ErrValidation)
	}
	res := s.DB.WithContext(ctx).Model(&models.Responder{}).
		Where("id = ?", id).
		Update("max_conversations", max)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("responder %s: %w", id, apperrors.ErrNotFound)
	}
	return s.GetResponder(ctx, id)
}

// ResetAllPresence marks every responder offline. Called on boot: the
// connection registry is empty after a restart, so no responder can have a
// live connection yet.
func (s *Service) ResetAllPresence(ctx context.Context) error {
	return s.DB.WithContext(ctx).Model(&models.Responder{}).
		Where("online_status <> ?", models.StatusOffline).
		Update("online_status", models.StatusOffline).Error
}

// reserveSlot increments the active-conversation counter iff a slot is
// free. The guarded WHERE clause is the compare-and-swap that keeps two
// concurrent accepts from both passing the capacity check.
func reserveSlot(tx *gorm.DB, responderID string) error {
	res := tx.Model(&models.Responder{}).
		Where("id = ? AND active_conversations_count < max_conversations", responderID).
		Updates(map[string]interface{}{
			"active_conversations_count": gorm.Expr("active_conversations_count + 1"),
			"last_active_at":             time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("responder %s: %w", responderID, apperrors.ErrCapacityExceeded)
	}
	return nil
}

// releaseSlot decrements the counter, clamped at zero.
func releaseSlot(tx *gorm.DB, responderID string) error {
	return tx.Model(&models.Responder{}).
		Where("id = ? AND active_conversations_count > 0", responderID).
		Updates(map[string]interface{}{
			"active_conversations_count": gorm.Expr("active_conversations_count - 1"),
			"last_active_at":             time.Now(),
		}).Error
}
