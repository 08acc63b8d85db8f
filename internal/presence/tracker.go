// Package presence owns responder availability: the pure derivation rule
// and the tracker that applies it on connection-registry transitions.
package presence

import (
	"context"

	"consultgo/backend/internal/models"
	"consultgo/backend/pkg/logger"
	"consultgo/backend/pkg/metrics"

	"go.uber.org/zap"
)

// Derive computes a responder's presence from its capacity counters and
// whether it holds at least one live connection. This is the single place
// the rule lives; every component that persists or broadcasts presence goes
// through it.
func Derive(count, max int, hasLiveConnection bool) string {
	if !hasLiveConnection {
		return models.StatusOffline
	}
	if count >= max {
		return models.StatusBusy
	}
	return models.StatusOnline
}

// Store is the slice of the session store the tracker needs.
type Store interface {
	GetResponder(ctx context.Context, id string) (*models.Responder, error)
	SetResponderStatus(ctx context.Context, id, status string) error
	CachePresence(ctx context.Context, responderID, status string) error
}

// Tracker recomputes and persists responder presence whenever the
// connection registry changes. Capacity mutations recompute presence inside
// the accept/end transactions; the tracker covers the registry side.
type Tracker struct {
	Store Store
	Log   *logger.Logger
}

// NewTracker constructs a Tracker.
func NewTracker(store Store, log *logger.Logger) *Tracker {
	return &Tracker{Store: store, Log: log}
}

// HandleConnect is called when a responder gains its first live connection.
// It returns the new presence so the gateway can broadcast it.
func (t *Tracker) HandleConnect(ctx context.Context, responderID string) (string, error) {
	return t.recompute(ctx, responderID, true)
}

// HandleDisconnect is called when a responder loses its last live
// connection. Presence goes offline regardless of capacity; the
// conversation lifecycle is untouched.
func (t *Tracker) HandleDisconnect(ctx context.Context, responderID string) (string, error) {
	return t.recompute(ctx, responderID, false)
}

func (t *Tracker) recompute(ctx context.Context, responderID string, hasLive bool) (string, error) {
	responder, err := t.Store.GetResponder(ctx, responderID)
	if err != nil {
		return "", err
	}

	status := Derive(responder.ActiveConversationsCount, responder.MaxConversations, hasLive)
	if err := t.Store.SetResponderStatus(ctx, responderID, status); err != nil {
		return "", err
	}
	if err := t.Store.CachePresence(ctx, responderID, status); err != nil {
		// The cache is advisory; a failed mirror is not a failed transition.
		t.Log.Warn("presence cache update failed",
			zap.String("responder_id", responderID), zap.Error(err))
	}

	if status != responder.OnlineStatus {
		metrics.RespondersByStatus.WithLabelValues(responder.OnlineStatus).Dec()
		metrics.RespondersByStatus.WithLabelValues(status).Inc()
	}
	return status, nil
}
