// Package conversation implements the lifecycle state machine:
// request → accept/reject/cancel → active → ended, with the capacity check
// on accept and the closure summary on end.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consultgo/backend/internal/apperrors"
	"consultgo/backend/internal/auth"
	"consultgo/backend/internal/models"
	"consultgo/backend/internal/storage"
	"consultgo/backend/pkg/logger"
	"consultgo/backend/pkg/metrics"

	"go.uber.org/zap"
)

// Liveness is the slice of the connection registry the state machine reads:
// whether a participant is reachable right now, and whether they currently
// have a given conversation open.
type Liveness interface {
	HasConnections(p models.Participant) bool
	Viewing(p models.Participant, conversationID string) bool
}

// Service validates and applies lifecycle transitions against the session
// store. Atomicity of the capacity-coupled transitions lives in the store;
// this layer owns authorization and guard semantics.
type Service struct {
	Store storage.Store
	Live  Liveness
	Log   *logger.Logger
}

// NewService constructs the state machine service.
func NewService(store storage.Store, live Liveness, log *logger.Logger) *Service {
	return &Service{Store: store, Live: live, Log: log}
}

// Request opens a pending conversation between a responder and a requester.
// An existing non-terminal conversation for the pair is returned as-is;
// re-requesting after a terminal state creates a fresh row.
// The second return value reports whether a new conversation was created.
func (s *Service) Request(ctx context.Context, caller auth.Principal, responderID, requesterID string) (*models.Conversation, bool, error) {
	// The caller fills in its own side; the payload names the other one.
	switch caller.Participant.Class {
	case models.ClassRequester:
		requesterID = caller.Participant.ID
	case models.ClassResponder:
		responderID = caller.Participant.ID
	}
	if responderID == "" || requesterID == "" {
		return nil, false, fmt.Errorf("request needs both parties: %w", apperrors.ErrValidation)
	}

	// The responder must exist; requesters are unbounded and unchecked.
	if _, err := s.Store.GetResponder(ctx, responderID); err != nil {
		return nil, false, err
	}

	existing, err := s.Store.FindOpenConversation(ctx, responderID, requesterID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	conv := &models.Conversation{
		TenantID:    caller.TenantID,
		ResponderID: responderID,
		RequesterID: requesterID,
		Status:      models.ConversationPending,
		StartedAt:   time.Now(),
	}
	if err := s.Store.CreateConversation(ctx, conv); err != nil {
		return nil, false, err
	}

	metrics.TransitionsTotal.WithLabelValues(models.ConversationPending).Inc()
	s.Log.Info("conversation requested",
		zap.String("conversation_id", conv.ID),
		zap.String("responder_id", responderID),
		zap.String("requester_id", requesterID))
	return conv, true, nil
}

// Accept applies the capacity-checked transition. Only the responder of the
// conversation may accept. On CapacityExceeded the conversation stays
// pending.
func (s *Service) Accept(ctx context.Context, caller auth.Principal, convID string) (*models.Conversation, *models.Responder, error) {
	conv, err := s.Store.GetConversation(ctx, convID)
	if err != nil {
		return nil, nil, err
	}
	if caller.Participant.Class != models.ClassResponder || caller.Participant.ID != conv.ResponderID {
		return nil, nil, fmt.Errorf("only the responder may accept: %w", apperrors.ErrForbidden)
	}

	live := s.Live.HasConnections(models.Participant{ID: conv.ResponderID, Class: models.ClassResponder})
	conv, responder, err := s.Store.AcceptConversation(ctx, convID, live)
	if err != nil {
		if errors.Is(err, apperrors.ErrCapacityExceeded) {
			metrics.CapacityRejections.Inc()
		}
		return nil, nil, err
	}

	metrics.TransitionsTotal.WithLabelValues(models.ConversationAccepted).Inc()
	s.Log.Info("conversation accepted",
		zap.String("conversation_id", conv.ID),
		zap.String("responder_id", responder.ID),
		zap.Int("active_conversations", responder.ActiveConversationsCount),
		zap.String("presence", responder.OnlineStatus))
	return conv, responder, nil
}

// Reject declines a pending conversation. Responder-only; capacity is never
// touched because no slot was held.
func (s *Service) Reject(ctx context.Context, caller auth.Principal, convID, reason string) (*models.Conversation, error) {
	conv, err := s.Store.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if caller.Participant.Class != models.ClassResponder || caller.Participant.ID != conv.ResponderID {
		return nil, fmt.Errorf("only the responder may reject: %w", apperrors.ErrForbidden)
	}

	conv, err = s.Store.MarkRejected(ctx, convID)
	if err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(models.ConversationRejected).Inc()
	s.Log.Info("conversation rejected",
		zap.String("conversation_id", convID), zap.String("reason", reason))
	return conv, nil
}

// Cancel withdraws a pending request. Requester-only.
func (s *Service) Cancel(ctx context.Context, caller auth.Principal, convID string) (*models.Conversation, error) {
	conv, err := s.Store.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if caller.Participant.Class != models.ClassRequester || caller.Participant.ID != conv.RequesterID {
		return nil, fmt.Errorf("only the requester may cancel: %w", apperrors.ErrForbidden)
	}

	conv, err = s.Store.MarkCancelled(ctx, convID)
	if err != nil {
		return nil, err
	}
	metrics.TransitionsTotal.WithLabelValues(models.ConversationCancelled).Inc()
	s.Log.Info("conversation cancelled", zap.String("conversation_id", convID))
	return conv, nil
}

// End closes an accepted or active conversation. Either party may end. The
// store releases the slot, recomputes presence and writes the closure
// summary in the same transaction.
func (s *Service) End(ctx context.Context, caller auth.Principal, convID string) (*models.Conversation, *models.Responder, *models.ConversationSession, error) {
	conv, err := s.Store.GetConversation(ctx, convID)
	if err != nil {
		return nil, nil, nil, err
	}
	if _, ok := conv.ParticipantFor(caller.Participant.ID); !ok {
		return nil, nil, nil, fmt.Errorf("caller %s: %w", caller.Participant.ID, apperrors.ErrForbidden)
	}

	live := s.Live.HasConnections(models.Participant{ID: conv.ResponderID, Class: models.ClassResponder})
	conv, responder, session, err := s.Store.EndConversation(ctx, convID, live)
	if err != nil {
		return nil, nil, nil, err
	}

	metrics.TransitionsTotal.WithLabelValues(models.ConversationEnded).Inc()
	s.Log.Info("conversation ended",
		zap.String("conversation_id", conv.ID),
		zap.Int("duration_seconds", session.DurationSeconds),
		zap.Int("message_count", session.MessageCount),
		zap.String("responder_presence", responder.OnlineStatus))
	return conv, responder, session, nil
}

// SendMessage persists a message from the caller to the counterpart. The
// first message after acceptance flips the conversation to active. The
// delivered flag reflects whether the receiver had a live connection at
// send time; a receiver currently viewing the conversation reads it on
// arrival and accrues no unread count.
func (s *Service) SendMessage(ctx context.Context, caller auth.Principal, convID, content, msgType string) (*models.Message, *models.Conversation, error) {
	if content == "" {
		return nil, nil, fmt.Errorf("empty message content: %w", apperrors.ErrValidation)
	}
	if msgType == "" {
		msgType = models.MessageText
	}

	conv, err := s.Store.GetConversation(ctx, convID)
	if err != nil {
		return nil, nil, err
	}
	sender, ok := conv.ParticipantFor(caller.Participant.ID)
	if !ok {
		return nil, nil, fmt.Errorf("caller %s: %w", caller.Participant.ID, apperrors.ErrForbidden)
	}
	switch conv.Status {
	case models.ConversationAccepted, models.ConversationActive:
	default:
		return nil, nil, fmt.Errorf("conversation %s is %s: %w", convID, conv.Status, apperrors.ErrInvalidTransition)
	}

	receiver, _ := conv.Counterpart(sender.ID)
	delivered := s.Live.HasConnections(receiver)
	viewing := s.Live.Viewing(receiver, convID)

	msg := &models.Message{
		ConversationID: convID,
		SenderID:       sender.ID,
		SenderClass:    sender.Class,
		ReceiverID:     receiver.ID,
		ReceiverClass:  receiver.Class,
		Content:        content,
		Type:           msgType,
	}
	if delivered {
		now := time.Now()
		msg.Delivered = true
		msg.DeliveredAt = &now
	}

	activate := conv.Status == models.ConversationAccepted
	conv, err = s.Store.SaveMessage(ctx, msg, activate, viewing)
	if err != nil {
		return nil, nil, err
	}
	if activate && conv.Status == models.ConversationActive {
		metrics.TransitionsTotal.WithLabelValues(models.ConversationActive).Inc()
	}

	outcome := "pending"
	if msg.Delivered {
		outcome = "delivered"
	}
	metrics.MessagesTotal.WithLabelValues(outcome).Inc()
	return msg, conv, nil
}

// Join opens a conversation for the caller: it authorizes them, resets
// their unread counter and marks every unread message addressed to them as
// read. Returns the conversation and how many messages were marked.
func (s *Service) Join(ctx context.Context, caller auth.Principal, convID string) (*models.Conversation, int64, error) {
	conv, err := s.Store.GetConversation(ctx, convID)
	if err != nil {
		return nil, 0, err
	}
	reader, ok := conv.ParticipantFor(caller.Participant.ID)
	if !ok {
		return nil, 0, fmt.Errorf("caller %s: %w", caller.Participant.ID, apperrors.ErrForbidden)
	}

	marked, err := s.Store.MarkConversationRead(ctx, convID, reader)
	if err != nil {
		return nil, 0, err
	}
	if marked > 0 {
		// Re-read so the ack carries the zeroed counter.
		conv, err = s.Store.GetConversation(ctx, convID)
		if err != nil {
			return nil, 0, err
		}
	}
	return conv, marked, nil
}

// ListForParticipant returns the caller's conversations filtered by status.
func (s *Service) ListForParticipant(ctx context.Context, caller auth.Principal, status string) ([]models.Conversation, error) {
	return s.Store.ListConversations(ctx, caller.Participant, status)
}

// ListMessages returns a page of a conversation's messages, oldest-first.
func (s *Service) ListMessages(ctx context.Context, caller auth.Principal, convID string, limit int, before time.Time) ([]models.Message, error) {
	conv, err := s.Store.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if _, ok := conv.ParticipantFor(caller.Participant.ID); !ok {
		return nil, fmt.Errorf("caller %s: %w", caller.Participant.ID, apperrors.ErrForbidden)
	}
	return s.Store.ListMessages(ctx, convID, limit, before)
}
