package conversation_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"consultgo/backend/internal/apperrors"
	"consultgo/backend/internal/models"
	"consultgo/backend/internal/presence"

	"github.com/google/uuid"
)

// fakeStore is a stateful in-memory implementation of storage.Store. Its
// mutations take a single lock, which gives it the same atomicity the real
// store gets from postgres transactions, so transition and capacity races
// behave the same way.
type fakeStore struct {
	mu         sync.Mutex
	responders map[string]*models.Responder
	convs      map[string]*models.Conversation
	messages   map[string][]*models.Message
	sessions   map[string]*models.ConversationSession
	presence   map[string]string
	published  []models.BroadcastEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		responders: make(map[string]*models.Responder),
		convs:      make(map[string]*models.Conversation),
		messages:   make(map[string][]*models.Message),
		sessions:   make(map[string]*models.ConversationSession),
		presence:   make(map[string]string),
	}
}

func (f *fakeStore) seedResponder(id string, max int) *models.Responder {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &models.Responder{ID: id, OnlineStatus: models.StatusOffline, MaxConversations: max}
	f.responders[id] = r
	return r
}

func copyConv(c *models.Conversation) *models.Conversation {
	dup := *c
	return &dup
}

func copyResponder(r *models.Responder) *models.Responder {
	dup := *r
	return &dup
}

func (f *fakeStore) GetResponder(ctx context.Context, id string) (*models.Responder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.responders[id]
	if !ok {
		return nil, fmt.Errorf("responder %s: %w", id, apperrors.ErrNotFound)
	}
	return copyResponder(r), nil
}

func (f *fakeStore) EnsureResponder(ctx context.Context, id string, max int) (*models.Responder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.responders[id]; ok {
		return copyResponder(r), nil
	}
	r := &models.Responder{ID: id, OnlineStatus: models.StatusOffline, MaxConversations: max}
	f.responders[id] = r
	return copyResponder(r), nil
}

func (f *fakeStore) SetResponderStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.responders[id]; ok {
		r.OnlineStatus = status
	}
	return nil
}

func (f *fakeStore) TouchResponder(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.responders[id]; ok {
		r.LastActiveAt = time.Now()
	}
	return nil
}

func (f *fakeStore) UpdateMaxConversations(ctx context.Context, id string, max int) (*models.Responder, error) {
	if max < 1 {
		return nil, fmt.Errorf("max_conversations must be positive: %w", apperrors.ErrValidation)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.responders[id]
	if !ok {
		return nil, fmt.Errorf("responder %s: %w", id, apperrors.ErrNotFound)
	}
	r.MaxConversations = max
	return copyResponder(r), nil
}

func (f *fakeStore) ResetAllPresence(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.responders {
		r.OnlineStatus = models.StatusOffline
	}
	return nil
}

func (f *fakeStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	f.convs[conv.ID] = copyConv(conv)
	return nil
}

func (f *fakeStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, apperrors.ErrNotFound)
	}
	return copyConv(conv), nil
}

func (f *fakeStore) FindOpenConversation(ctx context.Context, responderID, requesterID string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conv := range f.convs {
		if conv.ResponderID != responderID || conv.RequesterID != requesterID {
			continue
		}
		for _, status := range models.OpenStatuses {
			if conv.Status == status {
				return copyConv(conv), nil
			}
		}
	}
	return nil, nil
}

func (f *fakeStore) ListConversations(ctx context.Context, p models.Participant, status string) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Conversation
	for _, conv := range f.convs {
		mine := (p.Class == models.ClassResponder && conv.ResponderID == p.ID) ||
			(p.Class == models.ClassRequester && conv.RequesterID == p.ID)
		if !mine {
			continue
		}
		if status != "" && conv.Status != status {
			continue
		}
		out = append(out, *copyConv(conv))
	}
	return out, nil
}

func (f *fakeStore) AcceptConversation(ctx context.Context, convID string, responderLive bool) (*models.Conversation, *models.Responder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conv, ok := f.convs[convID]
	if !ok {
		return nil, nil, fmt.Errorf("conversation %s: %w", convID, apperrors.ErrNotFound)
	}
	if conv.Status != models.ConversationPending {
		return nil, nil, fmt.Errorf("conversation %s is %s: %w", convID, conv.Status, apperrors.ErrInvalidTransition)
	}
	responder, ok := f.responders[conv.ResponderID]
	if !ok {
		return nil, nil, fmt.Errorf("responder %s: %w", conv.ResponderID, apperrors.ErrNotFound)
	}
	if responder.AtCapacity() {
		return nil, nil, fmt.Errorf("responder %s: %w", responder.ID, apperrors.ErrCapacityExceeded)
	}

	responder.ActiveConversationsCount++
	responder.OnlineStatus = presence.Derive(responder.ActiveConversationsCount, responder.MaxConversations, responderLive)
	now := time.Now()
	conv.Status = models.ConversationAccepted
	conv.IsAcceptedByPartner = true
	conv.AcceptedAt = &now
	return copyConv(conv), copyResponder(responder), nil
}

func (f *fakeStore) markClosed(convID, status string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[convID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", convID, apperrors.ErrNotFound)
	}
	if conv.Status != models.ConversationPending {
		return nil, fmt.Errorf("conversation %s is %s: %w", convID, conv.Status, apperrors.ErrInvalidTransition)
	}
	now := time.Now()
	conv.Status = status
	switch status {
	case models.ConversationRejected:
		conv.RejectedAt = &now
	case models.ConversationCancelled:
		conv.CancelledAt = &now
	}
	return copyConv(conv), nil
}

func (f *fakeStore) MarkRejected(ctx context.Context, convID string) (*models.Conversation, error) {
	return f.markClosed(convID, models.ConversationRejected)
}

func (f *fakeStore) MarkCancelled(ctx context.Context, convID string) (*models.Conversation, error) {
	return f.markClosed(convID, models.ConversationCancelled)
}

func (f *fakeStore) EndConversation(ctx context.Context, convID string, responderLive bool) (*models.Conversation, *models.Responder, *models.ConversationSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conv, ok := f.convs[convID]
	if !ok {
		return nil, nil, nil, fmt.Errorf("conversation %s: %w", convID, apperrors.ErrNotFound)
	}
	switch conv.Status {
	case models.ConversationAccepted, models.ConversationActive:
	default:
		return nil, nil, nil, fmt.Errorf("conversation %s is %s: %w", convID, conv.Status, apperrors.ErrInvalidTransition)
	}
	responder, ok := f.responders[conv.ResponderID]
	if !ok {
		return nil, nil, nil, fmt.Errorf("responder %s: %w", conv.ResponderID, apperrors.ErrNotFound)
	}

	now := time.Now()
	conv.Status = models.ConversationEnded
	conv.EndedAt = &now
	if responder.ActiveConversationsCount > 0 {
		responder.ActiveConversationsCount--
	}
	responder.OnlineStatus = presence.Derive(responder.ActiveConversationsCount, responder.MaxConversations, responderLive)

	session := &models.ConversationSession{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		ResponderID:    conv.ResponderID,
		RequesterID:    conv.RequesterID,
		MessageCount:   conv.MessageCount,
		CreatedAt:      now,
	}
	if conv.AcceptedAt != nil {
		session.DurationSeconds = int(now.Sub(*conv.AcceptedAt).Seconds())
		if session.DurationSeconds > 0 {
			session.MessagesPerMinute = float64(session.MessageCount) / (float64(session.DurationSeconds) / 60.0)
		}
	}
	f.sessions[conv.ID] = session
	return copyConv(conv), copyResponder(responder), session, nil
}

func (f *fakeStore) SaveMessage(ctx context.Context, msg *models.Message, activate, receiverViewing bool) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conv, ok := f.convs[msg.ConversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", msg.ConversationID, apperrors.ErrNotFound)
	}
	switch conv.Status {
	case models.ConversationAccepted, models.ConversationActive:
	default:
		return nil, fmt.Errorf("conversation %s is %s: %w", conv.ID, conv.Status, apperrors.ErrInvalidTransition)
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	now := time.Now()
	msg.CreatedAt = now
	if receiverViewing {
		msg.Delivered = true
		msg.DeliveredAt = &now
		msg.Read = true
		msg.ReadAt = &now
	}
	f.messages[conv.ID] = append(f.messages[conv.ID], msg)

	conv.MessageCount++
	conv.LastMessageContent = msg.Content
	conv.LastMessageSenderID = msg.SenderID
	conv.LastMessageAt = &now
	if !receiverViewing {
		switch msg.ReceiverClass {
		case models.ClassResponder:
			conv.ResponderUnreadCount++
		case models.ClassRequester:
			conv.RequesterUnreadCount++
		}
	}
	if activate && conv.Status == models.ConversationAccepted {
		conv.Status = models.ConversationActive
	}
	return copyConv(conv), nil
}

func (f *fakeStore) ListMessages(ctx context.Context, convID string, limit int, before time.Time) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Message
	for _, msg := range f.messages[convID] {
		if !before.IsZero() && !msg.CreatedAt.Before(before) {
			continue
		}
		out = append(out, *msg)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) MarkConversationRead(ctx context.Context, convID string, reader models.Participant) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	conv, ok := f.convs[convID]
	if !ok {
		return 0, fmt.Errorf("conversation %s: %w", convID, apperrors.ErrNotFound)
	}
	var marked int64
	now := time.Now()
	for _, msg := range f.messages[convID] {
		if msg.ReceiverID != reader.ID || msg.Read {
			continue
		}
		msg.Read = true
		msg.ReadAt = &now
		if !msg.Delivered {
			msg.Delivered = true
			msg.DeliveredAt = &now
		}
		marked++
	}
	switch reader.Class {
	case models.ClassResponder:
		conv.ResponderUnreadCount = 0
	case models.ClassRequester:
		conv.RequesterUnreadCount = 0
	}
	return marked, nil
}

func (f *fakeStore) CachePresence(ctx context.Context, responderID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence[responderID] = status
	return nil
}

func (f *fakeStore) PublishEvent(ctx context.Context, evt models.BroadcastEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, evt)
	return nil
}

func (f *fakeStore) ActiveConversationIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id, conv := range f.convs {
		if conv.Status == models.ConversationAccepted || conv.Status == models.ConversationActive {
			out = append(out, id)
		}
	}
	return out, nil
}

// fakeLiveness is a settable stand-in for the connection registry.
type fakeLiveness struct {
	mu        sync.Mutex
	connected map[string]bool
	viewing   map[string]string
}

func newFakeLiveness() *fakeLiveness {
	return &fakeLiveness{connected: make(map[string]bool), viewing: make(map[string]string)}
}

func (f *fakeLiveness) connect(p models.Participant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected[p.Key()] = true
}

func (f *fakeLiveness) view(p models.Participant, convID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected[p.Key()] = true
	f.viewing[p.Key()] = convID
}

func (f *fakeLiveness) HasConnections(p models.Participant) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected[p.Key()]
}

func (f *fakeLiveness) Viewing(p models.Participant, conversationID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return conversationID != "" && f.viewing[p.Key()] == conversationID
}
