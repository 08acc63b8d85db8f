package chathub_test

import (
	"context"
	"sync"
	"time"

	"consultgo/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a comprehensive mock implementation of the storage.Store
// interface. It uses testify/mock to allow flexible expectation setting in
// tests. It deliberately does not implement SubscribeEvents, so the gateway
// skips the redis listener when running against it.
type MockStorage struct {
	mock.Mock
}

// Responder operations
func (m *MockStorage) GetResponder(ctx context.Context, id string) (*models.Responder, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Responder), args.Error(1)
}

func (m *MockStorage) EnsureResponder(ctx context.Context, id string, maxConversations int) (*models.Responder, error) {
	args := m.Called(id, maxConversations)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Responder), args.Error(1)
}

func (m *MockStorage) SetResponderStatus(ctx context.Context, id, status string) error {
	args := m.Called(id, status)
	return args.Error(0)
}

func (m *MockStorage) TouchResponder(ctx context.Context, id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockStorage) UpdateMaxConversations(ctx context.Context, id string, max int) (*models.Responder, error) {
	args := m.Called(id, max)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Responder), args.Error(1)
}

func (m *MockStorage) ResetAllPresence(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}

// Conversation operations
func (m *MockStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	args := m.Called(conv)
	return args.Error(0)
}

func (m *MockStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockStorage) FindOpenConversation(ctx context.Context, responderID, requesterID string) (*models.Conversation, error) {
	args := m.Called(responderID, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockStorage) ListConversations(ctx context.Context, p models.Participant, status string) ([]models.Conversation, error) {
	args := m.Called(p, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *MockStorage) AcceptConversation(ctx context.Context, convID string, responderLive bool) (*models.Conversation, *models.Responder, error) {
	args := m.Called(convID, responderLive)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.Conversation), args.Get(1).(*models.Responder), args.Error(2)
}

func (m *MockStorage) MarkRejected(ctx context.Context, convID string) (*models.Conversation, error) {
	args := m.Called(convID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockStorage) MarkCancelled(ctx context.Context, convID string) (*models.Conversation, error) {
	args := m.Called(convID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockStorage) EndConversation(ctx context.Context, convID string, responderLive bool) (*models.Conversation, *models.Responder, *models.ConversationSession, error) {
	args := m.Called(convID, responderLive)
	if args.Get(0) == nil {
		return nil, nil, nil, args.Error(3)
	}
	return args.Get(0).(*models.Conversation), args.Get(1).(*models.Responder), args.Get(2).(*models.ConversationSession), args.Error(3)
}

// Message operations
func (m *MockStorage) SaveMessage(ctx context.Context, msg *models.Message, activate, receiverViewing bool) (*models.Conversation, error) {
	args := m.Called(msg, activate, receiverViewing)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockStorage) ListMessages(ctx context.Context, convID string, limit int, before time.Time) ([]models.Message, error) {
	args := m.Called(convID, limit, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) MarkConversationRead(ctx context.Context, convID string, reader models.Participant) (int64, error) {
	args := m.Called(convID, reader)
	return args.Get(0).(int64), args.Error(1)
}

// Advisory redis projections
func (m *MockStorage) CachePresence(ctx context.Context, responderID, status string) error {
	args := m.Called(responderID, status)
	return args.Error(0)
}

func (m *MockStorage) PublishEvent(ctx context.Context, evt models.BroadcastEvent) error {
	args := m.Called(evt)
	return args.Error(0)
}

func (m *MockStorage) ActiveConversationIDs(ctx context.Context) ([]string, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockClient is a test double for the chathub.Client interface.
type MockClient struct {
	participant models.Participant
	tenantID    string
	convID      string
	send        chan models.Envelope
	closeOnce   sync.Once
}

func newMockClient(id string, class models.ParticipantClass) *MockClient {
	return &MockClient{
		participant: models.Participant{ID: id, Class: class},
		send:        make(chan models.Envelope, 16), // Buffered to prevent blocking in tests
	}
}

func (c *MockClient) GetParticipant() models.Participant { return c.participant }

func (c *MockClient) GetTenantID() string { return c.tenantID }

func (c *MockClient) GetConversationID() string { return c.convID }

func (c *MockClient) SetConversationID(id string) { c.convID = id }

func (c *MockClient) GetSendChannel() chan<- models.Envelope { return c.send }

func (c *MockClient) Run() {}

func (c *MockClient) Close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// DrainEnvelopes empties the send channel (for assertions and test cleanup).
func (c *MockClient) DrainEnvelopes() []models.Envelope {
	var out []models.Envelope
	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}
