// Package storage is the session store: the single source of truth for
// conversations, messages and responder capacity. PostgreSQL (via gorm)
// holds the durable records; redis carries advisory projections (presence
// cache, active-conversation set) and the event pub/sub channel.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"consultgo/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// broadcastChannel is the redis pub/sub channel the gateway fans out from.
// Kept as a pub/sub seam so a distributed registry can replace the
// in-process one without touching the state machine.
const broadcastChannel = "events:broadcast"

const activeConversationsKey = "active_conversations"

// Store is the persistence contract consumed by the state machine, the
// capacity tracker and the gateway.
type Store interface {
	// Responders
	GetResponder(ctx context.Context, id string) (*models.Responder, error)
	EnsureResponder(ctx context.Context, id string, maxConversations int) (*models.Responder, error)
	SetResponderStatus(ctx context.Context, id, status string) error
	TouchResponder(ctx context.Context, id string) error
	UpdateMaxConversations(ctx context.Context, id string, max int) (*models.Responder, error)
	ResetAllPresence(ctx context.Context) error

	// Conversations
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	FindOpenConversation(ctx context.Context, responderID, requesterID string) (*models.Conversation, error)
	ListConversations(ctx context.Context, p models.Participant, status string) ([]models.Conversation, error)
	AcceptConversation(ctx context.Context, convID string, responderLive bool) (*models.Conversation, *models.Responder, error)
	MarkRejected(ctx context.Context, convID string) (*models.Conversation, error)
	MarkCancelled(ctx context.Context, convID string) (*models.Conversation, error)
	EndConversation(ctx context.Context, convID string, responderLive bool) (*models.Conversation, *models.Responder, *models.ConversationSession, error)

	// Messages
	SaveMessage(ctx context.Context, msg *models.Message, activate, receiverViewing bool) (*models.Conversation, error)
	ListMessages(ctx context.Context, convID string, limit int, before time.Time) ([]models.Message, error)
	MarkConversationRead(ctx context.Context, convID string, reader models.Participant) (int64, error)

	// Advisory redis projections
	CachePresence(ctx context.Context, responderID, status string) error
	PublishEvent(ctx context.Context, evt models.BroadcastEvent) error
	ActiveConversationIDs(ctx context.Context) ([]string, error)
}

// Service implements Store on top of gorm and go-redis.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewService constructs the session store service.
func NewService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{DB: db, Redis: rdb}
}

// CachePresence mirrors a responder's presence into redis. The postgres row
// stays authoritative; this key only exists so read-heavy consumers can skip
// the database.
func (s *Service) CachePresence(ctx context.Context, responderID, status string) error {
	if s.Redis == nil {
		return nil
	}
	return s.Redis.Set(ctx, "presence:"+responderID, status, 0).Err()
}

// PublishEvent puts a broadcast event on the pub/sub channel.
func (s *Service) PublishEvent(ctx context.Context, evt models.BroadcastEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.Redis.Publish(ctx, broadcastChannel, payload).Err()
}

// SubscribeEvents subscribes to the broadcast channel.
func (s *Service) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return s.Redis.Subscribe(ctx, broadcastChannel)
}

// ActiveConversationIDs returns the ids tracked in the advisory redis set.
func (s *Service) ActiveConversationIDs(ctx context.Context) ([]string, error) {
	return s.Redis.SMembers(ctx, activeConversationsKey).Result()
}

func (s *Service) trackActiveConversation(ctx context.Context, convID string) {
	if s.Redis == nil {
		return
	}
	// Best effort: the set is rebuilt from postgres on demand.
	s.Redis.SAdd(ctx, activeConversationsKey, convID)
}

func (s *Service) untrackActiveConversation(ctx context.Context, convID string) {
	if s.Redis == nil {
		return
	}
	s.Redis.SRem(ctx, activeConversationsKey, convID)
}
