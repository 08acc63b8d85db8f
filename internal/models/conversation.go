package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Conversation lifecycle statuses. pending is the initial status; ended,
// rejected and cancelled are terminal.
const (
	ConversationPending   = "pending"
	ConversationAccepted  = "accepted"
	ConversationActive    = "active"
	ConversationEnded     = "ended"
	ConversationRejected  = "rejected"
	ConversationCancelled = "cancelled"
)

// OpenStatuses are the statuses in which a (responder, requester) pair may
// hold at most one conversation.
var OpenStatuses = []string{ConversationPending, ConversationAccepted, ConversationActive}

// Conversation is a bounded interaction session between one responder and
// one requester. Rows are never deleted; terminal statuses are kept for
// history.
type Conversation struct {
	ID          string `gorm:"primaryKey" json:"id"`
	TenantID    string `gorm:"index" json:"tenant_id"`
	ResponderID string `gorm:"index:idx_conv_pair;not null" json:"responder_id"`
	RequesterID string `gorm:"index:idx_conv_pair;not null" json:"requester_id"`

	Status              string `gorm:"index;default:pending" json:"status"`
	IsAcceptedByPartner bool   `json:"is_accepted_by_partner"`

	StartedAt   time.Time  `json:"started_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`

	// Denormalized snapshot of the most recent message, for fast listing.
	LastMessageContent  string     `json:"last_message_content,omitempty"`
	LastMessageSenderID string     `json:"last_message_sender_id,omitempty"`
	LastMessageAt       *time.Time `json:"last_message_at,omitempty"`

	ResponderUnreadCount int `gorm:"default:0" json:"responder_unread_count"`
	RequesterUnreadCount int `gorm:"default:0" json:"requester_unread_count"`
	MessageCount         int `gorm:"default:0" json:"message_count"`
}

// BeforeCreate generates an id for the conversation if one was not supplied.
func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return
}

// Terminal reports whether the conversation can no longer transition.
func (c *Conversation) Terminal() bool {
	switch c.Status {
	case ConversationEnded, ConversationRejected, ConversationCancelled:
		return true
	}
	return false
}

// ParticipantFor returns the participant value for the given id, or false
// if the id is not a party to this conversation.
func (c *Conversation) ParticipantFor(id string) (Participant, bool) {
	switch id {
	case c.ResponderID:
		return Participant{ID: id, Class: ClassResponder}, true
	case c.RequesterID:
		return Participant{ID: id, Class: ClassRequester}, true
	}
	return Participant{}, false
}

// Counterpart returns the other side of the conversation.
func (c *Conversation) Counterpart(id string) (Participant, bool) {
	switch id {
	case c.ResponderID:
		return Participant{ID: c.RequesterID, Class: ClassRequester}, true
	case c.RequesterID:
		return Participant{ID: c.ResponderID, Class: ClassResponder}, true
	}
	return Participant{}, false
}

// ConversationSession is the immutable closure summary written exactly once
// when a conversation reaches a terminal state. Rating and credit fields are
// filled in later by external collaborators.
type ConversationSession struct {
	ID             string `gorm:"primaryKey" json:"id"`
	ConversationID string `gorm:"uniqueIndex;not null" json:"conversation_id"`
	ResponderID    string `gorm:"index" json:"responder_id"`
	RequesterID    string `gorm:"index" json:"requester_id"`

	DurationSeconds   int     `json:"duration_seconds"`
	MessageCount      int     `json:"message_count"`
	MessagesPerMinute float64 `json:"messages_per_minute"`
	CreditsUsed       int     `json:"credits_used"`
	Summary           string  `gorm:"type:text" json:"summary,omitempty"`
	ResponderRating   *int    `json:"responder_rating,omitempty"`
	RequesterRating   *int    `json:"requester_rating,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate generates an id for the session if one was not supplied.
func (s *ConversationSession) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}
