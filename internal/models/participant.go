package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // needed for pq.StringArray
	"gorm.io/gorm"
)

// ParticipantClass distinguishes the two kinds of conversation participants.
// Responders advertise capacity-gated presence; requesters do not.
type ParticipantClass string

const (
	ClassResponder ParticipantClass = "responder"
	ClassRequester ParticipantClass = "requester"
)

// Valid reports whether the class is one of the two known participant kinds.
func (c ParticipantClass) Valid() bool {
	return c == ClassResponder || c == ClassRequester
}

// Participant identifies one side of a conversation. The core passes this
// value around instead of a raw id plus a role string, so a participant's
// class can never drift from its id.
type Participant struct {
	ID    string           `json:"id"`
	Class ParticipantClass `json:"class"`
}

// Key returns the registry key for this participant.
func (p Participant) Key() string {
	return string(p.Class) + ":" + p.ID
}

// Presence states a responder can advertise.
const (
	StatusOnline  = "online"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// Responder is a capacity-bounded participant. Profile fields (name, avatar,
// specialties, max_conversations) are owned by the profile collaborator;
// the capacity tracker owns ActiveConversationsCount and OnlineStatus.
type Responder struct {
	ID                       string         `gorm:"primaryKey" json:"id"`
	TenantID                 string         `gorm:"index" json:"tenant_id"`
	Name                     string         `json:"name"`
	AvatarRef                string         `json:"avatar_ref,omitempty"`
	Specialties              pq.StringArray `gorm:"type:text[]" json:"specialties,omitempty"`
	OnlineStatus             string         `gorm:"default:offline" json:"online_status"`
	ActiveConversationsCount int            `gorm:"default:0" json:"active_conversations_count"`
	MaxConversations         int            `gorm:"default:5" json:"max_conversations"`
	LastActiveAt             time.Time      `json:"last_active_at"`

	// NotifyChatID is the Telegram chat used to ping the responder about
	// new requests while they have no live connection. Zero disables it.
	NotifyChatID int64 `json:"-"`
}

// BeforeCreate generates an id for the responder if one was not supplied.
func (r *Responder) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return
}

// AtCapacity reports whether the responder holds all of its slots.
func (r *Responder) AtCapacity() bool {
	return r.ActiveConversationsCount >= r.MaxConversations
}
