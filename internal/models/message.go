package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message kinds carried over the wire and persisted.
const (
	MessageText  = "text"
	MessageMedia = "media"
)

// Message is a single persisted chat message. Only the delivery and read
// flags are ever mutated after creation; removal is a soft delete.
type Message struct {
	ID             string `gorm:"primaryKey" json:"id"`
	ConversationID string `gorm:"index:idx_conv_msg;not null" json:"conversation_id"`

	SenderID      string           `gorm:"index:idx_conv_msg;not null" json:"sender_id"`
	SenderClass   ParticipantClass `gorm:"type:text;not null" json:"sender_class"`
	ReceiverID    string           `gorm:"index" json:"receiver_id"`
	ReceiverClass ParticipantClass `gorm:"type:text;not null" json:"receiver_class"`

	Content string `gorm:"type:text;not null" json:"content"`
	Type    string `gorm:"default:text" json:"type"`

	Delivered   bool       `gorm:"default:false" json:"delivered"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Read        bool       `gorm:"default:false;column:read" json:"read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate generates an id for the message if one was not supplied.
func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return
}

// Sender returns the sending participant.
func (m *Message) Sender() Participant {
	return Participant{ID: m.SenderID, Class: m.SenderClass}
}

// Receiver returns the receiving participant.
func (m *Message) Receiver() Participant {
	return Participant{ID: m.ReceiverID, Class: m.ReceiverClass}
}
