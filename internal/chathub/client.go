package chathub

import "consultgo/backend/internal/models"

// Client is the interface for one live connection of any transport type.
// It abstracts the underlying communication mechanism, allowing the gateway
// to manage different client types uniformly.
type Client interface {
	// GetParticipant returns the authenticated participant bound to this
	// connection.
	GetParticipant() models.Participant
	// GetTenantID returns the tenant scope of the credential that
	// authenticated this connection.
	GetTenantID() string
	// GetConversationID returns the conversation the client currently has
	// open, or "" when none.
	GetConversationID() string
	// SetConversationID records which conversation the client is viewing.
	// Set on a successful join.
	SetConversationID(string)

	// GetSendChannel returns the channel the gateway pushes outbound
	// envelopes into. It is a send-only channel.
	GetSendChannel() chan<- models.Envelope

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts down the client's connection and associated channels.
	Close()
}
