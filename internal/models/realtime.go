package models

import "encoding/json"

// Events a client may send over the realtime protocol.
const (
	EventConversationJoin    = "conversation:join"
	EventConversationRequest = "conversation:request"
	EventConversationAccept  = "conversation:accept"
	EventConversationReject  = "conversation:reject"
	EventConversationCancel  = "conversation:cancel"
	EventConversationEnd     = "conversation:end"
	EventMessageSend         = "message:send"
	EventTypingStart         = "typing:start"
	EventTypingStop          = "typing:stop"
)

// Events the gateway pushes to clients.
const (
	EventConnected      = "connected"
	EventMessageNew     = "message:new"
	EventPresenceUpdate = "presence:update"
	EventReadReceipt    = "message:read"
	EventTyping         = "typing"
	EventConversation   = "conversation:update"
)

// ClientEvent is the inbound frame of the realtime protocol. Data is kept
// raw so each handler can decode its own payload shape.
type ClientEvent struct {
	Event     string          `json:"event"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ErrorBody is the error half of a response envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the outbound frame: either the acknowledgement of a client
// call (RequestID echoed, Success set) or a server push (Success true,
// no RequestID).
type Envelope struct {
	Event     string      `json:"event"`
	RequestID string      `json:"request_id,omitempty"`
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
}

// BroadcastEvent travels over the pub/sub channel between the state machine
// and the gateway's fan-out loop. An empty To list addresses every live
// connection; otherwise each listed participant's connections are targeted.
type BroadcastEvent struct {
	To       []Participant `json:"to,omitempty"`
	Envelope Envelope      `json:"envelope"`
}

// Inbound payloads.

type JoinPayload struct {
	ConversationID string `json:"conversation_id"`
}

type RequestPayload struct {
	ResponderID string `json:"responder_id"`
	RequesterID string `json:"requester_id"`
}

type AcceptPayload struct {
	ConversationID string `json:"conversation_id"`
}

type RejectPayload struct {
	ConversationID string `json:"conversation_id"`
	Reason         string `json:"reason,omitempty"`
}

type SendPayload struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Type           string `json:"type,omitempty"`
}

type TypingPayload struct {
	ConversationID string `json:"conversation_id"`
}

// Outbound payloads.

type ConnectedPayload struct {
	Participant Participant `json:"participant"`
	TenantID    string      `json:"tenant_id,omitempty"`
}

type PresencePayload struct {
	ResponderID string `json:"responder_id"`
	Status      string `json:"status"`
}

type TypingEventPayload struct {
	ConversationID string      `json:"conversation_id"`
	From           Participant `json:"from"`
	Typing         bool        `json:"typing"`
}

type ReadReceiptPayload struct {
	ConversationID string      `json:"conversation_id"`
	Reader         Participant `json:"reader"`
}
