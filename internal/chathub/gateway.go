// Package chathub is the realtime gateway: it binds authenticated
// connections to the registry, dispatches the event protocol to the
// conversation state machine, and fans results out to the affected
// participants.
package chathub

import (
	"context"
	"encoding/json"

	"consultgo/backend/internal/apperrors"
	"consultgo/backend/internal/auth"
	"consultgo/backend/internal/conversation"
	"consultgo/backend/internal/models"
	"consultgo/backend/internal/presence"
	"consultgo/backend/internal/storage"
	"consultgo/backend/pkg/logger"
	"consultgo/backend/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notifier is the degraded-delivery collaborator: pinging a responder who
// has no live connection when a request arrives. Failures are logged, never
// surfaced.
type Notifier interface {
	NotifyRequest(ctx context.Context, responder *models.Responder, conv *models.Conversation)
}

// Gateway coordinates the registry, the state machine and the pub/sub
// fan-out loop.
type Gateway struct {
	Registry      *Registry
	Storage       storage.Store
	Conversations *conversation.Service
	Tracker       *presence.Tracker
	Notifier      Notifier
	Log           *logger.Logger

	RegisterCh   chan Client
	UnregisterCh chan Client
	PubSubCh     chan models.BroadcastEvent
}

// NewGateway constructs a Gateway. Call Run in a goroutine to start the
// fan-out loop.
func NewGateway(reg *Registry, store storage.Store, convs *conversation.Service, tracker *presence.Tracker, notifier Notifier, log *logger.Logger) *Gateway {
	return &Gateway{
		Registry:      reg,
		Storage:       store,
		Conversations: convs,
		Tracker:       tracker,
		Notifier:      notifier,
		Log:           log,
		RegisterCh:    make(chan Client),
		UnregisterCh:  make(chan Client),
		PubSubCh:      make(chan models.BroadcastEvent, 64),
	}
}

// Run services registration, teardown and pub/sub fan-out. Protocol calls
// do not pass through this loop; they are handled on each connection's own
// read pump so a slow store write never stalls unrelated connections.
func (g *Gateway) Run(ctx context.Context) {
	for {
		select {
		case client := <-g.RegisterCh:
			g.handleRegister(ctx, client)
		case client := <-g.UnregisterCh:
			g.handleUnregister(ctx, client)
		case evt := <-g.PubSubCh:
			g.fanOut(evt)
		case <-ctx.Done():
			return
		}
	}
}

// EventSubscriber is satisfied by the redis-backed store. Test doubles
// without a pub/sub backend simply do not implement it.
type EventSubscriber interface {
	SubscribeEvents(ctx context.Context) *redis.PubSub
}

// StartPubSubListener wires the redis broadcast channel into the fan-out
// loop. The subscription is the seam a distributed registry would replace.
func (g *Gateway) StartPubSubListener(ctx context.Context) {
	sub, okSub := g.Storage.(EventSubscriber)
	if !okSub {
		return
	}
	go func() {
		pubsub := sub.SubscribeEvents(ctx)
		defer pubsub.Close()

		for msg := range pubsub.Channel() {
			var evt models.BroadcastEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				g.Log.Warn("malformed broadcast payload", zap.Error(err))
				continue
			}
			g.enqueue(evt)
		}
	}()
}

func (g *Gateway) handleRegister(ctx context.Context, client Client) {
	p := client.GetParticipant()
	total := g.Registry.Add(client)
	metrics.ConnectionsActive.WithLabelValues(string(p.Class)).Inc()

	// Acknowledgement carrying the principal's identity. A client arriving
	// with a full buffer loses the ack instead of stalling the loop.
	select {
	case client.GetSendChannel() <- models.Envelope{
		Event:   models.EventConnected,
		Success: true,
		Data:    models.ConnectedPayload{Participant: p},
	}:
	default:
		g.Log.Warn("dropping connected ack for slow client",
			zap.String("participant", p.ID))
	}

	if p.Class == models.ClassResponder && total == 1 {
		status, err := g.Tracker.HandleConnect(ctx, p.ID)
		if err != nil {
			g.Log.Error("presence update on connect failed",
				zap.String("responder_id", p.ID), zap.Error(err))
			return
		}
		g.broadcastPresence(ctx, p.ID, status)
	}
	g.Log.Info("connection registered",
		zap.String("participant", p.ID), zap.String("class", string(p.Class)),
		zap.Int("connections", total))
}

func (g *Gateway) handleUnregister(ctx context.Context, client Client) {
	p := client.GetParticipant()
	remaining := g.Registry.Remove(client)
	metrics.ConnectionsActive.WithLabelValues(string(p.Class)).Dec()
	client.Close()

	// Last live connection for a responder forces offline.
	if p.Class == models.ClassResponder && remaining == 0 {
		status, err := g.Tracker.HandleDisconnect(ctx, p.ID)
		if err != nil {
			g.Log.Error("presence update on disconnect failed",
				zap.String("responder_id", p.ID), zap.Error(err))
			return
		}
		g.broadcastPresence(ctx, p.ID, status)
	}
	g.Log.Info("connection unregistered",
		zap.String("participant", p.ID), zap.Int("connections", remaining))
}

// fanOut pushes an envelope to every targeted connection. A full client
// buffer drops the push for that connection; the durable record stays in
// the session store, so a reconnecting client reconciles on its next join.
func (g *Gateway) fanOut(evt models.BroadcastEvent) {
	var targets []Client
	if len(evt.To) == 0 {
		targets = g.Registry.All()
	} else {
		for _, p := range evt.To {
			targets = append(targets, g.Registry.Connections(p)...)
		}
	}

	for _, client := range targets {
		select {
		case client.GetSendChannel() <- evt.Envelope:
		default:
			g.Log.Warn("dropping push for slow client",
				zap.String("participant", client.GetParticipant().ID),
				zap.String("event", evt.Envelope.Event))
		}
	}
}

// RecomputePresence re-derives and broadcasts a responder's presence after
// an out-of-band capacity change (e.g. the profile collaborator raising
// max_conversations).
func (g *Gateway) RecomputePresence(ctx context.Context, responderID string) (string, error) {
	live := g.Registry.HasConnections(models.Participant{ID: responderID, Class: models.ClassResponder})
	var (
		status string
		err    error
	)
	if live {
		status, err = g.Tracker.HandleConnect(ctx, responderID)
	} else {
		status, err = g.Tracker.HandleDisconnect(ctx, responderID)
	}
	if err != nil {
		return "", err
	}
	g.broadcastPresence(ctx, responderID, status)
	return status, nil
}

func (g *Gateway) broadcastPresence(ctx context.Context, responderID, status string) {
	g.publish(ctx, models.BroadcastEvent{
		Envelope: models.Envelope{
			Event:   models.EventPresenceUpdate,
			Success: true,
			Data:    models.PresencePayload{ResponderID: responderID, Status: status},
		},
	})
}

// publish routes an event through the pub/sub channel so that every gateway
// instance subscribed to it (this process included) fans it out.
func (g *Gateway) publish(ctx context.Context, evt models.BroadcastEvent) {
	if err := g.Storage.PublishEvent(ctx, evt); err != nil {
		g.Log.Warn("publish failed, falling back to local fan-out", zap.Error(err))
		g.enqueue(evt)
	}
}

// enqueue feeds the local fan-out loop directly.
func (g *Gateway) enqueue(evt models.BroadcastEvent) {
	select {
	case g.PubSubCh <- evt:
	default:
		g.Log.Warn("pubsub channel full, dropping event",
			zap.String("event", evt.Envelope.Event))
	}
}

// Dispatch handles one inbound protocol event and returns the
// acknowledgement envelope for the originating call. Guard and capacity
// failures are terminal for the attempt; nothing here retries.
func (g *Gateway) Dispatch(client Client, evt models.ClientEvent) models.Envelope {
	ctx := context.Background()
	caller := client.GetParticipant()

	fail := func(err error) models.Envelope {
		return models.Envelope{
			Event:     evt.Event,
			RequestID: evt.RequestID,
			Success:   false,
			Error:     &models.ErrorBody{Code: apperrors.Code(err), Message: err.Error()},
		}
	}
	ok := func(data interface{}) models.Envelope {
		return models.Envelope{
			Event:     evt.Event,
			RequestID: evt.RequestID,
			Success:   true,
			Data:      data,
		}
	}

	switch evt.Event {
	case models.EventConversationJoin:
		var p models.JoinPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil || p.ConversationID == "" {
			return fail(apperrors.ErrValidation)
		}
		conv, marked, err := g.Conversations.Join(ctx, g.principal(client), p.ConversationID)
		if err != nil {
			return fail(err)
		}
		client.SetConversationID(conv.ID)
		if marked > 0 {
			if counterpart, found := conv.Counterpart(caller.ID); found {
				g.publish(ctx, models.BroadcastEvent{
					To: []models.Participant{counterpart},
					Envelope: models.Envelope{
						Event:   models.EventReadReceipt,
						Success: true,
						Data:    models.ReadReceiptPayload{ConversationID: conv.ID, Reader: caller},
					},
				})
			}
		}
		return ok(conv)

	case models.EventConversationRequest:
		var p models.RequestPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			return fail(apperrors.ErrValidation)
		}
		conv, created, err := g.Conversations.Request(ctx, g.principal(client), p.ResponderID, p.RequesterID)
		if err != nil {
			return fail(err)
		}
		if created {
			g.notifyResponder(ctx, conv)
		}
		return ok(conv)

	case models.EventConversationAccept:
		var p models.AcceptPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil || p.ConversationID == "" {
			return fail(apperrors.ErrValidation)
		}
		conv, responder, err := g.Conversations.Accept(ctx, g.principal(client), p.ConversationID)
		if err != nil {
			return fail(err)
		}
		g.pushConversationUpdate(ctx, conv)
		g.broadcastPresence(ctx, responder.ID, responder.OnlineStatus)
		return ok(conv)

	case models.EventConversationReject:
		var p models.RejectPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil || p.ConversationID == "" {
			return fail(apperrors.ErrValidation)
		}
		conv, err := g.Conversations.Reject(ctx, g.principal(client), p.ConversationID, p.Reason)
		if err != nil {
			return fail(err)
		}
		g.pushConversationUpdate(ctx, conv)
		return ok(conv)

	case models.EventConversationCancel:
		var p models.JoinPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil || p.ConversationID == "" {
			return fail(apperrors.ErrValidation)
		}
		conv, err := g.Conversations.Cancel(ctx, g.principal(client), p.ConversationID)
		if err != nil {
			return fail(err)
		}
		g.pushConversationUpdate(ctx, conv)
		return ok(conv)

	case models.EventConversationEnd:
		var p models.JoinPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil || p.ConversationID == "" {
			return fail(apperrors.ErrValidation)
		}
		conv, responder, session, err := g.Conversations.End(ctx, g.principal(client), p.ConversationID)
		if err != nil {
			return fail(err)
		}
		g.pushConversationUpdate(ctx, conv)
		g.broadcastPresence(ctx, responder.ID, responder.OnlineStatus)
		return ok(map[string]interface{}{"conversation": conv, "session": session})

	case models.EventMessageSend:
		var p models.SendPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil || p.ConversationID == "" {
			return fail(apperrors.ErrValidation)
		}
		msg, _, err := g.Conversations.SendMessage(ctx, g.principal(client), p.ConversationID, p.Content, p.Type)
		if err != nil {
			return fail(err)
		}
		g.publish(ctx, models.BroadcastEvent{
			To: []models.Participant{msg.Sender(), msg.Receiver()},
			Envelope: models.Envelope{
				Event:   models.EventMessageNew,
				Success: true,
				Data:    msg,
			},
		})
		return ok(msg)

	case models.EventTypingStart, models.EventTypingStop:
		var p models.TypingPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil || p.ConversationID == "" {
			return fail(apperrors.ErrValidation)
		}
		conv, err := g.Storage.GetConversation(ctx, p.ConversationID)
		if err != nil {
			return fail(err)
		}
		counterpart, found := conv.Counterpart(caller.ID)
		if !found {
			return fail(apperrors.ErrForbidden)
		}
		g.publish(ctx, models.BroadcastEvent{
			To: []models.Participant{counterpart},
			Envelope: models.Envelope{
				Event:   models.EventTyping,
				Success: true,
				Data: models.TypingEventPayload{
					ConversationID: conv.ID,
					From:           caller,
					Typing:         evt.Event == models.EventTypingStart,
				},
			},
		})
		return ok(nil)
	}

	return fail(apperrors.ErrValidation)
}

// pushConversationUpdate notifies both parties that the conversation
// changed state.
func (g *Gateway) pushConversationUpdate(ctx context.Context, conv *models.Conversation) {
	g.publish(ctx, models.BroadcastEvent{
		To: []models.Participant{
			{ID: conv.ResponderID, Class: models.ClassResponder},
			{ID: conv.RequesterID, Class: models.ClassRequester},
		},
		Envelope: models.Envelope{
			Event:   models.EventConversation,
			Success: true,
			Data:    conv,
		},
	})
}

// notifyResponder pushes a new request to the responder's connections, or
// falls back to the out-of-band notifier when none are live.
func (g *Gateway) notifyResponder(ctx context.Context, conv *models.Conversation) {
	responderP := models.Participant{ID: conv.ResponderID, Class: models.ClassResponder}
	if g.Registry.HasConnections(responderP) {
		g.publish(ctx, models.BroadcastEvent{
			To: []models.Participant{responderP},
			Envelope: models.Envelope{
				Event:   models.EventConversation,
				Success: true,
				Data:    conv,
			},
		})
		return
	}
	if g.Notifier == nil {
		return
	}
	responder, err := g.Storage.GetResponder(ctx, conv.ResponderID)
	if err != nil {
		g.Log.Warn("responder lookup for notification failed",
			zap.String("responder_id", conv.ResponderID), zap.Error(err))
		return
	}
	g.Notifier.NotifyRequest(ctx, responder, conv)
}

func (g *Gateway) principal(client Client) auth.Principal {
	return auth.Principal{
		Participant: client.GetParticipant(),
		TenantID:    client.GetTenantID(),
	}
}
