package chathub

import (
	"encoding/json"
	"sync"
	"time"

	"consultgo/backend/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	Participant models.Participant
	TenantID    string
	Conn        *websocket.Conn
	Hub         *Gateway
	Send        chan models.Envelope

	mu     sync.RWMutex
	convID string
}

func (c *WebSocketClient) GetParticipant() models.Participant { return c.Participant }

func (c *WebSocketClient) GetTenantID() string { return c.TenantID }

func (c *WebSocketClient) GetConversationID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.convID
}

func (c *WebSocketClient) SetConversationID(id string) {
	c.mu.Lock()
	c.convID = id
	c.mu.Unlock()
}

func (c *WebSocketClient) GetSendChannel() chan<- models.Envelope { return c.Send }

// Run starts the read and write pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the Send channel, which stops the write pump and the
// underlying connection with it.
func (c *WebSocketClient) Close() {
	close(c.Send)
}

// readPump decodes inbound protocol events and dispatches each one
// synchronously, writing the resulting acknowledgement envelope back.
// Events from one connection are therefore handled in arrival order, while
// different connections proceed in parallel.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.UnregisterCh <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.Log.Warn("websocket read error",
					zap.String("participant", c.Participant.ID), zap.Error(err))
			}
			break
		}

		var evt models.ClientEvent
		if err := json.Unmarshal(raw, &evt); err != nil {
			c.Send <- models.Envelope{
				Event:   "error",
				Success: false,
				Error:   &models.ErrorBody{Code: "VALIDATION_FAILED", Message: "malformed event frame"},
			}
			continue
		}

		resp := c.Hub.Dispatch(c, evt)
		c.Send <- resp
	}
}

// writePump drains the Send channel into the websocket and keeps the
// connection alive with periodic pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(env)
			if err != nil {
				c.Hub.Log.Warn("failed to encode envelope",
					zap.String("participant", c.Participant.ID), zap.Error(err))
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
