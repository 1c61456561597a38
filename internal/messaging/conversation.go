// internal/messaging/conversation.go
package messaging

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/realtime"
)

// Conversation is a client's local copy of one shipment's messages. Messages
// it sends are shown immediately and reconciled with the stored copy by
// client id; every message appears at most once.
type Conversation struct {
	shipmentID string
	log        *zap.Logger

	mu       sync.Mutex
	messages []models.Message
	ids      map[string]struct{}
	pending  map[string]struct{}
}

func NewConversation(shipmentID string, log *zap.Logger) *Conversation {
	return &Conversation{
		shipmentID: shipmentID,
		log:        log,
		ids:        make(map[string]struct{}),
		pending:    make(map[string]struct{}),
	}
}

// AppendOptimistic shows an unsent message. m.ClientID must be set.
func (c *Conversation) AppendOptimistic(m models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.ClientID == "" {
		return
	}
	if _, ok := c.pending[m.ClientID]; ok {
		return
	}
	m.ID = ""
	c.pending[m.ClientID] = struct{}{}
	c.messages = append(c.messages, m)
}

// Apply folds in a stored message. It reports whether the view changed.
func (c *Conversation) Apply(m models.Message) bool {
	if m.ShipmentID != c.shipmentID || m.ID == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apply(m)
}

func (c *Conversation) apply(m models.Message) bool {
	if _, seen := c.ids[m.ID]; seen {
		return false
	}
	c.ids[m.ID] = struct{}{}
	if _, ok := c.pending[m.ClientID]; ok && m.ClientID != "" {
		delete(c.pending, m.ClientID)
		for i := range c.messages {
			if c.messages[i].ID == "" && c.messages[i].ClientID == m.ClientID {
				c.messages[i] = m
				SortChronological(c.messages)
				return true
			}
		}
	}
	c.messages = append(c.messages, m)
	SortChronological(c.messages)
	return true
}

// Load replaces stored messages with a fetched list; still-unsent optimistic
// entries survive unless the list already contains them.
func (c *Conversation) Load(list []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var keep []models.Message
	for _, m := range c.messages {
		if m.ID == "" {
			keep = append(keep, m)
		}
	}
	c.messages = keep
	c.ids = make(map[string]struct{}, len(list))
	for _, m := range list {
		if m.ShipmentID == c.shipmentID && m.ID != "" {
			c.apply(m)
		}
	}
}

func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages...)
}

func (c *Conversation) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Conversation) Attach(bus *realtime.Bus) *realtime.Subscription {
	return bus.Subscribe(realtime.MessagesTopic(c.shipmentID), func(_ context.Context, ev realtime.Event) {
		if ev.Type != realtime.EventInsert {
			return
		}
		var m models.Message
		if err := ev.Decode(&m); err != nil {
			c.log.Warn("undecodable message event", zap.String("id", ev.ID), zap.Error(err))
			return
		}
		c.Apply(m)
	})
}
