// internal/socket/hub.go
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/metrics"
	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/realtime"
	"shiptrack-api-server/internal/shipment"
)

const (
	// Clients ping at least this often; the read deadline is extended on each ping.
	pongWait   = 30 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

// ShipmentViewer is the read side of the shipment service.
type ShipmentViewer interface {
	Get(ctx context.Context, actor shipment.Actor, id string) (*models.Shipment, error)
	List(ctx context.Context, actor shipment.Actor, f shipment.Filter) ([]models.Shipment, error)
}

// Frame is sent by clients to manage their subscriptions.
type Frame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// Reply is every server-to-client frame. Type is "ack" for subscription
// replies and "event" for pushed changes.
type Reply struct {
	Type   string          `json:"type"`
	Action string          `json:"action,omitempty"`
	Topic  string          `json:"topic,omitempty"`
	OK     bool            `json:"ok,omitempty"`
	Error  string          `json:"error,omitempty"`
	Event  *realtime.Event `json:"event,omitempty"`
}

// Hub tracks every websocket client and bridges bus topics to them.
type Hub struct {
	bus       *realtime.Bus
	shipments ShipmentViewer
	log       *zap.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub(bus *realtime.Bus, shipments ShipmentViewer, log *zap.Logger) *Hub {
	return &Hub{
		bus:       bus,
		shipments: shipments,
		log:       log,
		clients:   make(map[*Client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client. Hijacked connections are not tracked by
// http.Server, so this runs alongside its Shutdown.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.cancel()
	}
}

// Authorize decides whether actor may subscribe to topic. Anyone may follow
// the shipments topic (events are filtered per client), a notification
// topic belongs to one user, and a message topic to the shipment's
// participants.
func (h *Hub) Authorize(ctx context.Context, actor shipment.Actor, topic string) error {
	switch {
	case topic == realtime.ShipmentsTopic:
		return nil
	case strings.HasPrefix(topic, "notifications:"):
		if topic != realtime.NotificationsTopic(actor.ID) {
			return apperrors.Forbidden("you can only follow your own notifications")
		}
		return nil
	case strings.HasPrefix(topic, "messages:"):
		id := strings.TrimPrefix(topic, "messages:")
		if id == "" {
			return apperrors.Validation("topic", "shipment id is required")
		}
		_, err := h.shipments.Get(ctx, actor, id)
		return err
	}
	return apperrors.Validation("topic", "unknown topic "+topic)
}

// Serve runs conn until the peer goes away or ctx is cancelled. It owns conn
// and closes it on return.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, actor shipment.Actor) {
	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		hub:     h,
		conn:    conn,
		actor:   actor,
		send:    make(chan Reply, sendBuffer),
		subs:    make(map[string]*realtime.Subscription),
		visible: make(map[string]bool),
		cancel:  cancel,
	}
	h.register(c)
	defer func() {
		cancel()
		c.unsubscribeAll()
		h.unregister(c)
		conn.Close()
	}()

	go c.writePump(ctx)
	c.readPump(ctx)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.WebsocketClients.Inc()
	h.log.Info("websocket client registered", zap.String("user_id", c.actor.ID), zap.String("role", c.actor.Role))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		metrics.WebsocketClients.Dec()
		h.log.Info("websocket client unregistered", zap.String("user_id", c.actor.ID))
	}
}

// Client is one websocket connection and the topics it follows.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	actor  shipment.Actor
	send   chan Reply
	cancel context.CancelFunc

	mu      sync.Mutex
	subs    map[string]*realtime.Subscription
	visible map[string]bool
	closed  bool
}

func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPingHandler(func(data string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket closed unexpectedly", zap.String("user_id", c.actor.ID), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.enqueue(Reply{Type: "ack", Error: "malformed frame"})
			continue
		}
		c.handle(ctx, f)
	}
}

func (c *Client) handle(ctx context.Context, f Frame) {
	reply := Reply{Type: "ack", Action: f.Action, Topic: f.Topic}
	switch f.Action {
	case "subscribe":
		if err := c.subscribe(ctx, f.Topic); err != nil {
			reply.Error = errorText(err)
		} else {
			reply.OK = true
		}
	case "unsubscribe":
		c.unsubscribe(f.Topic)
		reply.OK = true
	case "ping":
		reply.Type = "pong"
		reply.OK = true
	default:
		reply.Error = "unknown action " + f.Action
	}
	c.enqueue(reply)
}

func (c *Client) subscribe(ctx context.Context, topic string) error {
	if err := c.hub.Authorize(ctx, c.actor, topic); err != nil {
		return err
	}
	if topic == realtime.ShipmentsTopic && !staff(c.actor) {
		list, err := c.hub.shipments.List(ctx, c.actor, shipment.Filter{})
		if err != nil {
			return err
		}
		c.mu.Lock()
		for _, s := range list {
			c.visible[s.ID] = true
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if _, ok := c.subs[topic]; ok {
		return nil
	}
	c.subs[topic] = c.hub.bus.Subscribe(topic, c.deliver)
	return nil
}

func (c *Client) unsubscribe(topic string) {
	c.mu.Lock()
	sub, ok := c.subs[topic]
	delete(c.subs, topic)
	c.mu.Unlock()
	if ok {
		sub.Unsubscribe()
	}
}

func (c *Client) unsubscribeAll() {
	c.mu.Lock()
	c.closed = true
	subs := c.subs
	c.subs = make(map[string]*realtime.Subscription)
	c.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

// Topics returns the topics the client currently follows.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for t := range c.subs {
		out = append(out, t)
	}
	return out
}

// deliver runs on the publisher's goroutine and must not block.
func (c *Client) deliver(_ context.Context, ev realtime.Event) {
	if !c.wants(ev) {
		return
	}
	c.enqueue(Reply{Type: "event", Event: &ev})
}

// wants filters the shared shipments topic down to the shipments the actor
// can see. Ownership is learned from inserts and agent assignments.
func (c *Client) wants(ev realtime.Event) bool {
	if ev.Topic != realtime.ShipmentsTopic || staff(c.actor) {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.visible[ev.ID] {
		return true
	}
	key := "customer_id"
	if c.actor.Role == models.RoleAgent {
		key = "agentId"
	}
	if owner, _ := ev.Record[key].(string); owner != "" && owner == c.actor.ID {
		c.visible[ev.ID] = true
		return true
	}
	return false
}

// enqueue drops the client when its buffer is full rather than stalling the
// bus.
func (c *Client) enqueue(r Reply) {
	select {
	case c.send <- r:
	default:
		c.hub.log.Warn("websocket client too slow, disconnecting", zap.String("user_id", c.actor.ID))
		c.cancel()
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			// unblocks readPump
			c.conn.Close()
			return
		case r := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(r); err != nil {
				c.hub.log.Debug("websocket write failed", zap.String("user_id", c.actor.ID), zap.Error(err))
				c.cancel()
				c.conn.Close()
				return
			}
		}
	}
}

func staff(a shipment.Actor) bool {
	return a.Role == models.RoleStaff || a.Role == models.RoleAdmin
}

func errorText(err error) string {
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return err.Error()
}
