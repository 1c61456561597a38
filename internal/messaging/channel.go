// internal/messaging/channel.go
package messaging

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/metrics"
	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/realtime"
	"shiptrack-api-server/internal/shipment"
)

const maxContent = 2000

type Repository interface {
	Insert(ctx context.Context, m *models.Message) error
	ListByShipment(ctx context.Context, shipmentID string) ([]models.Message, error)
}

type ShipmentLookup interface {
	Get(ctx context.Context, id string) (*models.Shipment, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

type Notifier interface {
	MessageReceived(ctx context.Context, m models.Message)
}

type SendRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	ClientID   string `json:"client_id"`
}

// Channel is the per-shipment conversation between the customer, the
// assigned agent and staff.
type Channel struct {
	repo      Repository
	shipments ShipmentLookup
	events    Publisher
	notifier  Notifier
	log       *zap.Logger
	now       func() time.Time
}

func NewChannel(repo Repository, shipments ShipmentLookup, events Publisher, notifier Notifier, log *zap.Logger) *Channel {
	return &Channel{repo: repo, shipments: shipments, events: events, notifier: notifier, log: log, now: time.Now}
}

func (c *Channel) Send(ctx context.Context, actor shipment.Actor, shipmentID string, req SendRequest) (*models.Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, apperrors.Validation("content", "message cannot be empty")
	}
	if utf8.RuneCountInString(content) > maxContent {
		return nil, apperrors.Validation("content", "message is too long")
	}
	s, err := c.participant(ctx, actor, shipmentID)
	if err != nil {
		return nil, err
	}
	receiver := req.ReceiverID
	if receiver == "" {
		receiver = counterpart(actor, s)
	}
	if receiver == "" {
		return nil, apperrors.Validation("receiver_id", "no one to send this message to yet")
	}
	if receiver == actor.ID {
		return nil, apperrors.Validation("receiver_id", "cannot message yourself")
	}

	m := models.Message{
		ID:         uuid.NewString(),
		ShipmentID: s.ID,
		SenderID:   actor.ID,
		ReceiverID: receiver,
		Content:    content,
		ClientID:   req.ClientID,
		CreatedAt:  c.now().UTC(),
	}
	if err := c.repo.Insert(ctx, &m); err != nil {
		return nil, err
	}
	metrics.MessagesTotal.Inc()

	ev, err := realtime.NewEvent(realtime.MessagesTopic(s.ID), realtime.EventInsert, m.ID, m)
	if err == nil {
		err = c.events.Publish(ctx, ev)
	}
	if err != nil {
		c.log.Warn("publish message", zap.String("shipment_id", s.ID), zap.Error(err))
	}
	if c.notifier != nil {
		c.notifier.MessageReceived(ctx, m)
	}
	return &m, nil
}

// Fetch returns the conversation oldest first.
func (c *Channel) Fetch(ctx context.Context, actor shipment.Actor, shipmentID string) ([]models.Message, error) {
	if _, err := c.participant(ctx, actor, shipmentID); err != nil {
		return nil, err
	}
	list, err := c.repo.ListByShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	SortChronological(list)
	return list, nil
}

func (c *Channel) participant(ctx context.Context, actor shipment.Actor, shipmentID string) (*models.Shipment, error) {
	s, err := c.shipments.Get(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleStaff, models.RoleAdmin:
		return s, nil
	case models.RoleCustomer:
		if s.CustomerID == actor.ID {
			return s, nil
		}
	case models.RoleAgent:
		if s.AgentID == actor.ID {
			return s, nil
		}
	}
	return nil, apperrors.Forbidden("not a participant in shipment " + shipmentID)
}

func counterpart(actor shipment.Actor, s *models.Shipment) string {
	if actor.ID == s.CustomerID {
		return s.AgentID
	}
	return s.CustomerID
}

func SortChronological(list []models.Message) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
