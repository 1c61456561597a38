// internal/notification/dispatcher.go
package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/metrics"
	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/realtime"
)

type Repository interface {
	Insert(ctx context.Context, n *models.Notification) error
	// ListByUser returns the user's notifications newest first.
	ListByUser(ctx context.Context, userID string) ([]models.Notification, error)
	// MarkRead reports whether the notification changed from unread to read.
	MarkRead(ctx context.Context, userID, id string) (bool, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// Directory resolves recipients.
type Directory interface {
	Get(ctx context.Context, userID string) (*models.UserProfile, error)
	ListByRole(ctx context.Context, roles ...string) ([]models.UserProfile, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

// SMSSender is an optional second channel for every notification.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, text string) error
}

// Dispatcher is the only producer of notification records.
type Dispatcher struct {
	repo   Repository
	dir    Directory
	events Publisher
	sms    SMSSender
	log    *zap.Logger
	now    func() time.Time
}

func NewDispatcher(repo Repository, dir Directory, events Publisher, log *zap.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, dir: dir, events: events, log: log, now: time.Now}
}

// UseSMS enables SMS fan-out to the recipient's profile phone.
func (d *Dispatcher) UseSMS(s SMSSender) { d.sms = s }

func (d *Dispatcher) Notify(ctx context.Context, n models.Notification) (*models.Notification, error) {
	if strings.TrimSpace(n.UserID) == "" {
		return nil, apperrors.Validation("user_id", "notification needs a recipient")
	}
	if strings.TrimSpace(n.Title) == "" {
		return nil, apperrors.Validation("title", "notification needs a title")
	}
	switch n.Type {
	case models.NotificationInfo, models.NotificationSuccess, models.NotificationWarning:
	case "":
		n.Type = models.NotificationInfo
	default:
		return nil, apperrors.Validation("type", "unknown notification type "+n.Type)
	}
	n.ID = uuid.NewString()
	n.Read = false
	n.CreatedAt = d.now().UTC()

	if err := d.repo.Insert(ctx, &n); err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}
	metrics.NotificationsTotal.WithLabelValues(n.Type).Inc()

	ev, err := realtime.NewEvent(realtime.NotificationsTopic(n.UserID), realtime.EventInsert, n.ID, n)
	if err == nil {
		err = d.events.Publish(ctx, ev)
	}
	if err != nil {
		d.log.Warn("publish notification", zap.String("user_id", n.UserID), zap.Error(err))
	}

	d.sendSMS(ctx, n)
	return &n, nil
}

func (d *Dispatcher) sendSMS(ctx context.Context, n models.Notification) {
	if d.sms == nil {
		return
	}
	p, err := d.dir.Get(ctx, n.UserID)
	if err != nil || p.Phone == "" {
		return
	}
	if err := d.sms.SendSMS(ctx, p.Phone, n.Title+": "+n.Message); err != nil {
		d.log.Warn("sms delivery failed", zap.String("user_id", n.UserID), zap.Error(err))
	}
}

// List returns the user's notifications and how many are unread.
func (d *Dispatcher) List(ctx context.Context, userID string) ([]models.Notification, int, error) {
	items, err := d.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return items, countUnread(items), nil
}

// MarkAsRead returns the caller's unread count afterwards.
func (d *Dispatcher) MarkAsRead(ctx context.Context, userID, id string) (int, error) {
	if _, err := d.repo.MarkRead(ctx, userID, id); err != nil {
		return 0, err
	}
	_, unread, err := d.List(ctx, userID)
	return unread, err
}

// ClearNotifications deletes everything the user owns.
func (d *Dispatcher) ClearNotifications(ctx context.Context, userID string) error {
	n, err := d.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return err
	}
	d.log.Debug("notifications cleared", zap.String("user_id", userID), zap.Int64("count", n))
	return nil
}

type notice struct {
	title   string
	kind    string
	message func(s models.Shipment) string
}

var customerNotices = map[models.ShipmentStatus]notice{
	models.StatusPendingApproval: {"Shipment created", models.NotificationInfo, func(s models.Shipment) string {
		return fmt.Sprintf("Your shipment %s to %s is awaiting approval.", s.ID, s.ToCity)
	}},
	models.StatusApproved: {"Shipment approved", models.NotificationSuccess, func(s models.Shipment) string {
		return fmt.Sprintf("Your shipment %s has been approved.", s.ID)
	}},
	models.StatusAssigned: {"Agent assigned", models.NotificationInfo, func(s models.Shipment) string {
		return fmt.Sprintf("%s will handle your shipment %s.", s.AgentName, s.ID)
	}},
	models.StatusAccepted: {"Request accepted", models.NotificationInfo, func(s models.Shipment) string {
		return fmt.Sprintf("%s accepted your shipment %s.", s.AgentName, s.ID)
	}},
	models.StatusPickedUp: {"Package picked up", models.NotificationInfo, func(s models.Shipment) string {
		return fmt.Sprintf("Your package %s has been picked up.", s.ID)
	}},
	models.StatusInTransit: {"Shipment in transit", models.NotificationInfo, func(s models.Shipment) string {
		return fmt.Sprintf("Your package %s is on the way to %s.", s.ID, s.ToCity)
	}},
	models.StatusDelivered: {"Shipment delivered", models.NotificationSuccess, func(s models.Shipment) string {
		return fmt.Sprintf("Your package %s was delivered to %s.", s.ID, s.RecipientName)
	}},
	models.StatusCancelled: {"Shipment rejected", models.NotificationWarning, func(s models.Shipment) string {
		if s.RejectionReason != "" {
			return fmt.Sprintf("Your shipment %s was rejected: %s.", s.ID, s.RejectionReason)
		}
		return fmt.Sprintf("Your shipment %s was rejected.", s.ID)
	}},
}

// ShipmentChanged notifies the parties of a committed transition: the
// customer always, the agent on assignment and staff on creation.
func (d *Dispatcher) ShipmentChanged(ctx context.Context, s models.Shipment, prev models.ShipmentStatus) {
	var out []models.Notification
	if tpl, ok := customerNotices[s.Status]; ok && s.CustomerID != "" {
		out = append(out, models.Notification{
			UserID: s.CustomerID, Title: tpl.title, Message: tpl.message(s), Type: tpl.kind, ShipmentID: s.ID,
		})
	}
	switch s.Status {
	case models.StatusAssigned:
		out = append(out, models.Notification{
			UserID:     s.AgentID,
			Title:      "New delivery request",
			Message:    fmt.Sprintf("You have been assigned shipment %s from %s to %s.", s.ID, s.FromCity, s.ToCity),
			Type:       models.NotificationInfo,
			ShipmentID: s.ID,
		})
	case models.StatusPendingApproval:
		if prev == "" {
			out = append(out, d.toStaff(ctx, "New shipment",
				fmt.Sprintf("Shipment %s from %s to %s is waiting for approval.", s.ID, s.FromCity, s.ToCity),
				models.NotificationInfo, s.ID)...)
		}
	}
	d.notifyAll(ctx, out)
}

func (d *Dispatcher) IssueReported(ctx context.Context, i models.Issue) {
	d.notifyAll(ctx, d.toStaff(ctx, "Issue reported",
		fmt.Sprintf("A %s issue was reported on shipment %s.", strings.ReplaceAll(i.IssueType, "_", " "), i.ShipmentID),
		models.NotificationWarning, i.ShipmentID))
}

func (d *Dispatcher) IssueResolved(ctx context.Context, i models.Issue) {
	d.notifyAll(ctx, []models.Notification{{
		UserID:     i.UserID,
		Title:      "Issue resolved",
		Message:    fmt.Sprintf("Your issue on shipment %s has been resolved.", i.ShipmentID),
		Type:       models.NotificationSuccess,
		ShipmentID: i.ShipmentID,
	}})
}

func (d *Dispatcher) MessageReceived(ctx context.Context, m models.Message) {
	d.notifyAll(ctx, []models.Notification{{
		UserID:     m.ReceiverID,
		Title:      "New message",
		Message:    fmt.Sprintf("You have a new message about shipment %s.", m.ShipmentID),
		Type:       models.NotificationInfo,
		ShipmentID: m.ShipmentID,
	}})
}

func (d *Dispatcher) toStaff(ctx context.Context, title, msg, kind, shipmentID string) []models.Notification {
	staff, err := d.dir.ListByRole(ctx, models.RoleStaff, models.RoleAdmin)
	if err != nil {
		d.log.Warn("list staff recipients", zap.Error(err))
		return nil
	}
	out := make([]models.Notification, 0, len(staff))
	for _, p := range staff {
		out = append(out, models.Notification{UserID: p.ID, Title: title, Message: msg, Type: kind, ShipmentID: shipmentID})
	}
	return out
}

// notifyAll never fails the caller; the triggering change is already stored.
func (d *Dispatcher) notifyAll(ctx context.Context, ns []models.Notification) {
	for _, n := range ns {
		if _, err := d.Notify(ctx, n); err != nil {
			d.log.Error("notification dropped",
				zap.String("user_id", n.UserID),
				zap.String("title", n.Title),
				zap.Error(err),
			)
		}
	}
}

func countUnread(items []models.Notification) int {
	n := 0
	for _, it := range items {
		if !it.Read {
			n++
		}
	}
	return n
}
