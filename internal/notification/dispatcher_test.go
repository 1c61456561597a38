package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/apperrors"
	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/notification"
	"shiptrack-api-server/internal/realtime"
	"shiptrack-api-server/internal/storage/memory"
)

type fakeSMS struct {
	mu   sync.Mutex
	sent map[string][]string
	err  error
}

func (f *fakeSMS) SendSMS(_ context.Context, phone, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = make(map[string][]string)
	}
	f.sent[phone] = append(f.sent[phone], text)
	return f.err
}

type dispatcherFixture struct {
	d        *notification.Dispatcher
	repo     *memory.NotificationRepo
	profiles *memory.ProfileRepo
	bus      *realtime.Bus
}

func newDispatcher(t *testing.T) dispatcherFixture {
	t.Helper()
	ctx := context.Background()
	profiles := memory.NewProfileRepo()
	for _, p := range []models.UserProfile{
		{ID: "cust-1", Email: "kwame@example.com", Name: "Kwame Mensah", Phone: "+233201110001", Role: models.RoleCustomer},
		{ID: "AGT001", Email: "kofi@example.com", Name: "Kofi Boateng", Phone: "+233205550123", Role: models.RoleAgent},
		{ID: "staff-1", Email: "desk@example.com", Name: "Front Desk", Role: models.RoleStaff},
		{ID: "admin-1", Email: "admin@example.com", Name: "Admin", Role: models.RoleAdmin},
	} {
		p := p
		require.NoError(t, profiles.Insert(ctx, &p))
	}
	repo := memory.NewNotificationRepo()
	bus := realtime.NewBus(zap.NewNop())
	return dispatcherFixture{
		d:        notification.NewDispatcher(repo, profiles, bus, zap.NewNop()),
		repo:     repo,
		profiles: profiles,
		bus:      bus,
	}
}

func shipmentAt(status models.ShipmentStatus) models.Shipment {
	return models.Shipment{
		ID: "SHP006", CustomerID: "cust-1", FromCity: "Accra", ToCity: "Kumasi",
		AgentID: "AGT001", AgentName: "Kofi Boateng", RecipientName: "Yaa Asantewaa", Status: status,
	}
}

func TestNotifyStoresAndPublishes(t *testing.T) {
	f := newDispatcher(t)
	ctx := context.Background()
	var pushed []realtime.Event
	f.bus.Subscribe(realtime.NotificationsTopic("cust-1"), func(_ context.Context, ev realtime.Event) {
		pushed = append(pushed, ev)
	})

	n, err := f.d.Notify(ctx, models.Notification{UserID: "cust-1", Title: "Hello", Message: "World"})
	require.NoError(t, err)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, models.NotificationInfo, n.Type)
	assert.False(t, n.Read)

	items, unread, err := f.d.List(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, unread)

	require.Len(t, pushed, 1)
	assert.Equal(t, realtime.EventInsert, pushed[0].Type)
	assert.Equal(t, n.ID, pushed[0].ID)
}

func TestNotifyValidates(t *testing.T) {
	f := newDispatcher(t)
	ctx := context.Background()

	_, err := f.d.Notify(ctx, models.Notification{Title: "x"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.d.Notify(ctx, models.Notification{UserID: "cust-1"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = f.d.Notify(ctx, models.Notification{UserID: "cust-1", Title: "x", Type: "urgent"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestShipmentCreatedNotifiesCustomerAndStaff(t *testing.T) {
	f := newDispatcher(t)
	ctx := context.Background()

	f.d.ShipmentChanged(ctx, shipmentAt(models.StatusPendingApproval), "")

	for _, uid := range []string{"cust-1", "staff-1", "admin-1"} {
		items, _, err := f.d.List(ctx, uid)
		require.NoError(t, err)
		assert.Len(t, items, 1, uid)
	}
	items, _, _ := f.d.List(ctx, "AGT001")
	assert.Empty(t, items)
}

func TestAssignmentNotifiesAgent(t *testing.T) {
	f := newDispatcher(t)
	ctx := context.Background()

	f.d.ShipmentChanged(ctx, shipmentAt(models.StatusAssigned), models.StatusApproved)

	items, unread, err := f.d.List(ctx, "AGT001")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, unread)
	assert.Equal(t, "New delivery request", items[0].Title)
	assert.Contains(t, items[0].Message, "SHP006")

	cust, _, _ := f.d.List(ctx, "cust-1")
	require.Len(t, cust, 1)
	assert.Equal(t, "Agent assigned", cust[0].Title)
}

func TestRejectionCarriesReason(t *testing.T) {
	f := newDispatcher(t)
	ctx := context.Background()
	s := shipmentAt(models.StatusCancelled)
	s.RejectionReason = "prohibited item"

	f.d.ShipmentChanged(ctx, s, models.StatusPendingApproval)

	items, _, _ := f.d.List(ctx, "cust-1")
	require.Len(t, items, 1)
	assert.Equal(t, models.NotificationWarning, items[0].Type)
	assert.Contains(t, items[0].Message, "prohibited item")
}

func TestMarkAsReadReturnsUnread(t *testing.T) {
	f := newDispatcher(t)
	ctx := context.Background()
	a, err := f.d.Notify(ctx, models.Notification{UserID: "cust-1", Title: "a"})
	require.NoError(t, err)
	_, err = f.d.Notify(ctx, models.Notification{UserID: "cust-1", Title: "b"})
	require.NoError(t, err)

	unread, err := f.d.MarkAsRead(ctx, "cust-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	unread, err = f.d.MarkAsRead(ctx, "cust-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread, "marking twice is a no-op")

	_, err = f.d.MarkAsRead(ctx, "AGT001", a.ID)
	assert.True(t, apperrors.IsNotFound(err), "users cannot touch each other's notifications")
}

func TestClearNotificationsOnlyTouchesCaller(t *testing.T) {
	f := newDispatcher(t)
	ctx := context.Background()
	_, _ = f.d.Notify(ctx, models.Notification{UserID: "cust-1", Title: "a"})
	_, _ = f.d.Notify(ctx, models.Notification{UserID: "AGT001", Title: "b"})

	require.NoError(t, f.d.ClearNotifications(ctx, "cust-1"))

	mine, unread, _ := f.d.List(ctx, "cust-1")
	assert.Empty(t, mine)
	assert.Zero(t, unread)
	theirs, _, _ := f.d.List(ctx, "AGT001")
	assert.Len(t, theirs, 1)
}

func TestIssueAndMessageNotices(t *testing.T) {
	f := newDispatcher(t)
	ctx := context.Background()

	f.d.IssueReported(ctx, models.Issue{ShipmentID: "SHP004", UserID: "cust-1", IssueType: "wrong_address"})
	staff, _, _ := f.d.List(ctx, "staff-1")
	require.Len(t, staff, 1)
	assert.Contains(t, staff[0].Message, "wrong address")

	f.d.IssueResolved(ctx, models.Issue{ShipmentID: "SHP004", UserID: "cust-1"})
	f.d.MessageReceived(ctx, models.Message{ShipmentID: "SHP004", SenderID: "AGT001", ReceiverID: "cust-1"})
	cust, unread, _ := f.d.List(ctx, "cust-1")
	assert.Len(t, cust, 2)
	assert.Equal(t, 2, unread)
}

func TestSMSFanOutIsBestEffort(t *testing.T) {
	f := newDispatcher(t)
	ctx := context.Background()
	sms := &fakeSMS{err: errors.New("throttled")}
	f.d.UseSMS(sms)

	_, err := f.d.Notify(ctx, models.Notification{UserID: "AGT001", Title: "New delivery request", Message: "SHP006"})
	require.NoError(t, err, "sms failure must not fail the notification")
	assert.Equal(t, []string{"New delivery request: SHP006"}, sms.sent["+233205550123"])

	_, err = f.d.Notify(ctx, models.Notification{UserID: "staff-1", Title: "x"})
	require.NoError(t, err)
	assert.Len(t, sms.sent, 1, "profiles without a phone get no sms")
}

type fakeSNS struct {
	input *sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = in
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestSNSSenderBuildsTransactionalSMS(t *testing.T) {
	client := &fakeSNS{}
	sender := notification.NewSNSSenderWithClient(client, "ShipTrack")

	require.NoError(t, sender.SendSMS(context.Background(), "+233205550123", "Shipment delivered"))

	require.NotNil(t, client.input)
	assert.Equal(t, "+233205550123", aws.ToString(client.input.PhoneNumber))
	assert.Equal(t, "Shipment delivered", aws.ToString(client.input.Message))
	assert.Equal(t, "Transactional", aws.ToString(client.input.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue))
	assert.Equal(t, "ShipTrack", aws.ToString(client.input.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue))
}
