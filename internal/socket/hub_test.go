package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/models"
	"shiptrack-api-server/internal/realtime"
	"shiptrack-api-server/internal/shipment"
	"shiptrack-api-server/internal/storage/memory"
)

var actors = map[string]shipment.Actor{
	"cust-1":  {ID: "cust-1", Role: models.RoleCustomer},
	"cust-2":  {ID: "cust-2", Role: models.RoleCustomer},
	"staff-1": {ID: "staff-1", Role: models.RoleStaff},
}

func newTestHub(t *testing.T) (*Hub, *realtime.Bus, string) {
	t.Helper()
	repo := memory.NewShipmentRepo()
	repo.Seed(
		models.Shipment{ID: "SHP001", CustomerID: "cust-1", Status: models.StatusInTransit},
		models.Shipment{ID: "SHP002", CustomerID: "cust-2", Status: models.StatusPendingApproval},
	)
	bus := realtime.NewBus(zap.NewNop())
	hub := NewHub(bus, shipment.NewService(repo, zap.NewNop()), zap.NewNop())

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(context.Background(), conn, actors[r.URL.Query().Get("user")])
	}))
	t.Cleanup(srv.Close)
	return hub, bus, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?user="+user, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, f Frame) Reply {
	t.Helper()
	require.NoError(t, conn.WriteJSON(f))
	return read(t, conn)
}

func read(t *testing.T, conn *websocket.Conn) Reply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var r Reply
	require.NoError(t, conn.ReadJSON(&r))
	return r
}

func TestSubscribeAndReceiveNotification(t *testing.T) {
	hub, bus, url := newTestHub(t)
	conn := dial(t, url, "cust-1")

	ack := roundTrip(t, conn, Frame{Action: "subscribe", Topic: realtime.NotificationsTopic("cust-1")})
	require.True(t, ack.OK, ack.Error)
	assert.Equal(t, 1, hub.Clients())
	assert.Equal(t, 1, bus.Subscribers(realtime.NotificationsTopic("cust-1")))

	require.NoError(t, bus.Publish(context.Background(), realtime.Event{
		Topic: realtime.NotificationsTopic("cust-1"), Type: realtime.EventInsert, ID: "n-1",
		Record: map[string]any{"title": "Shipment approved"},
	}))

	got := read(t, conn)
	assert.Equal(t, "event", got.Type)
	require.NotNil(t, got.Event)
	assert.Equal(t, "n-1", got.Event.ID)
	assert.Equal(t, "Shipment approved", got.Event.Record["title"])
}

func TestSubscribeRejectsForeignTopics(t *testing.T) {
	_, bus, url := newTestHub(t)
	conn := dial(t, url, "cust-1")

	ack := roundTrip(t, conn, Frame{Action: "subscribe", Topic: realtime.NotificationsTopic("cust-2")})
	assert.False(t, ack.OK)
	assert.NotEmpty(t, ack.Error)

	ack = roundTrip(t, conn, Frame{Action: "subscribe", Topic: realtime.MessagesTopic("SHP002")})
	assert.False(t, ack.OK)

	ack = roundTrip(t, conn, Frame{Action: "subscribe", Topic: "payments"})
	assert.False(t, ack.OK)

	ack = roundTrip(t, conn, Frame{Action: "subscribe", Topic: realtime.MessagesTopic("SHP001")})
	assert.True(t, ack.OK, ack.Error)
	assert.Equal(t, 0, bus.Subscribers(realtime.NotificationsTopic("cust-2")))
}

func TestShipmentsTopicFiltersForCustomers(t *testing.T) {
	_, bus, url := newTestHub(t)
	conn := dial(t, url, "cust-1")
	require.True(t, roundTrip(t, conn, Frame{Action: "subscribe", Topic: realtime.ShipmentsTopic}).OK)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, realtime.Event{Topic: realtime.ShipmentsTopic, Type: realtime.EventUpdate, ID: "SHP002", Record: map[string]any{"status": "approved"}}))
	require.NoError(t, bus.Publish(ctx, realtime.Event{Topic: realtime.ShipmentsTopic, Type: realtime.EventUpdate, ID: "SHP001", Record: map[string]any{"currentLat": 5.6}}))
	require.NoError(t, bus.Publish(ctx, realtime.Event{Topic: realtime.ShipmentsTopic, Type: realtime.EventInsert, ID: "SHP006", Record: map[string]any{"customer_id": "cust-1"}}))

	first := read(t, conn)
	require.NotNil(t, first.Event)
	assert.Equal(t, "SHP001", first.Event.ID)
	second := read(t, conn)
	require.NotNil(t, second.Event)
	assert.Equal(t, "SHP006", second.Event.ID)
}

func TestUnsubscribeAndDisconnect(t *testing.T) {
	hub, bus, url := newTestHub(t)
	conn := dial(t, url, "staff-1")
	require.True(t, roundTrip(t, conn, Frame{Action: "subscribe", Topic: realtime.ShipmentsTopic}).OK)
	require.True(t, roundTrip(t, conn, Frame{Action: "subscribe", Topic: realtime.ShipmentsTopic}).OK)
	assert.Equal(t, 1, bus.Subscribers(realtime.ShipmentsTopic))

	require.True(t, roundTrip(t, conn, Frame{Action: "unsubscribe", Topic: realtime.ShipmentsTopic}).OK)
	assert.Equal(t, 0, bus.Subscribers(realtime.ShipmentsTopic))

	require.True(t, roundTrip(t, conn, Frame{Action: "subscribe", Topic: realtime.ShipmentsTopic}).OK)
	bad := roundTrip(t, conn, Frame{Action: "shout"})
	assert.Contains(t, bad.Error, "unknown action")

	conn.Close()
	assert.Eventually(t, func() bool {
		return hub.Clients() == 0 && bus.Subscribers(realtime.ShipmentsTopic) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
