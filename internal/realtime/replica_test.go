package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/models"
)

type stubLister struct {
	shipments []models.Shipment
	calls     int
}

func (s *stubLister) List(context.Context) ([]models.Shipment, error) {
	s.calls++
	return s.shipments, nil
}

func seedShipments() []models.Shipment {
	return []models.Shipment{
		{
			ID:       "SHP002",
			FromCity: "Tamale",
			ToCity:   "Takoradi",
			Status:   models.StatusApproved,
			History: []models.ShipmentHistory{
				{Status: models.StatusPendingApproval, Date: "2026-01-17 08:00", Location: "Tamale", Description: "Shipment created"},
				{Status: models.StatusApproved, Date: "2026-01-17 09:00", Location: "Tamale", Description: "Approved by staff"},
			},
		},
		{ID: "SHP001", FromCity: "Accra", ToCity: "Kumasi", Status: models.StatusPendingApproval},
	}
}

func TestReplicaMergesUpdateRemoteWins(t *testing.T) {
	lister := &stubLister{shipments: seedShipments()}
	var changes []StatusChange
	r := NewReplica(lister, func(c StatusChange) { changes = append(changes, c) }, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))

	err := r.Apply(context.Background(), Event{
		Topic: ShipmentsTopic,
		Type:  EventUpdate,
		ID:    "SHP002",
		Record: map[string]any{
			"status":    "assigned",
			"agentName": "Kofi Boateng",
			"agentId":   "AGT001",
		},
	})
	require.NoError(t, err)

	s, ok := r.Get("SHP002")
	require.True(t, ok)
	assert.Equal(t, models.StatusAssigned, s.Status)
	assert.Equal(t, "Kofi Boateng", s.AgentName)
	assert.Equal(t, "Tamale", s.FromCity, "fields absent from the event are kept")
	assert.Len(t, s.History, 2)
	assert.Equal(t, 1, lister.calls, "updates must not trigger a refetch")

	require.Len(t, changes, 1)
	assert.Equal(t, StatusChange{ShipmentID: "SHP002", From: models.StatusApproved, To: models.StatusAssigned}, changes[0])
}

func TestReplicaLocationUpdateEmitsNoStatusChange(t *testing.T) {
	lister := &stubLister{shipments: seedShipments()}
	var changes int
	r := NewReplica(lister, func(StatusChange) { changes++ }, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))

	require.NoError(t, r.Apply(context.Background(), Event{
		Type:   EventUpdate,
		ID:     "SHP002",
		Record: map[string]any{"currentLat": 5.6037, "currentLng": -0.187},
	}))

	s, _ := r.Get("SHP002")
	require.NotNil(t, s.CurrentLat)
	assert.InDelta(t, 5.6037, *s.CurrentLat, 1e-9)
	assert.Equal(t, 0, changes)
}

func TestReplicaInsertAndDeleteRefetch(t *testing.T) {
	lister := &stubLister{shipments: seedShipments()}
	r := NewReplica(lister, nil, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))

	lister.shipments = append([]models.Shipment{{ID: "SHP006", Status: models.StatusPendingApproval}}, lister.shipments...)
	require.NoError(t, r.Apply(context.Background(), Event{Type: EventInsert, ID: "SHP006"}))
	assert.Equal(t, 2, lister.calls)
	assert.Len(t, r.Shipments(), 3)
	assert.Equal(t, "SHP006", r.Shipments()[0].ID)

	lister.shipments = lister.shipments[1:]
	require.NoError(t, r.Apply(context.Background(), Event{Type: EventDelete, ID: "SHP006"}))
	assert.Equal(t, 3, lister.calls)
	_, ok := r.Get("SHP006")
	assert.False(t, ok)
}

func TestReplicaUnknownIDRefetches(t *testing.T) {
	lister := &stubLister{shipments: seedShipments()}
	r := NewReplica(lister, nil, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))

	require.NoError(t, r.Apply(context.Background(), Event{Type: EventUpdate, ID: "SHP999", Record: map[string]any{"status": "approved"}}))
	assert.Equal(t, 2, lister.calls)
}

func TestReplicaAttachFollowsBus(t *testing.T) {
	lister := &stubLister{shipments: seedShipments()}
	r := NewReplica(lister, nil, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))
	bus := NewBus(zap.NewNop())
	sub := r.Attach(bus)
	defer sub.Unsubscribe()

	require.NoError(t, bus.Publish(context.Background(), Event{
		Topic:  ShipmentsTopic,
		Type:   EventUpdate,
		ID:     "SHP001",
		Record: map[string]any{"status": "approved"},
	}))

	s, _ := r.Get("SHP001")
	assert.Equal(t, models.StatusApproved, s.Status)
}

func TestReplicaDropsUpdatesOlderThanLocalCopy(t *testing.T) {
	t1 := time.Date(2026, 1, 17, 9, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	assigned := seedShipments()[0]
	assigned.Status = models.StatusAssigned
	assigned.AgentID = "AGT001"
	assigned.History = append(assigned.History, models.ShipmentHistory{
		Status: models.StatusAssigned, Date: "2026-01-17 10:00", Location: "Tamale", Description: "Agent Kofi Boateng assigned",
	})
	assigned.UpdatedAt = t2

	lister := &stubLister{shipments: []models.Shipment{assigned}}
	var changes int
	r := NewReplica(lister, func(StatusChange) { changes++ }, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))

	// the approve event is delivered after the assign it preceded
	require.NoError(t, r.Apply(context.Background(), Event{
		Type: EventUpdate,
		ID:   "SHP002",
		Record: map[string]any{
			"status":     "approved",
			"history":    []any{map[string]any{"status": "pending_approval"}, map[string]any{"status": "approved"}},
			"updated_at": t1.Format(time.RFC3339Nano),
		},
	}))

	s, _ := r.Get("SHP002")
	assert.Equal(t, models.StatusAssigned, s.Status)
	assert.Len(t, s.History, 3)
	assert.True(t, s.UpdatedAt.Equal(t2))
	assert.Equal(t, 0, changes)
}

func TestReplicaKeepsNewestLocation(t *testing.T) {
	lister := &stubLister{shipments: seedShipments()}
	r := NewReplica(lister, nil, zap.NewNop())
	require.NoError(t, r.Refresh(context.Background()))

	first := time.Date(2026, 1, 17, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Second)
	location := func(lat float64, at time.Time) Event {
		return Event{Type: EventUpdate, ID: "SHP002", Record: map[string]any{
			"currentLat": lat, "currentLng": -0.2, "updated_at": at.Format(time.RFC3339Nano),
		}}
	}

	require.NoError(t, r.Apply(context.Background(), location(6.2, second)))
	require.NoError(t, r.Apply(context.Background(), location(5.1, first)))

	s, _ := r.Get("SHP002")
	require.NotNil(t, s.CurrentLat)
	assert.InDelta(t, 6.2, *s.CurrentLat, 1e-9)

	// a redelivered copy of the newest update is still applied
	require.NoError(t, r.Apply(context.Background(), location(6.2, second)))
	s, _ = r.Get("SHP002")
	assert.InDelta(t, 6.2, *s.CurrentLat, 1e-9)
}
