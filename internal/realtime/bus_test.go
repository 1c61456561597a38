package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordingForwarder struct {
	events []Event
	err    error
}

func (f *recordingForwarder) Forward(_ context.Context, ev Event) error {
	f.events = append(f.events, ev)
	return f.err
}

func TestBusDeliversOnlyToTopic(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var shipments, messages int
	bus.Subscribe(ShipmentsTopic, func(context.Context, Event) { shipments++ })
	bus.Subscribe(MessagesTopic("SHP001"), func(context.Context, Event) { messages++ })

	err := bus.Publish(context.Background(), Event{Topic: ShipmentsTopic, Type: EventUpdate, ID: "SHP001"})

	assert.NoError(t, err)
	assert.Equal(t, 1, shipments)
	assert.Equal(t, 0, messages)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var got int
	sub := bus.Subscribe(NotificationsTopic("u1"), func(context.Context, Event) { got++ })

	_ = bus.Publish(context.Background(), Event{Topic: NotificationsTopic("u1"), Type: EventInsert})
	sub.Unsubscribe()
	sub.Unsubscribe()
	_ = bus.Publish(context.Background(), Event{Topic: NotificationsTopic("u1"), Type: EventInsert})

	assert.Equal(t, 1, got)
	assert.Equal(t, 0, bus.Subscribers(NotificationsTopic("u1")))
}

func TestPublishStampsOriginAndForwards(t *testing.T) {
	bus := NewBus(zap.NewNop())
	ok := &recordingForwarder{}
	failing := &recordingForwarder{err: errors.New("broker down")}
	bus.AddForwarder(ok)
	bus.AddForwarder(failing)

	var delivered Event
	bus.Subscribe(ShipmentsTopic, func(_ context.Context, ev Event) { delivered = ev })

	err := bus.Publish(context.Background(), Event{Topic: ShipmentsTopic, Type: EventInsert, ID: "SHP006"})

	assert.Error(t, err)
	assert.Equal(t, bus.Origin(), delivered.Origin)
	assert.False(t, delivered.OccurredAt.IsZero())
	assert.Len(t, ok.events, 1)
	assert.Len(t, failing.events, 1)
}

func TestDeliverDoesNotForward(t *testing.T) {
	bus := NewBus(zap.NewNop())
	fwd := &recordingForwarder{}
	bus.AddForwarder(fwd)
	var got int
	bus.Subscribe(ShipmentsTopic, func(context.Context, Event) { got++ })

	bus.Deliver(context.Background(), Event{Topic: ShipmentsTopic, Type: EventUpdate, Origin: "other"})

	assert.Equal(t, 1, got)
	assert.Empty(t, fwd.events)
}
