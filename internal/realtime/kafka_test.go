package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSinkForwardsShipmentEventsOnly(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, sink.Forward(ctx, Event{Topic: MessagesTopic("SHP001"), Type: EventInsert, ID: "m1"}))
	require.NoError(t, sink.Forward(ctx, Event{
		Topic:  ShipmentsTopic,
		Type:   EventUpdate,
		ID:     "SHP001",
		Record: map[string]any{"status": "approved"},
	}))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "SHP001", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "update", string(msg.Headers[0].Value))

	var ev Event
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, "approved", ev.Record["status"])

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}
