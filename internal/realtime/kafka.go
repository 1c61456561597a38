// internal/realtime/kafka.go
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Writer is the subset of kafka.Writer the sink uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink forwards shipment events to a kafka topic for downstream
// consumers. Messages are keyed by shipment id so each shipment's events
// stay ordered within a partition.
type KafkaSink struct {
	writer Writer
	log    *zap.Logger
}

func NewKafkaSink(brokers []string, topic string, log *zap.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaSink{writer: w, log: log}
}

func NewKafkaSinkWithWriter(w Writer, log *zap.Logger) *KafkaSink {
	return &KafkaSink{writer: w, log: log}
}

func (k *KafkaSink) Forward(ctx context.Context, ev Event) error {
	if ev.Topic != ShipmentsTopic {
		return nil
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		k.log.Error("kafka write failed", zap.String("shipment_id", ev.ID), zap.Error(err))
		return err
	}
	return nil
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
