package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/yoyaku-app/yoyaku/libs/kafkax"
)

const DefaultTopic = "booking.reservation.confirmed.v1"

// KafkaNotifier publishes confirmation events for deployments that route
// customer mail through a downstream notification pipeline.
type KafkaNotifier struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaNotifier(brokers string, topic string) *KafkaNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(kafkax.SplitBrokers(brokers)...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		topic: topic,
	}
}

func (n *KafkaNotifier) BookingConfirmed(ctx context.Context, c Confirmation) error {
	payload, err := json.Marshal(map[string]any{
		"reservation_id": c.ReservationID,
		"resource_name":  c.ResourceName,
		"email":          c.Email,
		"name":           c.Name,
		"local_label":    c.LocalLabel,
		"start_at":       c.StartAt.UTC().Format(time.RFC3339),
		"end_at":         c.EndAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(c.ReservationID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte(n.topic)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	return n.writer.WriteMessages(ctx, msg)
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
