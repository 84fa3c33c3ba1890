// Package notify forwards loop events to external sinks.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/KafClaw/pinguess/internal/bus"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes each event as a JSON message keyed by agent.
type KafkaPublisher struct {
	w       messageWriter
	timeout time.Duration
}

// NewKafkaPublisher creates a synchronous writer for a comma-separated broker list.
func NewKafkaPublisher(brokers, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &KafkaPublisher{w: w, timeout: 10 * time.Second}
}

// EncodeEvent builds the Kafka message for evt.
func EncodeEvent(evt *bus.Event) (kafka.Message, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(fmt.Sprintf("agent-%d", evt.AgentID)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
			{Key: "run_id", Value: []byte(evt.RunID)},
		},
		Time: evt.Timestamp,
	}, nil
}

// Handle is a bus subscriber. Failures are logged and dropped.
func (p *KafkaPublisher) Handle(evt *bus.Event) {
	msg, err := EncodeEvent(evt)
	if err != nil {
		slog.Warn("KafkaPublisher: encode failed", "type", evt.Type, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		slog.Warn("KafkaPublisher: write failed", "type", evt.Type, "error", err)
	}
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
