// Package journal exports gateway lifecycle and inbound events to Kafka.
// The journal is optional: a nil *Journal is a no-op, and write failures are
// logged, never surfaced to event handling.
package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Envelope is one journal entry. Credential tokens never appear here.
type Envelope struct {
	Kind      string    `json:"kind"` // connected, closed, event, reconnect
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	Scope     string    `json:"scope,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Journal writes envelopes to a Kafka topic.
type Journal struct {
	writer *kafka.Writer
}

// New creates a journal producing to topic on the given brokers.
func New(brokers []string, topic string) *Journal {
	return &Journal{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 100 * time.Millisecond,
		},
	}
}

// Record writes one envelope. Best-effort: failures are logged and dropped.
func (j *Journal) Record(ctx context.Context, env Envelope) {
	if j == nil {
		return
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(env)
	if err != nil {
		slog.Warn("journal: marshal failed", "kind", env.Kind, "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := j.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(env.TeamID),
		Value: payload,
	}); err != nil {
		slog.Warn("journal: write failed", "kind", env.Kind, "team", env.TeamID, "error", err)
	}
}

// Close flushes and closes the producer.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.writer.Close()
}
