package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	authcore "github.com/vidyalay/authcore"
)

// TopicAuthEvents is the topic security audit events are published to.
const TopicAuthEvents = "marketplace.auth.events"

// Config holds Kafka sink configuration.
type Config struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the audit sink.
func DefaultConfig(brokers []string) Config {
	return Config{
		Brokers:      brokers,
		Topic:        TopicAuthEvents,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

// Sink publishes audit events to Kafka. It implements [authcore.AuditSink]
// and is meant to sit behind the engine's audit dispatcher, which already
// decouples publishing from request latency.
type Sink struct {
	writer *kafka.Writer
	topic  string
	logger *slog.Logger
}

// NewSink creates a Kafka-backed audit sink.
func NewSink(cfg Config, logger *slog.Logger) *Sink {
	if cfg.Topic == "" {
		cfg.Topic = TopicAuthEvents
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}

	return &Sink{writer: w, topic: cfg.Topic, logger: logger}
}

// Emit publishes one audit event. Messages are keyed by user so a consumer
// sees each account's history in order.
func (s *Sink) Emit(ctx context.Context, event authcore.AuditEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit event marshal failed",
			slog.String("event_type", event.EventType),
			slog.String("error", err.Error()),
		)
		return
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "audit event publish failed",
			slog.String("topic", s.topic),
			slog.String("event_type", event.EventType),
			slog.String("error", err.Error()),
		)
	}
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

// Ping dials the brokers and returns nil when at least one is reachable.
func Ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}

	var lastErr error
	for _, addr := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("kafka: no reachable brokers: %w", lastErr)
}
