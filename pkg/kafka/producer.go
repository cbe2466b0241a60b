package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerConfig tunes the event writer. Brokers come from the caller; the
// rest loads from the environment under the caller's prefix.
type ProducerConfig struct {
	Brokers      []string      `env:"-"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"100"`
	BatchTimeout time.Duration `env:"BATCH_TIMEOUT" envDefault:"10ms"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
	// LeaderAckOnly trades durability for latency by not waiting on replicas.
	LeaderAckOnly bool `env:"LEADER_ACK_ONLY" envDefault:"false"`
}

// DefaultProducerConfig matches the env defaults above.
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:      brokers,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

// messageWriter is what Producer and DLQProducer need from *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes event envelopes synchronously, so a failed publish is
// visible to the caller.
type Producer struct {
	writer  messageWriter
	brokers []string
	logger  *slog.Logger
}

func NewProducer(cfg ProducerConfig, logger *slog.Logger) *Producer {
	acks := kafka.RequireAll
	if cfg.LeaderAckOnly {
		acks = kafka.RequireOne
	}
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           acks,
		AllowAutoTopicCreation: true,
	}, cfg.Brokers, logger)
}

func newProducer(w messageWriter, brokers []string, logger *slog.Logger) *Producer {
	return &Producer{writer: w, brokers: brokers, logger: logger}
}

// envelopeHeaders lets consumers route and dedup without decoding the body.
func envelopeHeaders(e *Event) []kafka.Header {
	h := []kafka.Header{
		{Key: "event_id", Value: []byte(e.EventID)},
		{Key: "event_type", Value: []byte(e.EventType)},
		{Key: "aggregate_type", Value: []byte(e.AggregateType)},
		{Key: "source", Value: []byte(e.Source)},
	}
	if e.CorrelationID != "" {
		h = append(h, kafka.Header{Key: "correlation_id", Value: []byte(e.CorrelationID)})
	}
	return h
}

// Publish writes event to topic keyed by its aggregate id.
func (p *Producer) Publish(ctx context.Context, topic string, event *Event) error {
	body, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}
	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(event.AggregateID),
		Value:   body,
		Headers: envelopeHeaders(event),
	}
	injectTrace(ctx, &msg)

	log := p.logger.With(
		slog.String("topic", topic),
		slog.String("event_id", event.EventID),
		slog.String("event_type", event.EventType),
		slog.String("aggregate_id", event.AggregateID),
	)

	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	ProducerPublishDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		ProducerPublishErrors.WithLabelValues(topic).Inc()
		log.ErrorContext(ctx, "event publish failed", slog.String("error", err.Error()))
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	ProducerMessagesPublished.WithLabelValues(topic).Inc()
	log.DebugContext(ctx, "event published")
	return nil
}

// Ping reports whether any configured broker is reachable.
func (p *Producer) Ping(ctx context.Context) error {
	return PingBrokers(ctx, p.brokers)
}

// PingBrokers asks each broker for cluster metadata and stops at the first
// that answers.
func PingBrokers(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	var errs []error
	for _, addr := range brokers {
		if err := pingBroker(ctx, addr); err != nil {
			errs = append(errs, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("kafka: no broker reachable: %w", errors.Join(errs...))
}

func pingBroker(ctx context.Context, addr string) error {
	conn, err := kafka.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Brokers()
	return err
}

// Close flushes buffered messages.
func (p *Producer) Close() error {
	return p.writer.Close()
}
