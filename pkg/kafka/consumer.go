package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Andre27031510/vynlo-taste-sub001/pkg/retry"
)

// Handler processes one event. A returned error is retried under the
// consumer's retry policy unless it is wrapped with Permanent.
type Handler func(ctx context.Context, event *Event) error

// ConsumerConfig holds Kafka consumer configuration. MaxAttempts and
// RetryBackoff override the EXTERNAL_SERVICE retry defaults for handler
// failures when positive; RetryBackoff also spaces fetch retries.
type ConsumerConfig struct {
	Brokers      []string
	GroupID      string
	Topic        string
	MinBytes     int
	MaxBytes     int
	MaxAttempts  int
	RetryBackoff time.Duration
}

const defaultFetchBackoff = 100 * time.Millisecond

func (c ConsumerConfig) handlerPolicy() retry.Policy {
	p := retry.For(retry.CategoryExternalService)
	if c.MaxAttempts > 0 {
		p = p.WithMaxAttempts(c.MaxAttempts)
	}
	if c.RetryBackoff > 0 {
		p = p.WithInitialDelay(c.RetryBackoff)
	}
	return p
}

func (c ConsumerConfig) fetchBackoff() time.Duration {
	if c.RetryBackoff > 0 {
		return c.RetryBackoff
	}
	return defaultFetchBackoff
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// RetryKind makes the retry executor fail fast on permanent handler errors.
func (e *permanentError) RetryKind() retry.ErrorKind { return retry.KindPermanent }

// Permanent marks a handler error that retrying cannot fix. The message goes
// straight to the dead-letter queue.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetterQueue parks messages that fail every attempt instead of
// dropping them.
func WithDeadLetterQueue(d DeadLetterer) ConsumerOption {
	return func(c *Consumer) { c.dlq = d }
}

// WithExecutor runs handler attempts through exec.
func WithExecutor(exec *retry.Executor) ConsumerOption {
	return func(c *Consumer) { c.exec = exec }
}

// Consumer reads one topic within a consumer group. Offsets are committed
// only once a message is handled, dead-lettered or found undecodable.
type Consumer struct {
	reader    messageReader
	cfg       ConsumerConfig
	policy    retry.Policy
	handler   Handler
	dlq       DeadLetterer
	exec      *retry.Executor
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewConsumer creates a consumer for cfg.Topic in group cfg.GroupID.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})
	return newConsumer(r, cfg, handler, logger, opts...)
}

func newConsumer(r messageReader, cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:  r,
		cfg:     cfg,
		policy:  cfg.handlerPolicy(),
		handler: handler,
		logger:  logger.With(slog.String("topic", cfg.Topic), slog.String("consumer_group", cfg.GroupID)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		c.exec = retry.NewExecutor(retry.DefaultConfig(), c.logger)
	}
	return c
}

// Start consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return nil
			}
			c.logger.Error("failed to fetch message", slog.String("error", err.Error()))
			if retry.ContextSleep(ctx, c.cfg.fetchBackoff()) != nil {
				return nil
			}
			continue
		}
		if !c.process(ctx, msg) {
			c.logger.Info("consumer stopping")
			return nil
		}
	}
}

// process handles msg and commits it. It returns false when ctx ended before
// the outcome was decided; the message is then left uncommitted for
// redelivery.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) bool {
	labels := []string{c.cfg.Topic, c.cfg.GroupID}
	ConsumerMessagesReceived.WithLabelValues(labels...).Inc()
	start := time.Now()
	defer func() {
		ConsumerProcessingDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	}()

	log := c.logger.With(
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	ctx = withConsumerLabels(extractTrace(ctx, &msg), c.cfg.Topic, c.cfg.GroupID)

	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		log.Error("failed to unmarshal event", slog.String("error", err.Error()))
		c.deadLetter(ctx, msg, err)
		c.commit(ctx, msg)
		return true
	}
	log = log.With(
		slog.String("event_id", event.EventID),
		slog.String("event_type", event.EventType),
		slog.String("aggregate_id", event.AggregateID),
	)

	lastErr := c.exec.Do(ctx, "kafka.handle."+event.EventType, c.policy, func(ctx context.Context) error {
		return c.handler(ctx, event)
	})
	if lastErr != nil && !IsPermanent(lastErr) && ctx.Err() != nil {
		return false
	}

	if lastErr != nil {
		ConsumerMessagesFailed.WithLabelValues(labels...).Inc()
		log.Error("handler failed, giving up on message",
			slog.String("error", lastErr.Error()),
			slog.Bool("permanent", IsPermanent(lastErr)),
		)
		c.deadLetter(ctx, msg, lastErr)
	} else {
		ConsumerMessagesProcessed.WithLabelValues(labels...).Inc()
	}
	c.commit(ctx, msg)
	return true
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.cfg.GroupID); err != nil {
		return
	}
	ConsumerDLQPublished.WithLabelValues(c.cfg.Topic, c.cfg.GroupID).Inc()
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the consumer. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}

type labelsKey struct{}

func withConsumerLabels(ctx context.Context, topic, group string) context.Context {
	return context.WithValue(ctx, labelsKey{}, [2]string{topic, group})
}

func consumerLabels(ctx context.Context) (topic, group string) {
	if l, ok := ctx.Value(labelsKey{}).([2]string); ok {
		return l[0], l[1]
	}
	return "", ""
}
