package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	written []kafka.Message
	err     error
	closed  bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	return (&KafkaHeaderCarrier{headers: &msg.Headers}).Get(key)
}

// ---------------------------------------------------------------------------
// Event
// ---------------------------------------------------------------------------

func TestNewEvent_Fields(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
		Total   string `json:"total"`
	}

	event, err := NewEvent("order.confirmed", "ord-123", "order", "order-service", payload{"ord-123", "25.00"})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "order.confirmed", event.EventType)
	assert.Equal(t, "ord-123", event.AggregateID)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var got payload
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, "25.00", got.Total)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("test.event", "agg-1", "test", "test-service", make(chan int))
	require.Error(t, err)
}

func TestEvent_StableID(t *testing.T) {
	a, err := NewEvent("order.failed", "ord-1", "order", "svc", nil)
	require.NoError(t, err)
	b, err := NewEvent("order.failed", "ord-1", "order", "svc", nil)
	require.NoError(t, err)
	c, err := NewEvent("order.cancelled", "ord-1", "order", "svc", nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.EventID, b.EventID)
	assert.Equal(t, a.StableID().EventID, b.StableID().EventID)
	assert.NotEqual(t, a.EventID, c.StableID().EventID)
}

func TestUnmarshalEvent(t *testing.T) {
	original, err := NewEvent("order.cancel_requested", "ord-9", "order", "api", map[string]string{"reason": "changed mind"})
	require.NoError(t, err)
	original.WithCorrelationID("corr-1").WithMetadata("actor", "support")

	data, err := original.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, "corr-1", restored.CorrelationID)
	assert.Equal(t, "support", restored.Metadata["actor"])

	_, err = UnmarshalEvent([]byte(`{"event_id":"x"}`))
	assert.Error(t, err)
	_, err = UnmarshalEvent([]byte("{"))
	assert.Error(t, err)
	_, err = UnmarshalEvent([]byte(`{"event_id":"x","event_type":"order.confirmed","version":2}`))
	assert.ErrorContains(t, err, "envelope version 2")
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "vynlo.order.confirmed", Topic("order", "confirmed"))
	assert.Equal(t, "vynlo.order.cancel_requested", Topic("order", "cancel_requested"))
}

// ---------------------------------------------------------------------------
// Producer
// ---------------------------------------------------------------------------

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, []string{"localhost:9092"}, testLogger())

	event, err := NewEvent("order.confirmed", "ord-1", "order", "order-service", nil)
	require.NoError(t, err)
	event.WithCorrelationID("corr-7")

	topic := "producer-test-ok"
	require.NoError(t, p.Publish(context.Background(), topic, event))

	require.Len(t, w.written, 1)
	msg := w.written[0]
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, []byte("ord-1"), msg.Key)
	assert.Equal(t, event.EventID, header(msg, "event_id"))
	assert.Equal(t, "order.confirmed", header(msg, "event_type"))
	assert.Equal(t, "corr-7", header(msg, "correlation_id"))
	assert.Equal(t, "order", header(msg, "aggregate_type"))
	assert.Equal(t, float64(1), testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic)))
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newProducer(w, nil, testLogger())

	event, err := NewEvent("order.failed", "ord-2", "order", "order-service", nil)
	require.NoError(t, err)

	topic := "producer-test-err"
	err = p.Publish(context.Background(), topic, event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), topic)
	assert.Equal(t, float64(1), testutil.ToFloat64(ProducerPublishErrors.WithLabelValues(topic)))
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, nil, testLogger())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"a:9092", "b:9092"})
	assert.Len(t, cfg.Brokers, 2)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers")
}

// ---------------------------------------------------------------------------
// DLQ
// ---------------------------------------------------------------------------

func TestDLQTopic(t *testing.T) {
	assert.Equal(t, "vynlo.dlq.vynlo.order.cancel_requested", DLQTopic("vynlo.order.cancel_requested"))
}

func TestDLQProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	d := &DLQProducer{writer: w, logger: testLogger()}

	original := kafka.Message{
		Topic:     "vynlo.order.cancel_requested",
		Partition: 2,
		Offset:    41,
		Key:       []byte("ord-1"),
		Value:     []byte(`{"event_type":"order.cancel_requested"}`),
		Headers:   []kafka.Header{{Key: "event_type", Value: []byte("order.cancel_requested")}},
	}
	require.NoError(t, d.Publish(context.Background(), original, errors.New("order not found"), "order-service"))

	require.Len(t, w.written, 1)
	parked := w.written[0]
	assert.Equal(t, "vynlo.dlq.vynlo.order.cancel_requested", parked.Topic)
	assert.Equal(t, original.Value, parked.Value)
	assert.Equal(t, "order.cancel_requested", header(parked, "event_type"))
	assert.Equal(t, "2", header(parked, "dlq.original_partition"))
	assert.Equal(t, "41", header(parked, "dlq.original_offset"))
	assert.Equal(t, "order-service", header(parked, "dlq.consumer_group"))
	assert.Equal(t, "order not found", header(parked, "dlq.error"))
}

func TestDLQProducer_WriteFailure(t *testing.T) {
	d := &DLQProducer{writer: &fakeWriter{err: errors.New("broker down")}, logger: testLogger()}
	err := d.Publish(context.Background(), kafka.Message{Topic: "t"}, nil, "g")
	assert.ErrorContains(t, err, "vynlo.dlq.t")
}
