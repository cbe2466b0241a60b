package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TopicPrefix namespaces the topics this platform owns.
const TopicPrefix = "vynlo"

// EnvelopeVersion is the newest envelope layout this package reads.
const EnvelopeVersion = 1

// Topic returns "<prefix>.<aggregate>.<fact>", e.g. vynlo.order.confirmed.
func Topic(aggregate, fact string) string {
	return TopicPrefix + "." + aggregate + "." + fact
}

var stableIDSpace = uuid.MustParse("0b6f3a52-4f7e-4d38-9d7c-3c1f1f6a0e21")

// Event is the envelope around every payload on the bus. AggregateID is also
// the message key, so one order's events share a partition.
type Event struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	AggregateID   string            `json:"aggregate_id"`
	AggregateType string            `json:"aggregate_type"`
	Version       int               `json:"version"`
	Timestamp     time.Time         `json:"timestamp"`
	Source        string            `json:"source"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Data          json.RawMessage   `json:"data"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewEvent wraps data in an envelope with a random id.
func NewEvent(eventType, aggregateID, aggregateType, source string, data any) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return &Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		Version:       EnvelopeVersion,
		Timestamp:     time.Now().UTC(),
		Source:        source,
		Data:          payload,
	}, nil
}

// StableID replaces the random id with one derived from aggregate and type.
// A fact published twice, say by a resumed workflow, then carries the same id
// and consumers drop the copy.
func (e *Event) StableID() *Event {
	key := e.AggregateType + ":" + e.AggregateID + ":" + e.EventType
	e.EventID = uuid.NewSHA1(stableIDSpace, []byte(key)).String()
	return e
}

func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	e.Metadata[key] = value
	return e
}

func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalData decodes the payload into target.
func (e *Event) UnmarshalData(target any) error {
	return json.Unmarshal(e.Data, target)
}

var errNoEventType = errors.New("event envelope has no event_type")

// UnmarshalEvent decodes an envelope. Envelopes without a type or written by
// a newer producer are rejected; consumers treat either as a poison message.
func UnmarshalEvent(raw []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	if e.EventType == "" {
		return nil, errNoEventType
	}
	if e.Version > EnvelopeVersion {
		return nil, fmt.Errorf("event %s: envelope version %d is newer than %d", e.EventID, e.Version, EnvelopeVersion)
	}
	return &e, nil
}
