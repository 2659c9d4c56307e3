package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/pkg/errors"
)

const (
	TopicChartCreated = "livecare.chart.created"

	EventTypeChartCreated = "chart.created"
	eventSource           = "livecare"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// ChartCreatedPayload announces a newly persisted chart.
type ChartCreatedPayload struct {
	ChartID   int64     `json:"chart_id"`
	Kind      string    `json:"kind"`
	PatientID *int64    `json:"patient_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewEventEnvelope(eventType string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        eventSource,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(e.Payload, target)
}

func (e *EventEnvelope) ToMessage(topic string, key []byte) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &ProducerMessage{
		Topic: topic,
		Key:   key,
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

// Publisher is the write side the chart event publisher needs.
type Publisher interface {
	Publish(ctx context.Context, msg *ProducerMessage) error
}

// ChartEventPublisher emits chart.created events keyed by chart id.
type ChartEventPublisher struct {
	producer Publisher
	topic    string
	logger   logging.Logger
}

func NewChartEventPublisher(p Publisher, topic string, log logging.Logger) *ChartEventPublisher {
	if topic == "" {
		topic = TopicChartCreated
	}
	return &ChartEventPublisher{producer: p, topic: topic, logger: log}
}

// ChartCreated publishes the event. Errors are returned for the caller to log.
func (c *ChartEventPublisher) ChartCreated(ctx context.Context, payload ChartCreatedPayload) error {
	env, err := NewEventEnvelope(EventTypeChartCreated, payload)
	if err != nil {
		return err
	}
	msg, err := env.ToMessage(c.topic, []byte(strconv.FormatInt(payload.ChartID, 10)))
	if err != nil {
		return err
	}
	if err := c.producer.Publish(ctx, msg); err != nil {
		return err
	}
	c.logger.Info("Chart event published",
		logging.String("event_id", env.EventID),
		logging.Int64("chart_id", payload.ChartID),
		logging.String("kind", payload.Kind))
	return nil
}
