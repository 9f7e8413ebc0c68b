// Package audit records identity operations to a Kafka topic and mirrors
// failures to the error-listener fan-out.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	dErrors "idrealm/pkg/domain-errors"
	"idrealm/pkg/requestcontext"
)

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Operation string    `json:"operation"`
	Outcome   string    `json:"outcome"`
	Username  string    `json:"username,omitempty"`
	Role      string    `json:"role,omitempty"`
	Claims    []string  `json:"claims,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Actor     string    `json:"actor,omitempty"`
}

// Publisher writes audit events somewhere durable.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// KafkaPublisher ships events to one topic. Publishing is fire-and-forget:
// a delivery failure is logged and never blocks the identity operation.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects a producer and ensures the topic exists.
func NewKafkaPublisher(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration, "kafka client setup failed")
	}

	adm := kadm.NewClient(client)
	if _, err := adm.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		// Already-exists is the common case on restart.
		logger.DebugContext(ctx, "audit topic creation skipped", "topic", topic, "error", err.Error())
	}

	return &KafkaPublisher{client: client, topic: topic, logger: logger}, nil
}

// Publish serializes and produces one event asynchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.WarnContext(ctx, "audit event serialization failed", "error", err.Error())
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Operation),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.WarnContext(context.Background(), "audit event delivery failed",
				"operation", event.Operation, "error", err.Error())
		}
	})
}

// Close flushes pending records and releases the producer.
func (p *KafkaPublisher) Close(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return dErrors.Wrap(err, dErrors.CodeDownstream, "audit flush failed")
	}
	p.client.Close()
	return nil
}

// newEvent stamps the common fields from the request context.
func newEvent(ctx context.Context, operation, outcome string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: requestcontext.Now(ctx).UTC(),
		Operation: operation,
		Outcome:   outcome,
		RequestID: requestcontext.RequestID(ctx),
		Actor:     requestcontext.Actor(ctx),
		Domain:    requestcontext.ResolvedDomain(ctx),
	}
}
