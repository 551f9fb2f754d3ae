package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink forwards bus events to a Kafka topic as JSON for external
// indexers. Delivery is fire-and-forget; produce failures are logged and the
// event is lost, matching the bus's best-effort contract.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaSink connects to the brokers and ensures the topic exists.
func NewKafkaSink(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 1, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure topic %q: %w", topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("ensure topic %q: %w", topic, resp.Err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{client: client, topic: topic, logger: logger}, nil
}

// Run consumes the subscription until the context ends or the channel closes.
func (s *KafkaSink) Run(ctx context.Context, sub <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub:
			if !ok {
				return nil
			}
			s.forward(ctx, event)
		}
	}
}

func (s *KafkaSink) forward(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.ErrorContext(ctx, "event marshal failed", "kind", event.Kind, "error", err)
		return
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.RecordID.String()),
		Value: payload,
	}
	s.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			s.logger.ErrorContext(ctx, "event produce failed", "kind", event.Kind, "error", err)
		}
	})
}

// Close flushes outstanding produces and releases the client.
func (s *KafkaSink) Close() {
	_ = s.client.Flush(context.Background())
	s.client.Close()
}
