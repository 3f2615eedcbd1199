package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/scrapemaster/sentinel/pkg/resilience"
	"github.com/scrapemaster/sentinel/pkg/types"
)

// KafkaSink publishes audit records to a Kafka topic for downstream
// consumers (SIEM ingestion, the notification pipeline). Delivery is
// best-effort from the engine's point of view; the engine already holds
// the event in its rolling buffer. A circuit breaker keeps a dead
// broker from adding publish latency on every request while it is down.
type KafkaSink struct {
	writer  *kafka.Writer
	breaker *resilience.CircuitBreaker
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 100 * time.Millisecond,
		},
		breaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{
			Name:         "kafka-audit",
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		}),
	}
}

type envelope struct {
	Kind    string      `json:"kind"`
	Payload interface{} `json:"payload"`
}

func (s *KafkaSink) LogEvent(ctx context.Context, event types.SecurityEvent) error {
	return s.publish(ctx, event.SourceIP, envelope{Kind: "security_event", Payload: event})
}

func (s *KafkaSink) LogAlert(ctx context.Context, alert types.AttackPatternAlert) error {
	return s.publish(ctx, alert.PatternID, envelope{Kind: "attack_pattern_alert", Payload: alert})
}

func (s *KafkaSink) publish(ctx context.Context, key string, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(key),
			Value: data,
			Time:  time.Now(),
		})
	})
	if err != nil {
		return fmt.Errorf("kafka publish error: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
