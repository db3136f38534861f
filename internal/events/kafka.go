package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes events to a Kafka topic keyed by Event.Key, so all
// events of one user land on the same partition in commit order. Writes are
// asynchronous; delivery failures are logged.
type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
	log     *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	p := &KafkaPublisher{timeout: 5 * time.Second, log: log}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: p.timeout,
		Async:        true,
		Completion:   p.completed,
	}
	return p
}

func (p *KafkaPublisher) completed(messages []kafka.Message, err error) {
	if err != nil {
		p.log.Error("deliver events failed", "count", len(messages), "error", err)
	}
}

func (p *KafkaPublisher) Publish(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		p.log.Error("encode event failed", "type", evt.Type, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Key),
		Value: payload,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		p.log.Error("publish event failed", "type", evt.Type, "key", evt.Key, "error", err)
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
