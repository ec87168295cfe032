package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/nathanyu/matching-engine/internal/domain"
)

// KafkaPublisher writes executions to a single topic keyed by symbol, so all
// executions of one instrument land on one partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			Async:                  false,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, symbol string, executions []*domain.Execution) error {
	if len(executions) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(executions))
	for _, exec := range executions {
		data, err := encode(exec)
		if err != nil {
			return err
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(symbol),
			Value: data,
			Time:  exec.Timestamp,
		})
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to write %d executions: %w", len(messages), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
