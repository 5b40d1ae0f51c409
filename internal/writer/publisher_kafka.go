package writer

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher produces tasks synchronously so acceptance means the broker
// acknowledged the record.
type KafkaPublisher struct {
	client *kgo.Client
}

func NewKafkaPublisher(client *kgo.Client) *KafkaPublisher {
	return &KafkaPublisher{client: client}
}

func (p *KafkaPublisher) Publish(ctx context.Context, task Task) error {
	record := &kgo.Record{
		Topic: task.Topic,
		Key:   []byte(task.Key),
		Value: task.Value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", task.Topic, err)
	}
	return nil
}
