package repository

import (
	"context"

	"PricePull/internal/domain/models"
	domrepo "PricePull/internal/domain/repository"
	pkgkafka "PricePull/pkg/kafka"

	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"
)

var eventHeaders = []kafka.Header{
	{Key: "content-type", Value: []byte("application/json")},
	{Key: "event-type", Value: []byte("price.resolved")},
}

// KafkaPublisher implements Publisher for Kafka. Events are keyed by series so
// one series stays on one partition.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev models.PriceEvent) error {
	key := models.PriceKey{ItemKey: ev.ItemKey, Region: ev.Region, Grade: ev.Grade}
	return p.producer.Publish(ctx, p.topic, []byte(key.String()), ev, eventHeaders...)
}

// Close is a no-op: the producer is shared and closed by whoever created it.
func (p *KafkaPublisher) Close() error { return nil }

// FanoutPublisher sends every event to all publishers and joins their errors.
type FanoutPublisher struct {
	pubs []domrepo.Publisher
}

func NewFanoutPublisher(pubs ...domrepo.Publisher) *FanoutPublisher {
	out := make([]domrepo.Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return &FanoutPublisher{pubs: out}
}

func (f *FanoutPublisher) Publish(ctx context.Context, ev models.PriceEvent) error {
	var err error
	for _, p := range f.pubs {
		err = multierr.Append(err, p.Publish(ctx, ev))
	}
	return err
}

func (f *FanoutPublisher) Close() error {
	var err error
	for _, p := range f.pubs {
		err = multierr.Append(err, p.Close())
	}
	return err
}

var (
	_ domrepo.Publisher = (*KafkaPublisher)(nil)
	_ domrepo.Publisher = (*FanoutPublisher)(nil)
)
