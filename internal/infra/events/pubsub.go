// Package events carries published quiz results from the coordinator to
// durable stores over a watermill pub/sub.
package events

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Transport selects the pub/sub backing the result pipeline.
type Transport struct {
	// KafkaBrokers switches to Kafka when non-empty.
	KafkaBrokers  []string
	ConsumerGroup string
}

// NewPubSub returns a publisher and subscriber pair: Kafka when brokers are
// configured, otherwise a single in-process channel.
func NewPubSub(t Transport, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	if len(t.KafkaBrokers) == 0 {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return ch, ch, nil
	}

	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   t.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka publisher: %w", err)
	}
	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               t.KafkaBrokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		ConsumerGroup:         t.ConsumerGroup,
		OverwriteSaramaConfig: kafka.DefaultSaramaSubscriberConfig(),
	}, logger)
	if err != nil {
		_ = publisher.Close()
		return nil, nil, fmt.Errorf("kafka subscriber: %w", err)
	}
	return publisher, subscriber, nil
}
