package events

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
)

// NewAMQPPublisher publishes to a fanout exchange per topic.
func NewAMQPPublisher(url string, logger watermill.LoggerAdapter) (*amqp.Publisher, error) {
	pub, err := amqp.NewPublisher(amqp.NewDurablePubSubConfig(url, amqp.GenerateQueueNameTopicNameWithSuffix("publisher")), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create amqp publisher: %w", err)
	}
	return pub, nil
}

// NewAMQPSubscriber binds a queue named after the topic and instance, so every server
// instance receives every event.
func NewAMQPSubscriber(url, instance string, logger watermill.LoggerAdapter) (*amqp.Subscriber, error) {
	cfg := amqp.NewDurablePubSubConfig(url, amqp.GenerateQueueNameTopicNameWithSuffix(instance))
	cfg.Consume.NoRequeueOnNack = true
	sub, err := amqp.NewSubscriber(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create amqp subscriber: %w", err)
	}
	return sub, nil
}
