// Package events carries index distribution notifications over watermill.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const TopicIndexPublished = "index.published"

// IndexPublished announces index artifacts uploaded under Bucket/Prefix.
type IndexPublished struct {
	BuildID     string    `json:"build_id"`
	Bucket      string    `json:"bucket"`
	Prefix      string    `json:"prefix"`
	Entries     int       `json:"entries"`
	Dimension   int       `json:"dimension"`
	PublishedAt time.Time `json:"published_at"`
}

type Publisher struct {
	publisher message.Publisher
	topic     string
	logger    watermill.LoggerAdapter
}

// NewPublisher publishes on topic, or TopicIndexPublished when topic is empty.
func NewPublisher(publisher message.Publisher, topic string, logger watermill.LoggerAdapter) *Publisher {
	if topic == "" {
		topic = TopicIndexPublished
	}
	return &Publisher{publisher: publisher, topic: topic, logger: logger}
}

// PublishIndex sends evt to every subscribed server.
func (p *Publisher) PublishIndex(ctx context.Context, evt IndexPublished) error {
	if evt.PublishedAt.IsZero() {
		evt.PublishedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal index event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish index event: %w", err)
	}
	p.logger.Info("Index event published", watermill.LogFields{
		"build_id": evt.BuildID,
		"bucket":   evt.Bucket,
		"prefix":   evt.Prefix,
	})
	return nil
}

// Decode reads an IndexPublished payload.
func Decode(msg *message.Message) (IndexPublished, error) {
	var evt IndexPublished
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return IndexPublished{}, fmt.Errorf("failed to unmarshal index event: %w", err)
	}
	if evt.Prefix == "" {
		return IndexPublished{}, fmt.Errorf("index event %s has no prefix", msg.UUID)
	}
	return evt, nil
}
