package events

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
)

// IndexHandler reacts to a published index.
type IndexHandler func(ctx context.Context, evt IndexPublished) error

// RouterConfig tunes redelivery of failed handlers.
type RouterConfig struct {
	Topic           string
	MaxRetries      int
	InitialInterval time.Duration
}

// NewRouter routes index events from sub to handle. Run it with router.Run(ctx).
func NewRouter(sub message.Subscriber, cfg RouterConfig, logger watermill.LoggerAdapter, handle IndexHandler) (*message.Router, error) {
	if cfg.Topic == "" {
		cfg.Topic = TopicIndexPublished
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = time.Second
	}

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, err
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.InitialInterval,
			Logger:          logger,
		}.Middleware,
	)

	router.AddNoPublisherHandler(
		"index_reloader",
		cfg.Topic,
		sub,
		func(msg *message.Message) error {
			evt, err := Decode(msg)
			if err != nil {
				// malformed events are dropped, redelivery would not fix them
				logger.Error("Dropping index event", err, watermill.LogFields{"uuid": msg.UUID})
				return nil
			}
			return handle(msg.Context(), evt)
		},
	)
	return router, nil
}
