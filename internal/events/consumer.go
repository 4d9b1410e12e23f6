package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Handler processes a decoded run event.
type Handler func(ctx context.Context, event RunFinishedEvent) error

// ConsumerConfig holds configuration for the run event consumer.
type ConsumerConfig struct {
	ProjectID        string
	SubscriptionName string
	Handler          Handler
	Logger           zerolog.Logger

	// MaxRestartInterval caps the backoff between Receive restarts.
	// Default: 1 minute
	MaxRestartInterval time.Duration
}

// Consumer receives run events from a Pub/Sub subscription.
type Consumer struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	handler          Handler
	logger           zerolog.Logger
	maxRestart       time.Duration
	receive          func(ctx context.Context) error
}

// ackable is the part of *pubsub.Message the consumer settles.
type ackable interface {
	Ack()
	Nack()
}

// NewConsumer creates a run event consumer.
func NewConsumer(ctx context.Context, cfg ConsumerConfig) (*Consumer, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 100
	subscriber.ReceiveSettings.MaxExtension = time.Minute

	c := &Consumer{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		handler:          cfg.Handler,
		logger:           cfg.Logger,
		maxRestart:       cfg.MaxRestartInterval,
	}
	c.receive = c.receiveOnce
	return c, nil
}

// Start receives messages until ctx is cancelled. Receive is restarted with
// exponential backoff when the subscription stream fails.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info().
		Str("subscription", c.subscriptionName).
		Msg("starting run event consumer")

	maxInterval := c.maxRestart
	if maxInterval <= 0 {
		maxInterval = time.Minute
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = min(time.Second, maxInterval)
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		err := c.receive(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			// Receive only returns nil on cancellation or subscription deletion.
			return backoff.Permanent(errors.New("subscription receive stopped"))
		}
		return err
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("run event receive failed, restarting")
	})
}

func (c *Consumer) receiveOnce(ctx context.Context) error {
	return c.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := c.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()
		c.handle(ctx, msg.Data, msg, logger)
	})
}

// Close closes the Pub/Sub client.
func (c *Consumer) Close() error {
	return c.client.Close()
}

func (c *Consumer) handle(ctx context.Context, data []byte, msg ackable, logger zerolog.Logger) {
	event, err := DecodeRunFinished(data)
	if errors.Is(err, ErrUnknownEventType) {
		logger.Warn().Err(err).Msg("ignoring event")
		msg.Ack() // Ack unknown messages to prevent redelivery
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		msg.Ack() // A malformed payload never becomes valid
		return
	}

	if err := c.handler(ctx, event); err != nil {
		logger.Error().Err(err).Str("run_id", event.RunID).Msg("run event handler failed")
		msg.Nack()
		return
	}

	msg.Ack()
}
