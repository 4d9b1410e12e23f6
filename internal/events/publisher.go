package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/routesafe/routesafe/internal/pipeline"
	"github.com/routesafe/routesafe/internal/routing"
)

// DefaultPublishTimeout bounds waiting for a publish acknowledgement.
const DefaultPublishTimeout = 10 * time.Second

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type messagePublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
	Stop()
}

// topicPublisher adapts *pubsub.Publisher.
type topicPublisher struct {
	p *pubsub.Publisher
}

func (t topicPublisher) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return t.p.Publish(ctx, msg)
}

func (t topicPublisher) Stop() {
	t.p.Stop()
}

// PublisherConfig holds configuration for the run publisher.
type PublisherConfig struct {
	ProjectID string
	Topic     string
	Timeout   time.Duration
	Logger    zerolog.Logger
}

// Publisher is a pipeline.Sink that publishes terminal run summaries. Leg
// results are not published.
type Publisher struct {
	client    *pubsub.Client
	publisher messagePublisher
	topic     string
	timeout   time.Duration
	logger    zerolog.Logger
	wg        sync.WaitGroup
}

// NewPublisher connects to Pub/Sub and returns a run publisher.
func NewPublisher(ctx context.Context, cfg PublisherConfig) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	p := newPublisher(topicPublisher{p: client.Publisher(cfg.Topic)}, cfg)
	p.client = client
	return p, nil
}

func newPublisher(mp messagePublisher, cfg PublisherConfig) *Publisher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Publisher{
		publisher: mp,
		topic:     cfg.Topic,
		timeout:   timeout,
		logger:    cfg.Logger,
	}
}

// LegResolved is a no-op.
func (p *Publisher) LegResolved(string, routing.LegResult) {}

// RunFinished publishes the summary. It does not wait for the acknowledgement.
func (p *Publisher) RunFinished(summary pipeline.Summary) {
	event := NewRunFinishedEvent(summary)

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("run_id", summary.RunID).Msg("failed to encode run event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":   TypeRunFinished,
			"status": event.Status,
			"run_id": event.RunID,
		},
	})

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()

		id, err := result.Get(ctx)
		if err != nil {
			p.logger.Error().Err(err).
				Str("run_id", event.RunID).
				Str("topic", p.topic).
				Msg("failed to publish run event")
			return
		}

		p.logger.Debug().
			Str("run_id", event.RunID).
			Str("message_id", id).
			Msg("published run event")
	}()
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	p.publisher.Stop()
	p.wg.Wait()
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
