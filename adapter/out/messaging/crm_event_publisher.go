package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"crm_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

// defaultEventsMaxLen caps the events stream; trimming is approximate.
const defaultEventsMaxLen = 10000

// StreamPublisher implements out.EventPublisher on a Redis stream.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamPublisher creates a publisher writing to StreamEvents.
func NewStreamPublisher(client *redis.Client) *StreamPublisher {
	return &StreamPublisher{client: client, stream: StreamEvents, maxLen: defaultEventsMaxLen}
}

// Publish appends the event to the stream.
func (p *StreamPublisher) Publish(ctx context.Context, event *out.PipelineEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"type": event.Type,
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", p.stream, err)
	}
	return nil
}

// Fanout publishes each event to every publisher. All publishers are tried;
// their errors are joined.
type Fanout []out.EventPublisher

// Publish implements out.EventPublisher.
func (f Fanout) Publish(ctx context.Context, event *out.PipelineEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ out.EventPublisher = (*StreamPublisher)(nil)
	_ out.EventPublisher = Fanout(nil)
)
