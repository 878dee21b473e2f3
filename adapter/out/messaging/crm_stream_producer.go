// Package messaging provides message queue adapters.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"crm_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

// Stream names
const (
	StreamPipelineRun = "crm:pipeline"
	StreamAllocate    = "crm:allocate"
	StreamEvents      = "crm:events"
)

// DeadLetterStream returns the stream failed jobs of stream are moved to.
func DeadLetterStream(stream string) string {
	return "dlq:" + stream
}

// RedisProducer implements out.JobProducer using Redis Streams.
type RedisProducer struct {
	client *redis.Client
}

// NewRedisProducer creates a new RedisProducer.
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

// PublishPipelineRun publishes a pipeline run job.
func (p *RedisProducer) PublishPipelineRun(ctx context.Context, job *out.PipelineRunJob) error {
	return p.publish(ctx, StreamPipelineRun, job)
}

// PublishAllocate publishes an allocation job.
func (p *RedisProducer) PublishAllocate(ctx context.Context, job *out.AllocateJob) error {
	return p.publish(ctx, StreamAllocate, job)
}

// publish publishes a job to a stream using go-redis.
func (p *RedisProducer) publish(ctx context.Context, stream string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: map[string]any{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	return nil
}

var _ out.JobProducer = (*RedisProducer)(nil)
