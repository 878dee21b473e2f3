package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"crm_server/adapter/in/worker"
	"crm_server/adapter/out/messaging"
	"crm_server/config"

	"github.com/rs/zerolog"
)

// Worker consumes pipeline and allocation jobs and runs the scheduler.
type Worker struct {
	pool      *worker.Pool
	consumers []*messaging.Consumer
	scheduler *worker.Scheduler
	zlog      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker wires the pool, one stream consumer per worker slot and the
// scheduler. Without Redis only the scheduler runs.
func NewWorker(cfg *config.Config, deps *Dependencies) *Worker {
	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "worker").Logger()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zlog = zlog.Level(level)
	}

	poolConfig := worker.DefaultPoolConfig()
	poolConfig.Workers = cfg.WorkerCount
	if cfg.WorkerQueue > 0 {
		poolConfig.WorkerChanSize = cfg.WorkerQueue
	}
	pool := worker.NewPool(worker.NewHandler(deps.Pipeline), poolConfig, zlog)

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		pool:      pool,
		scheduler: worker.NewScheduler(deps.Pipeline, deps.jobProducer(), cfg.SyncInterval),
		zlog:      zlog,
		ctx:       ctx,
		cancel:    cancel,
	}

	if deps.Redis == nil {
		zlog.Warn().Msg("Redis not available, worker will only run scheduled pipelines")
		return w
	}

	streams := []string{messaging.StreamPipelineRun, messaging.StreamAllocate}
	for i := 0; i < cfg.WorkerCount; i++ {
		w.consumers = append(w.consumers, messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
			Group:      cfg.ConsumerGroup,
			Consumer:   fmt.Sprintf("%s-%d", cfg.WorkerID, i),
			Streams:    streams,
			Handler:    pool,
			Logger:     zlog,
			ReadBlock:  cfg.ConsumerBlock,
			MaxRetries: cfg.ConsumerRetries,
		}))
	}
	zlog.Info().
		Int("consumers", len(w.consumers)).
		Strs("streams", streams).
		Msg("Redis Stream consumers configured")
	return w
}

// Start runs until Stop is called.
func (w *Worker) Start() error {
	if err := w.pool.Start(); err != nil {
		return fmt.Errorf("start worker pool: %w", err)
	}

	for _, consumer := range w.consumers {
		w.wg.Add(1)
		go func(c *messaging.Consumer) {
			defer w.wg.Done()
			if err := c.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.zlog.Error().Err(err).Msg("Redis Stream consumer error")
			}
		}(consumer)
	}

	w.scheduler.Start(w.ctx)

	<-w.ctx.Done()
	return nil
}

// Stop stops consuming, then drains the pool.
func (w *Worker) Stop() {
	w.cancel()
	w.scheduler.Stop()
	w.wg.Wait()
	w.pool.Stop()
}

// Metrics returns current pool metrics.
func (w *Worker) Metrics() worker.PoolMetrics {
	return w.pool.Metrics()
}
