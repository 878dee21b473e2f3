package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"crm_server/adapter/out/messaging"
	"crm_server/pkg/apperr"
)

// ErrPoolStopped is returned by Handle once the pool no longer accepts jobs.
var ErrPoolStopped = errors.New("worker pool stopped")

// PoolConfig holds worker pool configuration.
type PoolConfig struct {
	Workers          int                      // concurrent jobs
	WorkerChanSize   int                      // per worker buffer
	JobTimeout       time.Duration            // default per job timeout
	JobTimeoutByKind map[string]time.Duration // per stream timeout
	MetricsInterval  time.Duration            // 0 disables the reporter
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:        2,
		WorkerChanSize: 16,
		JobTimeout:     time.Minute,
		JobTimeoutByKind: map[string]time.Duration{
			messaging.StreamPipelineRun: 5 * time.Minute, // fetch + classify + side stores
			messaging.StreamAllocate:    time.Minute,
		},
		MetricsInterval: time.Minute,
	}
}

// PoolMetrics holds pool metrics.
type PoolMetrics struct {
	JobsProcessed  int64
	JobsFailed     int64
	JobsTimedOut   int64
	AvgProcessTime int64 // milliseconds
	InFlight       int32
}

// Pool runs stream jobs on a fixed go-pkgz/pool worker group. Handle blocks
// until the job finished so the consumer only acknowledges completed work.
type Pool struct {
	handler *Handler
	config  *PoolConfig
	log     zerolog.Logger

	group   *pool.WorkerGroup[*Job]
	metrics PoolMetrics

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	started bool
}

// jobWorker implements pool.Worker for Job processing.
type jobWorker struct {
	pool *Pool
}

// Do implements pool.Worker.
func (w *jobWorker) Do(ctx context.Context, job *Job) error {
	err := w.pool.processJob(ctx, job)
	job.done <- err
	return err
}

// NewPool creates a worker pool. A nil config uses DefaultPoolConfig.
func NewPool(handler *Handler, config *PoolConfig, log zerolog.Logger) *Pool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler: handler,
		config:  config,
		log:     log.With().Str("component", "worker_pool").Logger(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts the worker group.
func (p *Pool) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	p.group = pool.New[*Job](p.config.Workers, &jobWorker{pool: p}).
		WithBatchSize(1).
		WithWorkerChanSize(p.config.WorkerChanSize).
		WithContinueOnError()
	if err := p.group.Go(p.ctx); err != nil {
		return err
	}
	p.started = true

	if p.config.MetricsInterval > 0 {
		go p.metricsReporter()
	}

	p.log.Info().
		Int("workers", p.config.Workers).
		Int("worker_chan_size", p.config.WorkerChanSize).
		Msg("worker pool started")
	return nil
}

// Stop waits for in-flight jobs up to 30 seconds and stops the group.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	p.log.Info().Msg("stopping worker pool...")

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	if err := p.group.Close(closeCtx); err != nil && !errors.Is(err, context.Canceled) {
		p.log.Warn().Err(err).Msg("error closing worker group")
	}
	p.cancel()

	p.log.Info().
		Int64("processed", atomic.LoadInt64(&p.metrics.JobsProcessed)).
		Int64("failed", atomic.LoadInt64(&p.metrics.JobsFailed)).
		Msg("worker pool stopped")
}

// Handle implements messaging.JobHandler. It sends the job and waits for
// its result or for ctx. Safe for concurrent use.
func (p *Pool) Handle(ctx context.Context, stream string, data []byte) error {
	p.mu.RLock()
	if !p.started {
		p.mu.RUnlock()
		return ErrPoolStopped
	}
	job := NewJob(stream, data)
	// Handle runs on every consumer goroutine; Submit is single-producer only.
	p.group.Send(job)
	p.mu.RUnlock()

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// timeoutFor returns the timeout for a stream.
func (p *Pool) timeoutFor(stream string) time.Duration {
	if timeout, ok := p.config.JobTimeoutByKind[stream]; ok {
		return timeout
	}
	return p.config.JobTimeout
}

// processJob runs a single job under its timeout.
func (p *Pool) processJob(ctx context.Context, job *Job) error {
	start := time.Now()
	atomic.AddInt32(&p.metrics.InFlight, 1)
	defer atomic.AddInt32(&p.metrics.InFlight, -1)

	timeout := p.timeoutFor(job.Stream)
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.handler.Process(jobCtx, job)
	p.updateAvgProcessTime(time.Since(start).Milliseconds())

	if err != nil {
		atomic.AddInt64(&p.metrics.JobsFailed, 1)
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperr.Timeout(job.Kind()).WithError(err)
			atomic.AddInt64(&p.metrics.JobsTimedOut, 1)
			p.log.Warn().
				Str("job_id", job.ID).
				Str("job_kind", job.Kind()).
				Dur("timeout", timeout).
				Msg("job timed out")
		}
		p.log.Error().
			Err(err).
			Str("job_id", job.ID).
			Str("job_kind", job.Kind()).
			Msg("job processing failed")
		return err
	}

	atomic.AddInt64(&p.metrics.JobsProcessed, 1)
	return nil
}

// updateAvgProcessTime keeps a moving average of job latency.
func (p *Pool) updateAvgProcessTime(elapsed int64) {
	current := atomic.LoadInt64(&p.metrics.AvgProcessTime)
	if current == 0 {
		atomic.StoreInt64(&p.metrics.AvgProcessTime, elapsed)
		return
	}
	atomic.StoreInt64(&p.metrics.AvgProcessTime, (current*9+elapsed)/10)
}

// metricsReporter periodically logs metrics.
func (p *Pool) metricsReporter() {
	ticker := time.NewTicker(p.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			m := p.Metrics()
			p.log.Info().
				Int64("processed", m.JobsProcessed).
				Int64("failed", m.JobsFailed).
				Int64("timed_out", m.JobsTimedOut).
				Int64("avg_process_ms", m.AvgProcessTime).
				Int32("in_flight", m.InFlight).
				Msg("worker pool metrics")
		}
	}
}

// Metrics returns current pool metrics.
func (p *Pool) Metrics() PoolMetrics {
	return PoolMetrics{
		JobsProcessed:  atomic.LoadInt64(&p.metrics.JobsProcessed),
		JobsFailed:     atomic.LoadInt64(&p.metrics.JobsFailed),
		JobsTimedOut:   atomic.LoadInt64(&p.metrics.JobsTimedOut),
		AvgProcessTime: atomic.LoadInt64(&p.metrics.AvgProcessTime),
		InFlight:       atomic.LoadInt32(&p.metrics.InFlight),
	}
}

var _ messaging.JobHandler = (*Pool)(nil)
