package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"crm_server/core/port/out"
	"crm_server/pkg/logger"
)

// Scheduler triggers a pipeline run every interval. With a producer it
// enqueues a job so any worker can pick it up; otherwise it runs in process.
type Scheduler struct {
	pipeline Pipeline
	producer out.JobProducer
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler. producer may be nil.
func NewScheduler(p Pipeline, producer out.JobProducer, interval time.Duration) *Scheduler {
	return &Scheduler{
		pipeline: p,
		producer: producer,
		interval: interval,
		now:      time.Now,
	}
}

// Start starts the loop. A non positive interval disables the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	if s.interval <= 0 {
		logger.Info("[Scheduler] disabled")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	logger.Info("[Scheduler] starting, interval %s", s.interval)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the loop and waits for an in-flight tick.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	logger.Info("[Scheduler] stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick triggers one run.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.producer != nil {
		job := &out.PipelineRunJob{
			JobID:       uuid.NewString(),
			Trigger:     "schedule",
			RequestedAt: s.now().UTC(),
		}
		if err := s.producer.PublishPipelineRun(ctx, job); err != nil {
			logger.Error("[Scheduler.Tick] failed to publish pipeline job: %v", err)
			return
		}
		logger.Debug("[Scheduler.Tick] published pipeline job %s", job.JobID)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	if _, err := s.pipeline.Run(runCtx); err != nil {
		logger.Warn("[Scheduler.Tick] scheduled run failed: %v", err)
	}
}
