package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/plan-intel/constants"
	"github.com/joseph-ayodele/plan-intel/internal/entity"
	"github.com/joseph-ayodele/plan-intel/internal/metrics"
)

// HealthService is the service name the worker reports under.
const HealthService = "planintel.worker"

const failWriteTimeout = 10 * time.Second

// Jobs is the part of repository.JobRepository the loop needs.
type Jobs interface {
	ClaimNext(ctx context.Context) (*entity.PlanJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status constants.JobStatus, errMsg *string) (bool, error)
}

type Processor interface {
	Process(ctx context.Context, job *entity.PlanJob) error
}

// HealthReporter is satisfied by *health.Server from google.golang.org/grpc/health.
type HealthReporter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// Worker polls the job table and runs claimed jobs one at a time per loop.
type Worker struct {
	jobs         Jobs
	proc         Processor
	logger       *slog.Logger
	pollInterval time.Duration
	jobTimeout   time.Duration
	concurrency  int
	metrics      *metrics.Metrics
	health       HealthReporter

	mu      sync.Mutex
	serving *healthpb.HealthCheckResponse_ServingStatus
}

type Option func(*Worker)

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.jobTimeout = d
		}
	}
}

// WithConcurrency runs n independent claim loops. Claims stay exclusive through the CAS update.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithHealth(h HealthReporter) Option {
	return func(w *Worker) { w.health = h }
}

func New(jobs Jobs, proc Processor, logger *slog.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		jobs:         jobs,
		proc:         proc,
		logger:       logger,
		pollInterval: 5 * time.Second,
		jobTimeout:   15 * time.Minute,
		concurrency:  1,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run blocks until ctx is cancelled and every loop has finished its current job.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker.run.start",
		"loops", w.concurrency,
		"poll_interval", w.pollInterval,
		"job_timeout", w.jobTimeout,
	)
	w.setServing(healthpb.HealthCheckResponse_SERVING)
	defer w.setServing(healthpb.HealthCheckResponse_NOT_SERVING)

	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(loopID int) {
			defer wg.Done()
			w.loop(ctx, loopID)
		}(i + 1)
	}
	wg.Wait()

	w.logger.Info("worker.run.stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context, loopID int) {
	log := w.logger.With("loop_id", loopID)
	log.Info("worker.loop.start")
	for ctx.Err() == nil {
		if idle := w.iterate(ctx, log); idle && !sleep(ctx, w.pollInterval) {
			break
		}
	}
	log.Info("worker.loop.stopped")
}

// iterate claims and processes at most one job. It reports whether the loop should back off.
func (w *Worker) iterate(ctx context.Context, log *slog.Logger) (idle bool) {
	var job *entity.PlanJob
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		w.metrics.Panic()
		log.Error("worker.panic", "panic", r, "stack", string(debug.Stack()))
		if job != nil {
			w.markFailed(ctx, job, fmt.Sprintf("panic: %v", r), log)
		}
		idle = true
	}()

	job, err := w.jobs.ClaimNext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		w.metrics.LoopError("claim")
		w.setServing(healthpb.HealthCheckResponse_NOT_SERVING)
		log.Error("worker.claim.error", "error", err)
		return true
	}
	w.setServing(healthpb.HealthCheckResponse_SERVING)
	if job == nil {
		return true
	}

	w.metrics.Claimed()
	start := time.Now()
	log.Info("worker.job.claimed", "job_id", job.ID, "file_type", job.FileType)

	jctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()
	if err := w.proc.Process(jctx, job); err != nil {
		log.Error("worker.job.failed", "job_id", job.ID, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds())
		return false
	}
	log.Info("worker.job.done", "job_id", job.ID, "elapsed_ms", time.Since(start).Milliseconds())
	return false
}

func (w *Worker) markFailed(ctx context.Context, job *entity.PlanJob, msg string, log *slog.Logger) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()
	if _, err := w.jobs.UpdateStatus(sctx, job.ID, constants.JobStatusFailed, &msg); err != nil {
		log.Error("worker.status.error", "job_id", job.ID, "error", err)
	}
}

// setServing forwards only transitions to the health reporter.
func (w *Worker) setServing(status healthpb.HealthCheckResponse_ServingStatus) {
	if w.health == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.serving != nil && *w.serving == status {
		return
	}
	w.serving = &status
	w.health.SetServingStatus(HealthService, status)
}

// sleep waits for d; it returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
