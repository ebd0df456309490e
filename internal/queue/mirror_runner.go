package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vogiaan1904/ticketbottle-allocation/config"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/clock"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/logger"
)

// ReservationApplier is implemented by the waitlist service. It must be
// idempotent per job token: the mirror path may re-run a job the primary
// path already handled.
type ReservationApplier interface {
	ApplyReservation(ctx context.Context, job ReservationJob) error
}

type MirrorRunner interface {
	Start(ctx context.Context) error
	Stop() error
	RunOnce(ctx context.Context) (int, error)
	Status() MirrorStatus
}

type MirrorStatus struct {
	IsRunning   bool      `json:"is_running"`
	LastRunAt   time.Time `json:"last_run_at,omitempty"`
	Takeovers   int64     `json:"takeovers"`
	SkippedDone int64     `json:"skipped_done"`
	ErrorCount  int64     `json:"error_count"`
}

type mirrorRunner struct {
	mirror  MirrorQueue
	jobs    JobStore
	applier ReservationApplier
	clk     clock.Clock
	cfg     config.ReservationConfig
	l       logger.Logger

	mu        sync.Mutex
	isRunning bool
	lastRunAt time.Time
	takeovers int64
	skipped   int64
	errCount  int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewMirrorRunner(
	mirror MirrorQueue,
	jobs JobStore,
	applier ReservationApplier,
	clk clock.Clock,
	cfg config.ReservationConfig,
	l logger.Logger,
) MirrorRunner {
	return &mirrorRunner{
		mirror:  mirror,
		jobs:    jobs,
		applier: applier,
		clk:     clk,
		cfg:     cfg,
		l:       l,
		stopCh:  make(chan struct{}),
	}
}

func (r *mirrorRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return errors.New("mirror runner is already running")
	}
	r.isRunning = true

	r.wg.Add(1)
	go r.loop(ctx)

	r.l.Info("Mirror runner started",
		"poll_interval", r.cfg.MirrorPollInterval,
		"delay", r.cfg.MirrorDelay,
	)
	return nil
}

func (r *mirrorRunner) Stop() error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return errors.New("mirror runner is not running")
	}
	r.isRunning = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()

	r.l.Info("Mirror runner stopped")
	return nil
}

func (r *mirrorRunner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.MirrorPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.l.Error("Mirror pass failed", "error", err)
			}
		}
	}
}

// RunOnce drains due mirror jobs. Jobs whose primary delivery completed are
// dropped; the rest are applied here. Returns the number of takeovers.
func (r *mirrorRunner) RunOnce(ctx context.Context) (int, error) {
	jobs, err := r.mirror.PopDue(ctx, r.clk.Now(), r.cfg.MirrorBatchSize)
	if err != nil {
		r.incrErr()
		return 0, err
	}

	r.mu.Lock()
	r.lastRunAt = r.clk.Now()
	r.mu.Unlock()

	takeovers := 0
	for _, job := range jobs {
		done, err := r.jobs.IsCompleted(ctx, job.Token)
		if err != nil {
			r.incrErr()
			r.l.Error("Failed to check job status, re-applying",
				"token", job.Token,
				"error", err,
			)
			// Fall through: applying twice is safe, losing a job is not.
		}
		if done {
			r.mu.Lock()
			r.skipped++
			r.mu.Unlock()
			continue
		}

		if err := r.applier.ApplyReservation(ctx, job); err != nil {
			r.incrErr()
			r.l.Error("Mirror apply failed",
				"token", job.Token,
				"entry_id", job.EntryID,
				"error", err,
			)
			continue
		}

		if err := r.jobs.MarkCompleted(ctx, job.Token); err != nil {
			r.l.Warn("Failed to mark mirrored job completed",
				"token", job.Token,
				"error", err,
			)
		}

		takeovers++
		// A takeover means the primary path never confirmed this job.
		// Frequent takeovers are an operational signal worth alerting on.
		r.l.Warn("Mirror path took over reservation job",
			"token", job.Token,
			"entry_id", job.EntryID,
			"event_id", job.EventID,
		)
	}

	if takeovers > 0 {
		r.mu.Lock()
		r.takeovers += int64(takeovers)
		r.mu.Unlock()
	}

	return takeovers, nil
}

func (r *mirrorRunner) Status() MirrorStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	return MirrorStatus{
		IsRunning:   r.isRunning,
		LastRunAt:   r.lastRunAt,
		Takeovers:   r.takeovers,
		SkippedDone: r.skipped,
		ErrorCount:  r.errCount,
	}
}

func (r *mirrorRunner) incrErr() {
	r.mu.Lock()
	r.errCount++
	r.mu.Unlock()
}
