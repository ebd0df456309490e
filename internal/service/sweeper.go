package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vogiaan1904/ticketbottle-allocation/config"
	repo "github.com/vogiaan1904/ticketbottle-allocation/internal/repository/mongo"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/clock"
	"github.com/vogiaan1904/ticketbottle-allocation/pkg/logger"
)

type Sweeper interface {
	Start(ctx context.Context) error
	Stop() error
	SweepOnce(ctx context.Context) (int, error)
	Status() SweeperStatus
}

type SweeperStatus struct {
	IsRunning    bool      `json:"is_running"`
	LastSweepAt  time.Time `json:"last_sweep_at,omitempty"`
	TotalExpired int64     `json:"total_expired"`
	ErrorCount   int64     `json:"error_count"`
}

// sweeper periodically expires offers whose deadline passed. Expiry is also
// triggered lazily on reads, so the sweep is a backstop rather than the sole
// enforcement point.
type sweeper struct {
	waitlistRepo repo.WaitlistRepository
	svc          WaitlistService
	clk          clock.Clock
	cfg          config.SweeperConfig
	l            logger.Logger

	mu           sync.Mutex
	isRunning    bool
	lastSweepAt  time.Time
	totalExpired int64
	errCount     int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewSweeper(
	waitlistRepo repo.WaitlistRepository,
	svc WaitlistService,
	clk clock.Clock,
	cfg config.SweeperConfig,
	l logger.Logger,
) Sweeper {
	return &sweeper{
		waitlistRepo: waitlistRepo,
		svc:          svc,
		clk:          clk,
		cfg:          cfg,
		l:            l,
		stopCh:       make(chan struct{}),
	}
}

func (s *sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return errors.New("sweeper is already running")
	}
	s.isRunning = true

	s.wg.Add(1)
	go s.loop(ctx)

	s.l.Info("Offer sweeper started",
		"interval", s.cfg.Interval,
		"batch_size", s.cfg.BatchSize,
	)
	return nil
}

func (s *sweeper) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return errors.New("sweeper is not running")
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.l.Info("Offer sweeper stopped")
	return nil
}

func (s *sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.l.Error("Sweep pass failed", "error", err)
			}
		}
	}
}

// SweepOnce expires one batch of lapsed offers and returns how many it
// expired. Entries that race away mid-sweep are counted as expired by
// whoever won; they are simply skipped here.
func (s *sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.clk.Now()

	entries, err := s.waitlistRepo.FindExpiredOffers(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.incrErr()
		return 0, err
	}

	s.mu.Lock()
	s.lastSweepAt = now
	s.mu.Unlock()

	expired := 0
	for _, entry := range entries {
		if err := s.svc.ExpireOffer(ctx, entry.ID); err != nil {
			s.incrErr()
			s.l.Error("Failed to expire offer",
				"entry_id", entry.ID,
				"event_id", entry.EventID,
				"error", err,
			)
			continue
		}
		expired++
	}

	if expired > 0 {
		s.mu.Lock()
		s.totalExpired += int64(expired)
		s.mu.Unlock()

		s.l.Info("Sweep pass expired offers", "count", expired)
	}

	return expired, nil
}

func (s *sweeper) Status() SweeperStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SweeperStatus{
		IsRunning:    s.isRunning,
		LastSweepAt:  s.lastSweepAt,
		TotalExpired: s.totalExpired,
		ErrorCount:   s.errCount,
	}
}

func (s *sweeper) incrErr() {
	s.mu.Lock()
	s.errCount++
	s.mu.Unlock()
}
