package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studio-class-api/internal/models"
	appErrors "github.com/noah-isme/studio-class-api/pkg/errors"
)

type expiredOfferLister interface {
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.WaitlistEntry, error)
}

type offerExpirer interface {
	Expire(ctx context.Context, entryID string) (*models.WaitlistEntry, error)
}

// WaitlistSweeperConfig tunes the expiry loop.
type WaitlistSweeperConfig struct {
	Interval  time.Duration
	BatchSize int
}

// WaitlistSweeper periodically lapses offers whose window has elapsed so the
// seat cascades to the next client even when nobody touches the session.
type WaitlistSweeper struct {
	lister  expiredOfferLister
	expirer offerExpirer
	config  WaitlistSweeperConfig
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
}

// NewWaitlistSweeper constructs a sweeper.
func NewWaitlistSweeper(lister expiredOfferLister, expirer offerExpirer, cfg WaitlistSweeperConfig, logger *zap.Logger) *WaitlistSweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WaitlistSweeper{
		lister:  lister,
		expirer: expirer,
		config:  cfg,
		logger:  logger,
		now:     utcNow,
		stopCh:  make(chan struct{}),
	}
}

// Start blocks running sweeps until ctx is cancelled or Stop is called.
func (s *WaitlistSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("waitlist sweeper started", zap.Duration("interval", s.config.Interval))

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("waitlist sweeper stopped by context")
			return
		case <-s.stopCh:
			s.logger.Info("waitlist sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Warn("waitlist sweep failed", zap.Error(err))
			}
		}
	}
}

// Stop ends the loop. A sweeper stopped before Start returns immediately from Start.
func (s *WaitlistSweeper) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()
}

// SweepOnce expires one batch of lapsed offers and returns how many were expired.
// An entry already confirmed or expired by a concurrent request is skipped.
func (s *WaitlistSweeper) SweepOnce(ctx context.Context) (int, error) {
	entries, err := s.lister.ListExpired(ctx, s.now(), s.config.BatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, entry := range entries {
		if _, err := s.expirer.Expire(ctx, entry.ID); err != nil {
			if appErrors.HasCode(err, appErrors.ErrInvalidTransition.Code) || appErrors.HasCode(err, appErrors.ErrNotFound.Code) {
				continue
			}
			s.logger.Warn("failed to expire waitlist offer", zap.String("entry_id", entry.ID), zap.Error(err))
			continue
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info("waitlist offers expired", zap.Int("count", expired))
	}
	return expired, nil
}
