package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SweepFunc does one pass of periodic maintenance and reports how many rows
// it touched.
type SweepFunc func(ctx context.Context, now time.Time) (int, error)

// Sweeper runs a SweepFunc on a ticker until stopped.
type Sweeper struct {
	name     string
	interval time.Duration
	sweep    SweepFunc
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(name string, interval time.Duration, sweep SweepFunc, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{name: name, interval: interval, sweep: sweep, logger: logger}
}

// Start runs one pass immediately, then one per interval.
func (s *Sweeper) Start(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep and logs the outcome.
func (s *Sweeper) RunOnce(ctx context.Context) {
	n, err := s.sweep(ctx, time.Now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("sweep failed", "sweeper", s.name, "error", err)
		}
		return
	}
	if n > 0 {
		s.logger.Info("sweep completed", "sweeper", s.name, "affected", n)
	}
}
