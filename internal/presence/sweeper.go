package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirepresence/internal/log"
)

// Sweepable is anything that can evict stale presence.
type Sweepable interface {
	Sweep(ctx context.Context) ([]Identity, error)
}

// Sweeper runs Sweep on a fixed interval between Start and Stop.
// Each run is bounded by the interval; failures are retried on the next tick.
type Sweeper struct {
	target   Sweepable
	interval time.Duration
	log      *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a stopped sweeper.
func NewSweeper(target Sweepable, interval time.Duration, logger *zerolog.Logger) *Sweeper {
	if logger == nil {
		logger = log.Nop()
	}
	return &Sweeper{
		target:   target,
		interval: interval,
		log:      logger,
	}
}

// Start launches the sweep loop. It is a no-op if already running.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
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

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	if _, err := s.target.Sweep(runCtx); err != nil {
		s.log.Warn().Err(err).Msg("presence sweep failed, retrying next tick")
	}
}
