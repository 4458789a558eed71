package contextstore

import (
	"context"
	"sync"
	"time"

	"github.com/run-bigpig/plan-context/pkg/interfaces"
	"github.com/run-bigpig/plan-context/pkg/logging"
)

// Sweeper calls Sweep on a context store at a fixed interval.
// It drives any interfaces.ContextStore, so a store wrapped in tracing or
// metrics middleware is swept through the wrappers.
type Sweeper struct {
	target   interfaces.ContextStore
	interval time.Duration
	logger   logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper for target. interval must be positive.
func NewSweeper(target interfaces.ContextStore, interval time.Duration, logger logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sweeper{target: target, interval: interval, logger: logger}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.target.Sweep(ctx); err != nil {
				s.logger.Warn(ctx, "plan context sweep failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}

// Start launches Run in the background. It is a no-op if the sweeper is
// already running. The sweeper stops when Stop is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.Run(runCtx)
	}()

	s.logger.Info(ctx, "plan context sweep started", map[string]interface{}{
		"sweep_interval": s.interval.String(),
	})
}

// Stop stops the sweeper and waits for it to exit.
// Calling Stop on a sweeper that was never started is a no-op.
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

// Running reports whether Start was called without a matching Stop
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
