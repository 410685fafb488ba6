// Package sweep periodically purges cached messages that fail the admission
// predicate, independently of the replicators.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
)

// DefaultCron runs the sweep every ten minutes.
const DefaultCron = "*/10 * * * *"

// Store is the cache surface the sweeper needs.
type Store interface {
	DeleteInvalidMessages() (int64, error)
}

// Sweeper runs RunOnce on a cron schedule.
type Sweeper struct {
	db     Store
	bus    *bus.Bus
	cron   string
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a sweeper. An empty expression uses DefaultCron.
func New(db Store, b *bus.Bus, expr string, logger *zap.Logger) (*Sweeper, error) {
	if expr == "" {
		expr = DefaultCron
	}
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid sweep cron %q", expr)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{db: db, bus: b, cron: expr, logger: logger, now: time.Now}, nil
}

// Start launches the schedule loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
	s.logger.Info("sweeper started", zap.String("cron", s.cron))
}

// Stop ends the schedule loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)
	for {
		next, err := gronx.NextTickAfter(s.cron, s.now(), false)
		if err != nil {
			s.logger.Error("failed to compute next sweep", zap.String("cron", s.cron), zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-time.After(time.Until(next)):
			if _, err := s.RunOnce(); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce deletes every invalid cached message and returns how many rows
// were removed. Overlapping calls are skipped.
func (s *Sweeper) RunOnce() (int64, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return 0, nil
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	n, err := s.db.DeleteInvalidMessages()
	if err != nil {
		return 0, fmt.Errorf("delete invalid messages: %w", err)
	}
	if s.bus != nil {
		s.bus.Emit(bus.SweepFinished, "", "removed", fmt.Sprint(n))
	}
	if n > 0 {
		s.logger.Info("swept invalid messages", zap.Int64("removed", n))
	}
	return n, nil
}
