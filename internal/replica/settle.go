package replica

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/status"
)

// settleDetector declares the initial sync of a fresh join finished once no
// message event arrived for a quiet period. It is a heuristic: a slow peer's
// backlog can still arrive afterwards and flows through the normal path.
type settleDetector struct {
	poll, quiet time.Duration
	now         func() time.Time
	onSettle    func()

	mu           sync.Mutex
	lastReceived time.Time
	syncing      bool

	done chan struct{}
	once sync.Once
}

func newSettleDetector(poll, quiet time.Duration, now func() time.Time, onSettle func()) *settleDetector {
	return &settleDetector{
		poll:         poll,
		quiet:        quiet,
		now:          now,
		onSettle:     onSettle,
		lastReceived: now(),
		syncing:      true,
		done:         make(chan struct{}),
	}
}

func (d *settleDetector) start() {
	go d.loop()
}

func (d *settleDetector) loop() {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if d.check() {
				d.onSettle()
				return
			}
		case <-d.done:
			return
		}
	}
}

// touch records an inbound message event, valid or not.
func (d *settleDetector) touch() {
	d.mu.Lock()
	d.lastReceived = d.now()
	d.mu.Unlock()
}

// check flips syncing off once the quiet period elapsed. It returns true
// exactly once.
func (d *settleDetector) check() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.syncing || d.now().Sub(d.lastReceived) < d.quiet {
		return false
	}
	d.syncing = false
	return true
}

func (d *settleDetector) isSyncing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.syncing
}

func (d *settleDetector) stop() {
	d.once.Do(func() { close(d.done) })
}

// onSettled reloads the latest page into the view, merging rows that arrived
// while syncing, and moves the session to Live.
func (e *Engine) onSettled(s *Session) {
	pub := s.group.Pub

	s.mu.Lock()
	var err error
	if s.focused {
		err = e.mergeLatestLocked(s)
	}
	s.mu.Unlock()
	if err != nil {
		e.logger.Error("failed to reload after settle", zap.String("group", pub), zap.Error(err))
	}

	if err := e.db.SaveCheckpoint(pub, e.now().UnixMilli()); err != nil {
		e.logger.Error("failed to save settle checkpoint", zap.String("group", pub), zap.Error(err))
	}
	if err := s.phase.Transition(status.Live); err != nil {
		// Closed while settling.
		return
	}
	e.bus.Emit(bus.SyncSettled, pub)
	e.logger.Info("initial sync settled", zap.String("group", pub))
}

// mergeLatestLocked adds the newest page to the view without touching the
// cursor, skipping msgIds already present.
func (e *Engine) mergeLatestLocked(s *Session) error {
	rows, err := e.db.ListMessagesBefore(s.group.Pub, 0, e.opts.PageSize)
	if err != nil {
		return err
	}
	for _, m := range rows {
		s.addToViewLocked(m)
	}
	if !s.loaded {
		s.loaded = true
		if len(rows) < e.opts.PageSize {
			s.cursor = 0
		} else {
			s.cursor = rows[0].ID
		}
	}
	return nil
}

// Syncing reports whether group is still in its initial sync.
func (e *Engine) Syncing(group string) (bool, error) {
	s, err := e.session(group)
	if err != nil {
		return false, err
	}
	return s.settle != nil && s.settle.isSyncing(), nil
}
