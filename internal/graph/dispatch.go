package graph

import "sync"

// subscriber owns an unbounded queue drained by a single goroutine, so a
// handler never runs on the writer's goroutine and never sees events out of
// the order they were queued.
type subscriber struct {
	path     string
	children bool
	h        Handler

	mu    sync.Mutex
	queue []Event
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newSubscriber(p string, children bool, h Handler) *subscriber {
	s := &subscriber{
		path:     p,
		children: children,
		h:        h,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscriber) push(ev Event) {
	ev.Value = ev.Value.Clone()
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.h(ev)
		}
	}
}

// matches reports whether an event at p belongs to this subscription.
func (s *subscriber) matches(p string) bool {
	if s.children {
		parent, _ := Split(p)
		return parent == s.path
	}
	return p == s.path
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.done) })
}
