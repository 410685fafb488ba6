// Package outbox publishes locally authored writes to the graph and waits for
// their best-effort acknowledgement. There is no automatic retry: a write that
// is not acknowledged in time is reported and left to the caller.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/graph"
)

// ErrAckTimeout is wrapped by NetworkAckError when no ack arrived in time.
var ErrAckTimeout = errors.New("ack timeout")

const (
	defaultAckTimeout = 10 * time.Second
	defaultWorkers    = 4
	queueSize         = 256
)

// NetworkAckError reports a write that failed or was never acknowledged.
type NetworkAckError struct {
	Path string
	Err  error
}

func (e *NetworkAckError) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Path, e.Err)
}

func (e *NetworkAckError) Unwrap() error { return e.Err }

// Job is a queued background publish.
type Job struct {
	Group string
	MsgID string
	Path  string
	Node  graph.Node
	// OnAck runs after a successful acknowledgement.
	OnAck func()
}

// Publisher writes to the graph and waits for acks. Background jobs are
// drained by a small worker pool started with Start.
type Publisher struct {
	graph   graph.Graph
	bus     *bus.Bus
	timeout time.Duration
	workers int
	limiter *rate.Limiter
	logger  *zap.Logger

	jobs   chan Job
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPublisher creates a new publisher. A zero timeout uses a default.
func NewPublisher(g graph.Graph, b *bus.Bus, timeout time.Duration, logger *zap.Logger) *Publisher {
	if timeout <= 0 {
		timeout = defaultAckTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		graph:   g,
		bus:     b,
		timeout: timeout,
		workers: defaultWorkers,
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  logger,
		jobs:    make(chan Job, queueSize),
	}
}

// SetRate caps background publishes at perSecond with the given burst. It
// must be called before Start. A non-positive rate removes the cap.
func (p *Publisher) SetRate(perSecond float64, burst int) {
	if perSecond <= 0 {
		p.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	if burst < 1 {
		burst = 1
	}
	p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Start launches the workers.
func (p *Publisher) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for range p.workers {
		p.wg.Add(1)
		go p.loop(ctx)
	}
}

// Stop stops the workers. Jobs still queued are abandoned; their messages
// stay pending.
func (p *Publisher) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Publisher) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobs:
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
			p.process(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Publisher) process(ctx context.Context, job Job) {
	err := p.Publish(ctx, job.Path, job.Node)
	if err != nil {
		p.logger.Warn("publish not acknowledged",
			zap.String("group", job.Group), zap.String("msg_id", job.MsgID), zap.Error(err))
		if p.bus != nil {
			p.bus.Emit(bus.MessageAckFailed, job.Group, "msg_id", job.MsgID, "error", err.Error())
		}
		return
	}
	if job.OnAck != nil {
		job.OnAck()
	}
}

// Enqueue schedules a background publish. It blocks only while the queue is
// full and returns ctx's error if ctx ends first.
func (p *Publisher) Enqueue(ctx context.Context, job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Publish writes node at path and waits for the acknowledgement. Any failure
// is returned as a *NetworkAckError.
func (p *Publisher) Publish(ctx context.Context, path string, node graph.Node) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	acked := make(chan error, 1)
	p.graph.Put(ctx, path, node, func(err error) {
		select {
		case acked <- err:
		default:
		}
	})

	select {
	case err := <-acked:
		if err != nil {
			return &NetworkAckError{Path: path, Err: err}
		}
		return nil
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrAckTimeout
		}
		return &NetworkAckError{Path: path, Err: err}
	}
}
