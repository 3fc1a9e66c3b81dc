package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultBackoffDelay = 5 * time.Second
)

// Fetcher reads the current snapshot of a task. [services.JobClient] satisfies it.
//
// A task unknown to the processor must be reported with an error wrapping [shared.ErrTaskNotFound].
type Fetcher interface {
	Status(ctx context.Context, taskID string) (models.Snapshot, error)
}

// PullOpts configures a [PullChannel].
type PullOpts struct {
	Interval time.Duration // Delay between successful requests
	Backoff  time.Duration // Delay before the single retry after a failed request
	Clock    Clock
	Logger   *log.Logger
}

// PullStats is a point-in-time view of a pull channel's counters.
type PullStats struct {
	Requests            int
	ConsecutiveFailures int
	Backoffs            int
}

// PullChannel polls the processor for a task's status on a fixed interval.
//
// Requests never overlap: the next tick is only scheduled once the previous response has been handled.
type PullChannel struct {
	fetcher  Fetcher
	interval time.Duration
	backoff  time.Duration
	clock    Clock
	logger   *log.Logger

	mu      sync.Mutex
	used    bool
	closed  bool
	taskID  string
	ctx     context.Context
	cancel  context.CancelFunc
	timer   Timer
	handler Handler
	stats   PullStats
}

// NewPullChannel creates an unopened pull channel.
func NewPullChannel(f Fetcher, opts PullOpts) *PullChannel {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoffDelay
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	return &PullChannel{
		fetcher:  f,
		interval: opts.Interval,
		backoff:  opts.Backoff,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
}

func (p *PullChannel) Kind() Kind { return KindPull }

// Open schedules the first request immediately.
func (p *PullChannel) Open(ctx context.Context, taskID string, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used || p.closed {
		return fmt.Errorf("%w: pull channel already used", shared.ErrChannelClosed)
	}

	p.used = true
	p.taskID = taskID
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.handler = h
	p.timer = p.clock.AfterFunc(0, p.tick)
	return nil
}

// Close stops the pending tick and cancels any in-flight request. Safe to call repeatedly.
func (p *PullChannel) Close(code int, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
	}
}

// Stats returns a copy of the channel's counters.
func (p *PullChannel) Stats() PullStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *PullChannel) tick() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.stats.Requests++
	ctx, taskID := p.ctx, p.taskID
	p.mu.Unlock()

	snap, err := p.fetcher.Status(ctx, taskID)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	var (
		ev   Event
		next time.Duration
		stop bool
	)
	switch {
	case err == nil:
		p.stats.ConsecutiveFailures = 0
		ev = Event{Type: EventSnapshot, Snapshot: snap.Normalize()}
		next = p.interval
	case errors.Is(err, shared.ErrTaskNotFound):
		ev = Event{Type: EventVanished, Err: err}
		stop = true
	default:
		p.stats.ConsecutiveFailures++
		p.stats.Backoffs++
		ev = Event{Type: EventTransportError, Err: err}
		next = p.backoff
		p.logger.Warn("status check failed, backing off", "task_id", taskID, "retry_in", next, "failures", p.stats.ConsecutiveFailures, "err", err)
	}
	h := p.handler
	p.mu.Unlock()

	h(ev)
	if stop {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.timer = p.clock.AfterFunc(next, p.tick)
	}
}
