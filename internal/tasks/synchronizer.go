package tasks

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/services"
	"github.com/desertthunder/mrx/internal/shared"
	"github.com/desertthunder/mrx/internal/transport"
)

const DefaultReconnectDelay = time.Second

// ChannelFactory builds a fresh, unopened channel. Each session attempt gets its own.
type ChannelFactory func() transport.Channel

// SynchronizerOpts configures a [Synchronizer].
type SynchronizerOpts struct {
	Push           ChannelFactory // Preferred strategy; nil goes straight to Pull
	Pull           ChannelFactory // Fallback strategy; required
	Clock          transport.Clock
	ReconnectDelay time.Duration // Delay before polling after a mid-session push drop
	Logger         *log.Logger
}

// Callbacks receive a session's output. All fields are optional.
//
// OnComplete and OnError each fire at most once per session and never both.
// Callbacks run outside the synchronizer's locks and may unsubscribe re-entrantly.
type Callbacks struct {
	OnSnapshot func(models.Snapshot)
	OnComplete func(models.Snapshot)
	OnError    func(message string)
	OnVanished func() // The processor forgot the task; not an error
}

// SessionStats is a read-only projection of a session's internal state.
type SessionStats struct {
	TaskID     string
	Active     transport.Kind
	Terminated bool
	Snapshots  int
	Failovers  int
	Last       models.Snapshot
}

// Synchronizer keeps one live status subscription per task id, preferring push and failing over to pull.
type Synchronizer struct {
	opts SynchronizerOpts

	mu       sync.Mutex
	sessions map[string]*session
}

// NewSynchronizer creates a synchronizer from explicit channel factories.
func NewSynchronizer(opts SynchronizerOpts) *Synchronizer {
	if opts.Clock == nil {
		opts.Clock = transport.SystemClock
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	return &Synchronizer{opts: opts, sessions: make(map[string]*session)}
}

// NewClientSynchronizer wires websocket and polling channels against a processor client using the [sync] config section.
func NewClientSynchronizer(client *services.JobClient, cfg shared.SyncConfig, logger *log.Logger) *Synchronizer {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	opts := SynchronizerOpts{
		ReconnectDelay: cfg.ReconnectDelay.Duration,
		Logger:         logger,
		Pull: func() transport.Channel {
			return transport.NewPullChannel(client, transport.PullOpts{
				Interval: cfg.PollInterval.Duration,
				Backoff:  cfg.BackoffDelay.Duration,
				Logger:   shared.WithLogger(logger, "channel", transport.KindPull),
			})
		},
	}
	if cfg.PreferPush {
		opts.Push = func() transport.Channel {
			return transport.NewPushChannel(client.WebsocketURL, transport.PushOpts{
				PingInterval: cfg.PingInterval.Duration,
				Logger:       shared.WithLogger(logger, "channel", transport.KindPush),
			})
		}
	}
	return NewSynchronizer(opts)
}

// Subscribe starts a session for taskID and returns its idempotent unsubscribe function.
//
// An empty taskID starts nothing. Subscribing to a task that already has a session tears the old one down first.
func (s *Synchronizer) Subscribe(ctx context.Context, taskID string, cb Callbacks) (unsubscribe func()) {
	if taskID == "" {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	sess := &session{
		owner:  s,
		taskID: taskID,
		cb:     cb,
		ctx:    ctx,
		cancel: cancel,
		logger: shared.WithLogger(s.opts.Logger, "task_id", taskID),
	}

	context.AfterFunc(ctx, func() { sess.terminate("context done") })

	s.mu.Lock()
	prev := s.sessions[taskID]
	s.sessions[taskID] = sess
	s.mu.Unlock()

	if prev != nil {
		prev.terminate("replaced")
	}

	if s.opts.Push != nil {
		sess.activate(transport.KindPush)
	} else {
		sess.activate(transport.KindPull)
	}
	return func() { sess.terminate("unsubscribed") }
}

// Stats returns the stats of the live session for taskID, if any.
func (s *Synchronizer) Stats(taskID string) (SessionStats, bool) {
	s.mu.Lock()
	sess := s.sessions[taskID]
	s.mu.Unlock()
	if sess == nil {
		return SessionStats{}, false
	}
	return sess.stats(), true
}

// Active returns the number of live sessions.
func (s *Synchronizer) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close tears down every live session without firing callbacks.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.terminate("synchronizer closed")
	}
}

func (s *Synchronizer) forget(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.taskID] == sess {
		delete(s.sessions, sess.taskID)
	}
}

// session is the context shared by every channel callback for one task.
//
// deliverMu serializes event handling in arrival order; mu guards the fields below it.
// Once terminated is set it is never cleared and nothing else changes.
type session struct {
	owner  *Synchronizer
	taskID string
	cb     Callbacks
	ctx    context.Context
	cancel context.CancelFunc
	logger *log.Logger

	deliverMu sync.Mutex

	mu         sync.Mutex
	terminated bool
	channel    transport.Channel
	kind       transport.Kind
	opened     bool // current push channel reached EventOpened
	delivered  int  // snapshots from the current channel
	timer      transport.Timer
	snapshots  int
	failovers  int
	last       models.Snapshot
}

// activate opens a new channel of kind and makes it the only live one.
func (ss *session) activate(kind transport.Kind) {
	factory := ss.owner.opts.Pull
	if kind == transport.KindPush {
		factory = ss.owner.opts.Push
	}
	ch := factory()

	ss.mu.Lock()
	if ss.terminated {
		ss.mu.Unlock()
		return
	}
	ss.channel, ss.kind = ch, kind
	ss.opened, ss.delivered = false, 0
	ss.mu.Unlock()

	ss.logger.Info("opening status channel", "channel", kind)
	err := ch.Open(ss.ctx, ss.taskID, func(ev transport.Event) { ss.handle(ch, ev) })
	if err == nil {
		return
	}

	ss.mu.Lock()
	if ss.terminated || ss.channel != ch {
		ss.mu.Unlock()
		return
	}
	if kind == transport.KindPush {
		ss.logger.Warn("push channel unavailable, polling instead", "err", err)
		ss.mu.Unlock()
		ss.failover(ch, 0)
		return
	}
	ss.channel, ss.kind = nil, transport.KindNone
	ss.mu.Unlock()
	ss.logger.Error("could not start polling", "err", err)
}

// handle applies one event from ch. Events from a channel that is no longer active are dropped.
func (ss *session) handle(ch transport.Channel, ev transport.Event) {
	ss.deliverMu.Lock()
	defer ss.deliverMu.Unlock()

	ss.mu.Lock()
	if ss.terminated || ss.channel != ch {
		ss.mu.Unlock()
		return
	}

	switch ev.Type {
	case transport.EventOpened:
		ss.opened = true
		ss.mu.Unlock()
		ss.logger.Info("push channel connected")

	case transport.EventSnapshot:
		ss.onSnapshot(ev.Snapshot)

	case transport.EventClosedNormally:
		ss.channel, ss.kind = nil, transport.KindNone
		ss.mu.Unlock()
		ss.logger.Info("push channel closed by server", "code", ev.Code)
		ch.Close(transport.CloseNormal, "")

	case transport.EventClosedAbnormally:
		early := !ss.opened || ss.delivered == 0
		ss.mu.Unlock()
		if early {
			ss.logger.Warn("push channel failed to establish, polling instead", "code", ev.Code, "reason", ev.Reason)
			ss.failover(ch, 0)
		} else {
			ss.logger.Warn("push channel dropped, polling shortly", "code", ev.Code, "reason", ev.Reason)
			ss.failover(ch, ss.owner.opts.ReconnectDelay)
		}

	case transport.EventTransportError:
		kind, opened := ss.kind, ss.opened
		ss.mu.Unlock()
		switch {
		case kind == transport.KindPush && !opened:
			ss.logger.Warn("push channel failed to connect, polling instead", "err", ev.Err)
			ss.failover(ch, 0)
		case kind == transport.KindPush:
			ss.logger.Warn("ignoring bad push message", "err", ev.Err)
		default:
			ss.logger.Debug("status check failed", "err", ev.Err)
		}

	case transport.EventVanished:
		ss.teardownLocked()
		onVanished := ss.cb.OnVanished
		ss.mu.Unlock()
		ss.finish(ch)
		ss.logger.Info("task no longer known to processor, stopping status checks")
		if onVanished != nil {
			onVanished()
		}

	default:
		ss.mu.Unlock()
	}
}

// onSnapshot is called with mu held and releases it.
func (ss *session) onSnapshot(snap models.Snapshot) {
	ss.delivered++
	ss.snapshots++
	ss.last = snap

	var (
		terminal func()
		ch       transport.Channel
	)
	switch snap.Status {
	case models.StatusComplete:
		ch = ss.teardownLocked()
		if f := ss.cb.OnComplete; f != nil {
			terminal = func() { f(snap) }
		}
	case models.StatusFailed:
		ch = ss.teardownLocked()
		if f := ss.cb.OnError; f != nil {
			msg := snap.FailureMessage()
			terminal = func() { f(msg) }
		}
	}
	onSnapshot := ss.cb.OnSnapshot
	ss.mu.Unlock()

	ss.logger.Debug("snapshot", "status", snap.Status, "progress", snap.Progress)
	if snap.Status.IsTerminal() {
		ss.finish(ch)
		ss.logger.Info("task finished", "status", snap.Status)
	}

	if onSnapshot != nil {
		onSnapshot(snap)
	}
	if terminal != nil {
		terminal()
	}
}

// failover retires from and starts polling after delay.
func (ss *session) failover(from transport.Channel, delay time.Duration) {
	ss.mu.Lock()
	if ss.terminated || ss.channel != from {
		ss.mu.Unlock()
		return
	}
	ss.channel, ss.kind = nil, transport.KindNone
	ss.failovers++
	if delay > 0 {
		ss.timer = ss.owner.opts.Clock.AfterFunc(delay, ss.reconnect)
	}
	ss.mu.Unlock()

	from.Close(transport.CloseNormal, "switching to polling")
	if delay <= 0 {
		ss.activate(transport.KindPull)
	}
}

func (ss *session) reconnect() {
	ss.mu.Lock()
	if ss.terminated || ss.timer == nil {
		ss.mu.Unlock()
		return
	}
	ss.timer = nil
	ss.mu.Unlock()

	ss.activate(transport.KindPull)
}

// terminate ends the session without firing terminal callbacks. Only the first call has any effect.
func (ss *session) terminate(reason string) {
	ss.mu.Lock()
	if ss.terminated {
		ss.mu.Unlock()
		return
	}
	ch := ss.teardownLocked()
	ss.mu.Unlock()

	ss.finish(ch)
	ss.logger.Info("status session closed", "reason", reason)
}

// teardownLocked marks the session terminated, stops the pending timer and detaches the channel for [session.finish].
func (ss *session) teardownLocked() transport.Channel {
	ss.terminated = true
	if ss.timer != nil {
		ss.timer.Stop()
		ss.timer = nil
	}
	ch := ss.channel
	ss.channel, ss.kind = nil, transport.KindNone
	return ch
}

// finish releases resources detached by teardownLocked. Must be called without mu.
func (ss *session) finish(ch transport.Channel) {
	if ch != nil {
		ch.Close(transport.CloseNormal, "Task completed")
	}
	ss.cancel()
	ss.owner.forget(ss)
}

func (ss *session) stats() SessionStats {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return SessionStats{
		TaskID:     ss.taskID,
		Active:     ss.kind,
		Terminated: ss.terminated,
		Snapshots:  ss.snapshots,
		Failovers:  ss.failovers,
		Last:       ss.last,
	}
}
