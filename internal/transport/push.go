package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 60 * time.Second
	writeTimeout        = 10 * time.Second
)

// URLResolver maps a task id to its websocket URL.
type URLResolver func(taskID string) (string, error)

// PushOpts configures a [PushChannel].
type PushOpts struct {
	Dialer       *websocket.Dialer // Defaults to [websocket.DefaultDialer]
	PingInterval time.Duration
	PongTimeout  time.Duration // Read deadline, extended on every pong or message
	Logger       *log.Logger
}

// PushChannel receives snapshots over a websocket held open by the processor.
type PushChannel struct {
	resolve URLResolver
	dialer  *websocket.Dialer
	ping    time.Duration
	pong    time.Duration
	logger  *log.Logger

	mu      sync.Mutex
	used    bool
	closed  bool
	conn    *websocket.Conn
	cancel  context.CancelFunc
	handler Handler
}

// NewPushChannel creates an unopened push channel.
func NewPushChannel(resolve URLResolver, opts PushOpts) *PushChannel {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = defaultPongTimeout
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	return &PushChannel{
		resolve: resolve,
		dialer:  opts.Dialer,
		ping:    opts.PingInterval,
		pong:    opts.PongTimeout,
		logger:  opts.Logger,
	}
}

func (p *PushChannel) Kind() Kind { return KindPush }

// Open resolves the URL and starts dialing in the background.
//
// Dial failures are reported as [EventTransportError] before any [EventOpened]; only setup mistakes are returned.
func (p *PushChannel) Open(ctx context.Context, taskID string, h Handler) error {
	url, err := p.resolve(taskID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used || p.closed {
		return fmt.Errorf("%w: push channel already used", shared.ErrChannelClosed)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.used = true
	p.cancel = cancel
	p.handler = h

	go p.run(ctx, url)
	return nil
}

// Close sends a close frame with code and reason and releases the connection. Safe to call repeatedly.
func (p *PushChannel) Close(code int, reason string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	conn, cancel := p.conn, p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		conn.Close()
	}
}

func (p *PushChannel) run(ctx context.Context, url string) {
	conn, _, err := p.dialer.DialContext(ctx, url, nil)
	if err != nil {
		p.emit(Event{Type: EventTransportError, Err: fmt.Errorf("dial %s: %w", url, err)})
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.conn = conn
	p.mu.Unlock()

	p.logger.Debug("push channel connected", "url", url)
	p.emit(Event{Type: EventOpened})

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(p.pong))
	})
	conn.SetReadDeadline(time.Now().Add(p.pong))

	go p.pingLoop(ctx, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			p.emit(closeEvent(err))
			return
		}
		conn.SetReadDeadline(time.Now().Add(p.pong))

		var snap models.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			p.emit(Event{Type: EventTransportError, Err: fmt.Errorf("%w: %v", shared.ErrMalformedSnapshot, err)})
			continue
		}
		if err := snap.Validate(); err != nil {
			p.emit(Event{Type: EventTransportError, Err: fmt.Errorf("%w: %v", shared.ErrMalformedSnapshot, err)})
			continue
		}
		p.emit(Event{Type: EventSnapshot, Snapshot: snap.Normalize()})
	}
}

// pingLoop keeps idle connections alive until ctx is cancelled or a write fails.
func (p *PushChannel) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(p.ping)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// emit delivers ev unless the channel has been closed.
func (p *PushChannel) emit(ev Event) {
	p.mu.Lock()
	closed, h := p.closed, p.handler
	p.mu.Unlock()
	if closed || h == nil {
		return
	}
	h(ev)
}

// closeEvent classifies a read error. Anything other than a close frame with [CloseNormal] is abnormal.
func closeEvent(err error) Event {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == CloseNormal {
			return Event{Type: EventClosedNormally, Code: ce.Code}
		}
		return Event{Type: EventClosedAbnormally, Code: ce.Code, Reason: ce.Text}
	}
	return Event{Type: EventClosedAbnormally, Code: websocket.CloseAbnormalClosure, Reason: err.Error()}
}
