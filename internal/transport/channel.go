package transport

import (
	"context"
	"fmt"

	"github.com/desertthunder/mrx/internal/models"
)

// CloseNormal is the websocket close code for an intentional shutdown.
const CloseNormal = 1000

// Kind names a channel strategy.
type Kind int

const (
	KindNone Kind = iota
	KindPush
	KindPull
)

func (k Kind) String() string {
	switch k {
	case KindPush:
		return "push"
	case KindPull:
		return "pull"
	default:
		return "none"
	}
}

// EventType discriminates [Event].
type EventType int

const (
	// EventOpened reports that the underlying connection is established. Pull channels never send it.
	EventOpened EventType = iota + 1
	// EventSnapshot carries one decoded status snapshot.
	EventSnapshot
	// EventClosedNormally reports a close with [CloseNormal].
	EventClosedNormally
	// EventClosedAbnormally reports any other close, including a dropped connection.
	EventClosedAbnormally
	// EventTransportError reports a failure that may or may not end the channel.
	EventTransportError
	// EventVanished reports that the processor no longer knows the task. The channel has stopped.
	EventVanished
)

func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventSnapshot:
		return "snapshot"
	case EventClosedNormally:
		return "closed_normally"
	case EventClosedAbnormally:
		return "closed_abnormally"
	case EventTransportError:
		return "transport_error"
	case EventVanished:
		return "vanished"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a single signal from a [Channel].
type Event struct {
	Type     EventType
	Snapshot models.Snapshot // EventSnapshot
	Code     int             // EventClosedNormally, EventClosedAbnormally
	Reason   string          // EventClosedAbnormally
	Err      error           // EventTransportError, EventVanished
}

// Handler receives channel events. A channel never invokes its handler concurrently with itself.
type Handler func(Event)

// Channel delivers status snapshots for one task until closed.
//
// A channel is single use: Open may be called once, Close any number of times.
// Once Close has been called no new event is delivered; a handler call already in flight may still complete.
type Channel interface {
	Kind() Kind
	Open(ctx context.Context, taskID string, h Handler) error
	Close(code int, reason string)
}
