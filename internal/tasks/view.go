package tasks

import (
	"context"
	"slices"
	"sync"

	"github.com/desertthunder/mrx/internal/models"
)

// Subscriber starts status sessions. [Synchronizer] implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, taskID string, cb Callbacks) (unsubscribe func())
}

// ViewState is the re-renderable projection of a task's status.
type ViewState struct {
	Status   models.Status
	Progress int
	Files    []models.ArtifactFile
}

// DefaultViewState is the state shown before any snapshot arrives.
func DefaultViewState() ViewState {
	return ViewState{Status: models.StatusQueued, Files: []models.ArtifactFile{}}
}

func (s ViewState) clone() ViewState {
	s.Files = slices.Clone(s.Files)
	if s.Files == nil {
		s.Files = []models.ArtifactFile{}
	}
	return s
}

// ViewCallbacks are the terminal notifications a UI cares about.
type ViewCallbacks struct {
	OnComplete func()
	OnError    func(message string)
	OnVanished func()
}

// StatusView mirrors one task's status for a UI.
//
// It only copies state: termination, retries and channel choice belong to the [Subscriber].
// Changing the task id tears down the previous subscription and resets the state before subscribing again.
type StatusView struct {
	ctx context.Context
	sub Subscriber

	mu          sync.Mutex
	closed      bool
	taskID      string
	gen         uint64
	state       ViewState
	callbacks   ViewCallbacks
	onChange    func(ViewState)
	unsubscribe func()
}

// NewStatusView creates a view with no task.
func NewStatusView(ctx context.Context, sub Subscriber, cb ViewCallbacks) *StatusView {
	return &StatusView{ctx: ctx, sub: sub, state: DefaultViewState(), callbacks: cb}
}

// SetTask switches the view to taskID. An empty id withdraws the current task. Setting the current id again does nothing.
func (v *StatusView) SetTask(taskID string) {
	v.mu.Lock()
	if v.closed || taskID == v.taskID {
		v.mu.Unlock()
		return
	}
	v.gen++
	gen := v.gen
	unsubscribe := v.unsubscribe
	v.unsubscribe = nil
	v.taskID = taskID
	v.state = DefaultViewState()
	onChange := v.onChange
	state := v.state.clone()
	v.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if onChange != nil {
		onChange(state)
	}
	if taskID == "" {
		return
	}

	unsub := v.sub.Subscribe(v.ctx, taskID, Callbacks{
		OnSnapshot: func(s models.Snapshot) { v.apply(gen, s) },
		OnComplete: func(models.Snapshot) { v.complete(gen) },
		OnError:    func(msg string) { v.fail(gen, msg) },
		OnVanished: func() { v.vanish(gen) },
	})

	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		unsub()
		return
	}
	v.unsubscribe = unsub
	v.mu.Unlock()
}

// SetCallbacks replaces the terminal callbacks without resubscribing.
func (v *StatusView) SetCallbacks(cb ViewCallbacks) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.callbacks = cb
}

// OnChange registers f to be called with a copy of the state after every change.
func (v *StatusView) OnChange(f func(ViewState)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = f
}

// State returns a copy of the current state.
func (v *StatusView) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.clone()
}

// TaskID returns the task currently shown.
func (v *StatusView) TaskID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.taskID
}

// Close withdraws the task and ignores all later calls.
func (v *StatusView) Close() {
	v.SetTask("")

	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.onChange = nil
}

func (v *StatusView) apply(gen uint64, s models.Snapshot) {
	v.mu.Lock()
	if v.gen != gen {
		v.mu.Unlock()
		return
	}
	v.state = ViewState{Status: s.Status, Progress: s.Progress, Files: slices.Clone(s.Files)}
	state := v.state.clone()
	onChange := v.onChange
	v.mu.Unlock()

	if onChange != nil {
		onChange(state)
	}
}

// current returns the live callbacks if gen is still the shown task.
func (v *StatusView) current(gen uint64) (ViewCallbacks, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.callbacks, v.gen == gen
}

func (v *StatusView) complete(gen uint64) {
	if cb, ok := v.current(gen); ok && cb.OnComplete != nil {
		cb.OnComplete()
	}
}

func (v *StatusView) fail(gen uint64, msg string) {
	if cb, ok := v.current(gen); ok && cb.OnError != nil {
		cb.OnError(msg)
	}
}

func (v *StatusView) vanish(gen uint64) {
	if cb, ok := v.current(gen); ok && cb.OnVanished != nil {
		cb.OnVanished()
	}
}
