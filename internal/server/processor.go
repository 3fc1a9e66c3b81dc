package server

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
	"github.com/desertthunder/mrx/internal/transport"
)

const (
	DefaultStepDelay = time.Second
	DefaultTaskTTL   = time.Hour
)

// processingSteps are the progress values reported while a job is processing.
var processingSteps = []int{10, 30, 70, 90}

// ProcessorOpts configures a [Processor].
type ProcessorOpts struct {
	StepDelay     time.Duration   // delay between lifecycle steps
	TTL           time.Duration   // age after which a task is swept
	SweepInterval time.Duration   // defaults to TTL
	Clock         transport.Clock // defaults to [transport.SystemClock]
	Logger        *log.Logger
}

// Processor simulates the remote report processor in memory.
//
// Each upload walks queued, processing (10, 30, 70, 90) and then complete with an excel and a log artifact.
// Content that is not valid JSON ends failed.
type Processor struct {
	opts ProcessorOpts

	mu     sync.Mutex
	jobs   map[string]*job
	sweep  transport.Timer
	closed bool
}

type job struct {
	snap      models.Snapshot
	content   []byte
	created   time.Time
	step      int
	timer     transport.Timer
	artifacts map[models.FileType][]byte
	watchers  map[chan struct{}]struct{}
}

// NewProcessor creates a processor and starts its expiry sweep.
func NewProcessor(opts ProcessorOpts) *Processor {
	if opts.StepDelay <= 0 {
		opts.StepDelay = DefaultStepDelay
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTaskTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = opts.TTL
	}
	if opts.Clock == nil {
		opts.Clock = transport.SystemClock
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}

	p := &Processor{opts: opts, jobs: make(map[string]*job)}
	p.sweep = p.opts.Clock.AfterFunc(p.opts.SweepInterval, p.runSweep)
	return p
}

// Submit queues content for processing and returns the upload receipt.
func (p *Processor) Submit(filename string, content []byte) models.UploadResponse {
	id := shared.GenerateID()
	now := p.opts.Clock.Now()

	j := &job{
		snap: models.Snapshot{
			TaskID:   id,
			Filename: filename,
			Status:   models.StatusQueued,
			Created:  now.Format(time.RFC3339),
			Files:    []models.ArtifactFile{},
		},
		content:  content,
		created:  now,
		watchers: make(map[chan struct{}]struct{}),
	}

	p.mu.Lock()
	p.jobs[id] = j
	j.timer = p.opts.Clock.AfterFunc(p.opts.StepDelay, func() { p.advance(id) })
	p.mu.Unlock()

	p.opts.Logger.Info("task queued", "task_id", id, "filename", filename, "bytes", len(content))
	return models.UploadResponse{TaskID: id, Filename: filename, Status: models.StatusQueued}
}

// advance moves a job one lifecycle step forward and schedules the next one.
func (p *Processor) advance(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[id]
	if !ok || p.closed || j.snap.Status.IsTerminal() {
		return
	}

	switch {
	case j.step == 0 && !json.Valid(j.content):
		j.snap.Status = models.StatusFailed
		j.snap.Error = "Invalid JSON content"
		p.opts.Logger.Warn("task failed", "task_id", id, "error", j.snap.Error)
	case j.step < len(processingSteps):
		j.snap.Status = models.StatusProcessing
		j.snap.Progress = processingSteps[j.step]
	default:
		j.artifacts = buildArtifacts(j.snap, j.content)
		j.snap.Status = models.StatusComplete
		j.snap.Progress = 100
		j.snap.Files = []models.ArtifactFile{
			{Type: models.FileExcel, Filename: artifactName(j.snap, models.FileExcel)},
			{Type: models.FileLog, Filename: artifactName(j.snap, models.FileLog)},
		}
		p.opts.Logger.Info("task complete", "task_id", id)
	}
	j.step++

	j.notify()
	if !j.snap.Status.IsTerminal() {
		j.timer = p.opts.Clock.AfterFunc(p.opts.StepDelay, func() { p.advance(id) })
	}
}

// Status returns the current snapshot of a task.
func (p *Processor) Status(id string) (models.Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[id]
	if !ok {
		return models.Snapshot{}, false
	}
	return j.snap.Normalize(), true
}

// Artifact returns the download name and content of a completed task's artifact.
func (p *Processor) Artifact(id string, ft models.FileType) (string, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[id]
	if !ok {
		return "", nil, shared.ErrTaskNotFound
	}
	data, ok := j.artifacts[ft]
	if !ok {
		return "", nil, shared.ErrArtifactNotFound
	}
	f, _ := j.snap.File(ft)
	return f.Filename, data, nil
}

// Delete removes a task, stopping its simulation and releasing its watchers.
func (p *Processor) Delete(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[id]
	if !ok {
		return false
	}
	p.removeLocked(id, j)
	p.opts.Logger.Info("task cleaned", "task_id", id)
	return true
}

// Watch registers for change notifications on a task.
//
// The returned channel receives a signal after every change and is closed when the task is removed.
// Signals coalesce, so a receiver should read [Processor.Status] after each one.
func (p *Processor) Watch(id string) (<-chan struct{}, func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	j, ok := p.jobs[id]
	if !ok {
		return nil, func() {}, false
	}

	ch := make(chan struct{}, 1)
	j.watchers[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if _, ok := j.watchers[ch]; ok {
				delete(j.watchers, ch)
				close(ch)
			}
		})
	}
	return ch, cancel, true
}

// Len returns the number of tasks held in memory.
func (p *Processor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.jobs)
}

// IDs returns the ids of all tasks, oldest first.
func (p *Processor) IDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.jobs))
	for id := range p.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool {
		return p.jobs[ids[a]].created.Before(p.jobs[ids[b]].created)
	})
	return ids
}

// Sweep removes tasks older than the TTL and returns how many were removed.
func (p *Processor) Sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.opts.Clock.Now()
	removed := 0
	for id, j := range p.jobs {
		if now.Sub(j.created) > p.opts.TTL {
			p.removeLocked(id, j)
			removed++
			p.opts.Logger.Info("expired task removed", "task_id", id)
		}
	}
	return removed
}

// Close stops all simulations and the sweep.
func (p *Processor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	p.sweep.Stop()
	for id, j := range p.jobs {
		p.removeLocked(id, j)
	}
}

func (p *Processor) runSweep() {
	p.Sweep()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.sweep = p.opts.Clock.AfterFunc(p.opts.SweepInterval, p.runSweep)
	}
}

func (p *Processor) removeLocked(id string, j *job) {
	if j.timer != nil {
		j.timer.Stop()
	}
	for ch := range j.watchers {
		delete(j.watchers, ch)
		close(ch)
	}
	delete(p.jobs, id)
}

func (j *job) notify() {
	for ch := range j.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func artifactName(s models.Snapshot, ft models.FileType) string {
	base := strings.TrimSuffix(s.Filename, filepath.Ext(s.Filename))
	if base == "" {
		base = "report"
	}
	switch ft {
	case models.FileExcel:
		return fmt.Sprintf("%s_%s.xlsx", base, s.TaskID)
	default:
		return fmt.Sprintf("%s_%s_Log.txt", base, s.TaskID)
	}
}

// buildArtifacts produces the simulated outputs: a tab separated summary of the
// document's top-level fields and a processing log.
func buildArtifacts(s models.Snapshot, content []byte) map[models.FileType][]byte {
	var report strings.Builder
	report.WriteString("field\tkind\n")

	var doc any
	_ = json.Unmarshal(content, &doc)
	switch v := doc.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&report, "%s\t%T\n", k, v[k])
		}
	case []any:
		fmt.Fprintf(&report, "items\t%d\n", len(v))
	default:
		fmt.Fprintf(&report, "value\t%T\n", v)
	}

	var logBuf strings.Builder
	fmt.Fprintf(&logBuf, "task %s\n", s.TaskID)
	fmt.Fprintf(&logBuf, "source %s (%s)\n", s.Filename, shared.FormatBytes(int64(len(content))))
	for _, step := range processingSteps {
		fmt.Fprintf(&logBuf, "progress %d%%\n", step)
	}
	logBuf.WriteString("complete\n")

	return map[models.FileType][]byte{
		models.FileExcel: []byte(report.String()),
		models.FileLog:   []byte(logBuf.String()),
	}
}
