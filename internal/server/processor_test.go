package server

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
	"github.com/desertthunder/mrx/internal/transport"
)

const testStep = time.Second

func newTestProcessor(t *testing.T) (*Processor, *transport.ManualClock) {
	t.Helper()
	clock := transport.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	p := NewProcessor(ProcessorOpts{StepDelay: testStep, TTL: time.Minute, SweepInterval: time.Minute, Clock: clock})
	t.Cleanup(p.Close)
	return p, clock
}

func mustStatus(t *testing.T, p *Processor, id string) models.Snapshot {
	t.Helper()
	snap, ok := p.Status(id)
	if !ok {
		t.Fatalf("task %s not found", id)
	}
	return snap
}

func TestProcessor(t *testing.T) {
	t.Run("Submit Queues Task", func(t *testing.T) {
		p, _ := newTestProcessor(t)
		resp := p.Submit("data.json", []byte(`{"a":1}`))

		if resp.TaskID == "" || resp.Filename != "data.json" || resp.Status != models.StatusQueued {
			t.Errorf("unexpected receipt %+v", resp)
		}
		snap := mustStatus(t, p, resp.TaskID)
		if snap.Status != models.StatusQueued || snap.Created != "2026-01-01T00:00:00Z" || snap.Files == nil {
			t.Errorf("unexpected snapshot %+v", snap)
		}
	})

	t.Run("Walks Lifecycle To Complete", func(t *testing.T) {
		p, clock := newTestProcessor(t)
		id := p.Submit("data.json", []byte(`{"b":[1,2],"a":"x"}`)).TaskID

		for _, want := range []int{10, 30, 70, 90} {
			clock.Advance(testStep)
			snap := mustStatus(t, p, id)
			if snap.Status != models.StatusProcessing || snap.Progress != want {
				t.Fatalf("expected processing %d%%, got %s %d%%", want, snap.Status, snap.Progress)
			}
			if len(snap.Files) != 0 {
				t.Errorf("expected no files while processing, got %v", snap.Files)
			}
		}

		clock.Advance(testStep)
		snap := mustStatus(t, p, id)
		if snap.Status != models.StatusComplete || snap.Progress != 100 {
			t.Fatalf("expected complete, got %s %d%%", snap.Status, snap.Progress)
		}
		excel, ok := snap.File(models.FileExcel)
		if !ok || excel.Filename != "data_"+id+".xlsx" {
			t.Errorf("unexpected excel artifact %+v", excel)
		}
		logFile, ok := snap.File(models.FileLog)
		if !ok || logFile.Filename != "data_"+id+"_Log.txt" {
			t.Errorf("unexpected log artifact %+v", logFile)
		}

		name, data, err := p.Artifact(id, models.FileExcel)
		if err != nil {
			t.Fatalf("Artifact failed: %v", err)
		}
		if name != excel.Filename || !strings.Contains(string(data), "a\tstring\nb\t[]interface {}") {
			t.Errorf("unexpected report %s: %q", name, data)
		}

		clock.Advance(10 * testStep)
		if clock.Pending() != 1 {
			t.Errorf("expected only the sweep timer after completion, got %d", clock.Pending())
		}
	})

	t.Run("Invalid JSON Fails", func(t *testing.T) {
		p, clock := newTestProcessor(t)
		id := p.Submit("bad.json", []byte(`{nope`)).TaskID

		clock.Advance(testStep)
		snap := mustStatus(t, p, id)
		if snap.Status != models.StatusFailed || snap.Error != "Invalid JSON content" {
			t.Errorf("expected failure, got %+v", snap)
		}
		if _, _, err := p.Artifact(id, models.FileLog); !errors.Is(err, shared.ErrArtifactNotFound) {
			t.Errorf("expected ErrArtifactNotFound, got %v", err)
		}
	})

	t.Run("Artifact Before Completion", func(t *testing.T) {
		p, _ := newTestProcessor(t)
		id := p.Submit("data.json", []byte(`{}`)).TaskID

		if _, _, err := p.Artifact(id, models.FileExcel); !errors.Is(err, shared.ErrArtifactNotFound) {
			t.Errorf("expected ErrArtifactNotFound, got %v", err)
		}
		if _, _, err := p.Artifact("missing", models.FileExcel); !errors.Is(err, shared.ErrTaskNotFound) {
			t.Errorf("expected ErrTaskNotFound, got %v", err)
		}
	})

	t.Run("Delete Stops Simulation", func(t *testing.T) {
		p, clock := newTestProcessor(t)
		id := p.Submit("data.json", []byte(`{}`)).TaskID

		if !p.Delete(id) {
			t.Fatal("expected delete to succeed")
		}
		if p.Delete(id) {
			t.Error("expected second delete to fail")
		}
		if _, ok := p.Status(id); ok {
			t.Error("expected task to be gone")
		}
		clock.Advance(5 * testStep)
		if p.Len() != 0 {
			t.Errorf("expected no tasks, got %d", p.Len())
		}
	})

	t.Run("Watch Signals Changes", func(t *testing.T) {
		p, clock := newTestProcessor(t)
		id := p.Submit("data.json", []byte(`{}`)).TaskID

		changes, cancel, ok := p.Watch(id)
		if !ok {
			t.Fatal("expected watch to succeed")
		}
		defer cancel()

		clock.Advance(testStep)
		select {
		case <-changes:
		default:
			t.Fatal("expected a change signal")
		}

		clock.Advance(2 * testStep)
		select {
		case <-changes:
		default:
			t.Fatal("expected coalesced change signal")
		}
		select {
		case <-changes:
			t.Fatal("expected signals to coalesce")
		default:
		}
	})

	t.Run("Watch Closed On Delete", func(t *testing.T) {
		p, _ := newTestProcessor(t)
		id := p.Submit("data.json", []byte(`{}`)).TaskID

		changes, cancel, _ := p.Watch(id)
		p.Delete(id)
		if _, open := <-changes; open {
			t.Error("expected channel closed on delete")
		}
		cancel()
	})

	t.Run("Watch Unknown Task", func(t *testing.T) {
		p, _ := newTestProcessor(t)
		if _, cancel, ok := p.Watch("missing"); ok {
			t.Error("expected watch of unknown task to fail")
		} else {
			cancel()
		}
	})

	t.Run("Sweep Removes Expired Tasks", func(t *testing.T) {
		p, clock := newTestProcessor(t)
		old := p.Submit("old.json", []byte(`{}`)).TaskID

		clock.Advance(70 * time.Second)
		fresh := p.Submit("fresh.json", []byte(`{}`)).TaskID

		clock.Advance(55 * time.Second)
		if _, ok := p.Status(old); ok {
			t.Error("expected expired task to be swept")
		}
		if _, ok := p.Status(fresh); !ok {
			t.Error("expected fresh task to survive")
		}
		if ids := p.IDs(); len(ids) != 1 || ids[0] != fresh {
			t.Errorf("unexpected ids %v", ids)
		}
	})

	t.Run("Close Stops Everything", func(t *testing.T) {
		p, clock := newTestProcessor(t)
		p.Submit("data.json", []byte(`{}`))

		p.Close()
		p.Close()
		if clock.Pending() != 0 {
			t.Errorf("expected no pending timers, got %d", clock.Pending())
		}
		if p.Len() != 0 {
			t.Errorf("expected no tasks, got %d", p.Len())
		}
	})
}
