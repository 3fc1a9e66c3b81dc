package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
	tu "github.com/desertthunder/mrx/internal/testing"
)

type fakeDownloader struct {
	mu      sync.Mutex
	content map[models.FileType]string
	fail    map[models.FileType]error
	calls   int
}

func (d *fakeDownloader) Download(ctx context.Context, taskID string, ft models.FileType, w io.Writer) (string, int64, error) {
	d.mu.Lock()
	d.calls++
	err := d.fail[ft]
	body := d.content[ft]
	d.mu.Unlock()

	if err != nil {
		return "", 0, err
	}
	n, werr := io.WriteString(w, body)
	return fmt.Sprintf("%s_server.%s", taskID, ft), int64(n), werr
}

func completeSnapshot(files ...models.ArtifactFile) models.Snapshot {
	return models.Snapshot{TaskID: "abc", Status: models.StatusComplete, Progress: 100, Files: files}
}

func TestDownloadAll(t *testing.T) {
	ctx := context.Background()

	t.Run("Downloads Every Artifact", func(t *testing.T) {
		dir := t.TempDir()
		dl := &fakeDownloader{content: map[models.FileType]string{
			models.FileExcel: "xlsx",
			models.FileLog:   "log lines",
		}}
		snap := completeSnapshot(
			models.ArtifactFile{Type: models.FileExcel, Filename: "report.xlsx"},
			models.ArtifactFile{Type: models.FileLog, Filename: "run.log"},
		)
		progress := make(chan ProgressUpdate, 10)

		res, err := DownloadAll(ctx, progress, dl, snap, DownloadOpts{Dir: dir, RateLimit: 100})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Successful != 2 || res.Failed != 0 {
			t.Errorf("expected 2 successes, got %+v", res)
		}

		tu.AssertFileExists(t, filepath.Join(dir, "report.xlsx"))
		if got := tu.MustReadFile(t, filepath.Join(dir, "run.log")); got != "log lines" {
			t.Errorf("unexpected log content %q", got)
		}
		if len(progress) != 4 {
			t.Errorf("expected start and finish updates per file, got %d", len(progress))
		}

		entries, _ := os.ReadDir(dir)
		if len(entries) != 2 {
			t.Errorf("expected no temp files left behind, got %d entries", len(entries))
		}
	})

	t.Run("Partial Failure", func(t *testing.T) {
		dir := t.TempDir()
		dl := &fakeDownloader{
			content: map[models.FileType]string{models.FileExcel: "xlsx"},
			fail:    map[models.FileType]error{models.FileLog: shared.ErrArtifactNotFound},
		}
		snap := completeSnapshot(
			models.ArtifactFile{Type: models.FileExcel, Filename: "report.xlsx"},
			models.ArtifactFile{Type: models.FileLog, Filename: "run.log"},
		)

		res, err := DownloadAll(ctx, nil, dl, snap, DownloadOpts{Dir: dir, NumWorkers: 1, RateLimit: 100})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Successful != 1 || res.Failed != 1 {
			t.Errorf("expected one success and one failure, got %+v", res)
		}
		for _, f := range res.Files {
			if f.File.Type == models.FileLog && !errors.Is(f.Error, shared.ErrArtifactNotFound) {
				t.Errorf("expected ErrArtifactNotFound, got %v", f.Error)
			}
		}
		if _, err := os.Stat(filepath.Join(dir, "run.log")); !os.IsNotExist(err) {
			t.Error("expected no partial file for failed download")
		}
	})

	t.Run("Falls Back To Server Filename", func(t *testing.T) {
		dir := t.TempDir()
		dl := &fakeDownloader{content: map[models.FileType]string{models.FileLog: "x"}}
		snap := completeSnapshot(models.ArtifactFile{Type: models.FileLog})

		res, err := DownloadAll(ctx, nil, dl, snap, DownloadOpts{Dir: dir, RateLimit: 100})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if want := filepath.Join(dir, "abc_server.log"); res.Files[0].Path != want {
			t.Errorf("expected %s, got %s", want, res.Files[0].Path)
		}
	})

	t.Run("Rejects Incomplete Task", func(t *testing.T) {
		snap := models.Snapshot{TaskID: "abc", Status: models.StatusProcessing}
		_, err := DownloadAll(ctx, nil, &fakeDownloader{}, snap, DownloadOpts{Dir: t.TempDir()})
		if !errors.Is(err, shared.ErrTaskNotComplete) {
			t.Errorf("expected ErrTaskNotComplete, got %v", err)
		}
	})

	t.Run("Creates Output Directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "out")
		_, err := DownloadAll(ctx, nil, &fakeDownloader{}, completeSnapshot(), DownloadOpts{Dir: dir})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertDirExists(t, dir)
	})
}
