package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
	"golang.org/x/time/rate"
)

// Downloader streams a task artifact. [services.JobClient] implements it.
type Downloader interface {
	Download(ctx context.Context, taskID string, ft models.FileType, w io.Writer) (string, int64, error)
}

// DownloadOpts contains configuration for artifact downloads.
type DownloadOpts struct {
	Dir        string  // Output directory (default: ./downloads)
	NumWorkers int     // Concurrent workers (default: 2)
	RateLimit  float64 // Requests per second (default: 5)
}

// DownloadFileResult is the outcome of one artifact download.
type DownloadFileResult struct {
	File  models.ArtifactFile
	Path  string
	Bytes int64
	Error error
}

// DownloadResult summarizes a [DownloadAll] run.
type DownloadResult struct {
	TaskID     string
	Dir        string
	Files      []DownloadFileResult
	Successful int
	Failed     int
}

// DownloadAll fetches every artifact of a completed task into opts.Dir using a rate-limited worker pool.
//
// Individual failures are collected in the result; only setup problems return an error.
func DownloadAll(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	dl Downloader,
	snap models.Snapshot,
	opts DownloadOpts,
) (*DownloadResult, error) {
	if snap.Status != models.StatusComplete {
		return nil, fmt.Errorf("%w: %s is %s", shared.ErrTaskNotComplete, snap.TaskID, snap.Status)
	}
	if opts.Dir == "" {
		opts.Dir = "downloads"
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 2
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	total := len(snap.Files)
	result := &DownloadResult{
		TaskID: snap.TaskID,
		Dir:    opts.Dir,
		Files:  make([]DownloadFileResult, 0, total),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan models.ArtifactFile, total)
	results := make(chan DownloadFileResult, total)

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go downloadWorker(ctx, &wg, dl, limiter, snap.TaskID, opts.Dir, jobs, results)
	}

	for i, f := range snap.Files {
		sendProgress(prog, downloadStartedUpdate(i+1, total, f))
		jobs <- f
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for res := range results {
		completed++
		result.Files = append(result.Files, res)
		if res.Error == nil {
			result.Successful++
			sendProgress(prog, downloadCompletedUpdate(completed, total, res))
		} else {
			result.Failed++
			sendProgress(prog, downloadFailedUpdate(completed, total, res))
		}
	}
	return result, ctx.Err()
}

func downloadWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	dl Downloader,
	limiter *rate.Limiter,
	taskID, dir string,
	jobs <-chan models.ArtifactFile,
	results chan<- DownloadFileResult,
) {
	defer wg.Done()

	for f := range jobs {
		if err := limiter.Wait(ctx); err != nil {
			results <- DownloadFileResult{File: f, Error: err}
			continue
		}
		results <- downloadFile(ctx, dl, taskID, dir, f)
	}
}

// downloadFile writes to a temp file first so a failed transfer never leaves a partial artifact behind.
func downloadFile(ctx context.Context, dl Downloader, taskID, dir string, f models.ArtifactFile) DownloadFileResult {
	res := DownloadFileResult{File: f}

	tmp, err := os.CreateTemp(dir, ".mrx-download-*")
	if err != nil {
		res.Error = fmt.Errorf("failed to create file: %w", err)
		return res
	}
	defer os.Remove(tmp.Name())

	serverName, n, err := dl.Download(ctx, taskID, f.Type, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		res.Error = err
		return res
	}

	name := filepath.Base(f.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = serverName
	}
	if name == "" {
		name = fmt.Sprintf("%s_%s", taskID, f.Type)
	}

	res.Path = filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), res.Path); err != nil {
		res.Error = fmt.Errorf("failed to save %s: %w", name, err)
		res.Path = ""
		return res
	}
	res.Bytes = n
	return res
}
