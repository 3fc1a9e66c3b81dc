package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL        = "http://127.0.0.1:8000"
	defaultMaxUploadBytes = 16 << 20
)

// JobClientOpts configures a [JobClient].
type JobClientOpts struct {
	BaseURL        string       // Processor base URL, e.g. http://127.0.0.1:8000
	HTTPClient     *http.Client // Defaults to [http.DefaultClient]
	RateLimit      float64      // Requests per second; 0 disables limiting
	MaxUploadBytes int64        // Client-side upload size limit
}

// JobClient implements the processor's REST surface and derives its websocket URLs.
type JobClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxUpload  int64
}

// NewJobClient creates a processor client, applying defaults for empty options.
func NewJobClient(opts JobClientOpts) *JobClient {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}

	c := &JobClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		maxUpload:  opts.MaxUploadBytes,
	}
	if opts.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return c
}

// BaseURL returns the processor base URL without a trailing slash.
func (c *JobClient) BaseURL() string { return c.baseURL }

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// errorDetail is the processor's error body shape.
type errorDetail struct {
	Detail string `json:"detail"`
}

func taskPath(taskID string, rest ...string) string {
	parts := append([]string{"/api/tasks", url.PathEscape(taskID)}, rest...)
	return strings.Join(parts, "/")
}

// ValidateUpload checks that path names a readable .json file of valid JSON no larger than maxBytes.
func ValidateUpload(path string, maxBytes int64) ([]byte, error) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return nil, fmt.Errorf("%w: only JSON files are allowed: %s", shared.ErrInvalidUpload, filepath.Base(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidUpload, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", shared.ErrInvalidUpload, path)
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %s", shared.ErrInvalidUpload, shared.FormatBytes(info.Size()), shared.FormatBytes(maxBytes))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidUpload, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", shared.ErrInvalidUpload, filepath.Base(path))
	}
	return data, nil
}

// Upload sends the file at path to POST /api/upload as multipart field "file".
//
// Any non-2xx response is reported as [shared.ErrUploadFailed]; uploads are never retried.
func (c *JobClient) Upload(ctx context.Context, path string) (*models.UploadResponse, error) {
	data, err := ValidateUpload(path, c.maxUpload)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to build upload body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build upload body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload body: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/upload", &body, mw.FormDataContentType())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s", shared.ErrUploadFailed, readDetail(resp))
	}

	var out models.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", shared.ErrUploadFailed, err)
	}
	if out.TaskID == "" {
		return nil, fmt.Errorf("%w: response carried no task id", shared.ErrUploadFailed)
	}
	return &out, nil
}

// Status fetches GET /api/tasks/{id}/status.
//
// A 404 is reported as [shared.ErrTaskNotFound] so pollers can tell a vanished task from a transient failure.
func (c *JobClient) Status(ctx context.Context, taskID string) (models.Snapshot, error) {
	resp, err := c.do(ctx, http.MethodGet, taskPath(taskID, "status"), nil, "")
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.Snapshot{}, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, taskID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return models.Snapshot{}, fmt.Errorf("%w: %s", shared.ErrAPIRequest, readDetail(resp))
	}

	var snap models.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %v", shared.ErrMalformedSnapshot, err)
	}
	if err := snap.Validate(); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %v", shared.ErrMalformedSnapshot, err)
	}
	return snap.Normalize(), nil
}

// DownloadURL returns the artifact URL for a task, suitable for a browser.
func (c *JobClient) DownloadURL(taskID string, ft models.FileType) string {
	return c.baseURL + taskPath(taskID, "download", string(ft))
}

// Download streams an artifact into w and returns the server-suggested filename and the byte count.
func (c *JobClient) Download(ctx context.Context, taskID string, ft models.FileType, w io.Writer) (string, int64, error) {
	resp, err := c.do(ctx, http.MethodGet, taskPath(taskID, "download", string(ft)), nil, "")
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", 0, fmt.Errorf("%w: %s %s: %s", shared.ErrArtifactNotFound, taskID, ft, readDetail(resp))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", 0, fmt.Errorf("%w: %s", shared.ErrAPIRequest, readDetail(resp))
	}

	filename := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		filename = filepath.Base(params["filename"])
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return filename, n, fmt.Errorf("failed to read artifact: %w", err)
	}
	return filename, n, nil
}

// Cleanup issues DELETE /api/tasks/{id}. Callers treat failures as best effort.
func (c *JobClient) Cleanup(ctx context.Context, taskID string) error {
	resp, err := c.do(ctx, http.MethodDelete, taskPath(taskID), nil, "")
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrTaskNotFound, taskID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %s", shared.ErrAPIRequest, readDetail(resp))
	}
	return nil
}

// Health fetches GET /api/health.
func (c *JobClient) Health(ctx context.Context) (map[string]any, error) {
	resp, err := c.Raw(ctx, http.MethodGet, "/api/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", shared.ErrServiceUnavailable, resp.StatusCode)
	}
	out, ok := resp.JSONData.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected health payload", shared.ErrServiceUnavailable)
	}
	return out, nil
}

// Raw performs a request against path and returns the raw response, decoding JSON when possible.
func (c *JobClient) Raw(ctx context.Context, method, path string) (*APIResponse, error) {
	resp, err := c.do(ctx, method, path, nil, "")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}

	var jsonData any
	if err := json.Unmarshal(body, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}
	return apiResp, nil
}

// WebsocketURL derives the push channel URL for a task: http→ws, https→wss.
func (c *JobClient) WebsocketURL(taskID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: bad base URL: %v", shared.ErrInvalidConfig, err)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", shared.ErrInvalidConfig, u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/api/ws/tasks/" + url.PathEscape(taskID)
	return u.String(), nil
}

// do waits on the rate limiter, then sends the request.
func (c *JobClient) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// readDetail extracts FastAPI's {"detail": ...} message, falling back to the status line.
func readDetail(resp *http.Response) string {
	var e errorDetail
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &e) == nil && e.Detail != "" {
		return fmt.Sprintf("%s (status %d)", e.Detail, resp.StatusCode)
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) < 200 {
		return fmt.Sprintf("status %d: %s", resp.StatusCode, text)
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}
