package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
	tu "github.com/desertthunder/mrx/internal/testing"
)

func TestJobClient(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("Defaults", func(t *testing.T) {
			c := NewJobClient(JobClientOpts{})

			if c.baseURL != defaultBaseURL {
				t.Errorf("expected default base URL, got %s", c.baseURL)
			}
			if c.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
			if c.limiter != nil {
				t.Error("expected no limiter when rate limit is zero")
			}
			if c.maxUpload != defaultMaxUploadBytes {
				t.Errorf("expected default upload limit, got %d", c.maxUpload)
			}
		})

		t.Run("Trims Trailing Slash And Sets Limiter", func(t *testing.T) {
			c := NewJobClient(JobClientOpts{BaseURL: "http://example.com/", RateLimit: 5})

			if c.BaseURL() != "http://example.com" {
				t.Errorf("expected trimmed base URL, got %s", c.BaseURL())
			}
			if c.limiter == nil {
				t.Error("expected limiter to be configured")
			}
		})
	})

	t.Run("Upload", func(t *testing.T) {
		t.Run("Sends Multipart File", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/api/upload" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				file, header, err := r.FormFile("file")
				if err != nil {
					t.Errorf("expected multipart field 'file': %v", err)
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				defer file.Close()
				body, _ := io.ReadAll(file)
				if header.Filename != "data.json" {
					t.Errorf("expected filename data.json, got %s", header.Filename)
				}
				if string(body) != `{"a":1}` {
					t.Errorf("unexpected body %q", body)
				}

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(models.UploadResponse{TaskID: "t-1", Filename: "data.json", Status: models.StatusQueued})
			}))
			defer server.Close()

			path := tu.MustWriteFile(t, t.TempDir(), "data.json", `{"a":1}`)
			c := NewJobClient(JobClientOpts{BaseURL: server.URL})
			resp, err := c.Upload(context.Background(), path)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.TaskID != "t-1" {
				t.Errorf("expected task id t-1, got %s", resp.TaskID)
			}
		})

		t.Run("Server Rejection Carries Detail", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"detail":"Only JSON files are allowed"}`))
			}))
			defer server.Close()

			path := tu.MustWriteFile(t, t.TempDir(), "data.json", `[]`)
			c := NewJobClient(JobClientOpts{BaseURL: server.URL})
			_, err := c.Upload(context.Background(), path)

			if !errors.Is(err, shared.ErrUploadFailed) {
				t.Fatalf("expected ErrUploadFailed, got %v", err)
			}
			if !strings.Contains(err.Error(), "Only JSON files are allowed") {
				t.Errorf("expected server detail in error, got %v", err)
			}
		})

		t.Run("Missing Task ID", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{}`))
			}))
			defer server.Close()

			path := tu.MustWriteFile(t, t.TempDir(), "data.json", `[]`)
			_, err := NewJobClient(JobClientOpts{BaseURL: server.URL}).Upload(context.Background(), path)
			if !errors.Is(err, shared.ErrUploadFailed) {
				t.Errorf("expected ErrUploadFailed, got %v", err)
			}
		})

		t.Run("Local Validation Skips Request", func(t *testing.T) {
			mock := tu.NewMockRoundTripper(nil, errors.New("should not be called"))
			c := NewJobClient(JobClientOpts{HTTPClient: &http.Client{Transport: mock}})

			path := tu.MustWriteFile(t, t.TempDir(), "data.txt", `{}`)
			_, err := c.Upload(context.Background(), path)

			if !errors.Is(err, shared.ErrInvalidUpload) {
				t.Errorf("expected ErrInvalidUpload, got %v", err)
			}
			if len(mock.Requests()) != 0 {
				t.Errorf("expected no requests, got %d", len(mock.Requests()))
			}
		})
	})

	t.Run("Status", func(t *testing.T) {
		t.Run("Decodes And Normalizes", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/tasks/abc/status" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.Write([]byte(`{"task_id":"abc","status":"processing","progress":140}`))
			}))
			defer server.Close()

			snap, err := NewJobClient(JobClientOpts{BaseURL: server.URL}).Status(context.Background(), "abc")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if snap.Status != models.StatusProcessing {
				t.Errorf("expected processing, got %s", snap.Status)
			}
			if snap.Progress != 100 {
				t.Errorf("expected progress clamped to 100, got %d", snap.Progress)
			}
			if snap.Files == nil {
				t.Error("expected non-nil files")
			}
		})

		tests := []struct {
			name    string
			code    int
			body    string
			wantErr error
		}{
			{name: "Not Found", code: http.StatusNotFound, body: `{"detail":"Task not found"}`, wantErr: shared.ErrTaskNotFound},
			{name: "Server Error", code: http.StatusInternalServerError, body: `oops`, wantErr: shared.ErrAPIRequest},
			{name: "Malformed Body", code: http.StatusOK, body: `{"status":`, wantErr: shared.ErrMalformedSnapshot},
			{name: "Unknown Status", code: http.StatusOK, body: `{"status":"exploded"}`, wantErr: shared.ErrMalformedSnapshot},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(tt.code)
					w.Write([]byte(tt.body))
				}))
				defer server.Close()

				_, err := NewJobClient(JobClientOpts{BaseURL: server.URL}).Status(context.Background(), "abc")
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			})
		}

		t.Run("Transport Failure", func(t *testing.T) {
			mock := tu.NewMockRoundTripper(nil, errors.New("connection refused"))
			c := NewJobClient(JobClientOpts{HTTPClient: &http.Client{Transport: mock}})

			_, err := c.Status(context.Background(), "abc")
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest, got %v", err)
			}
		})
	})

	t.Run("Download", func(t *testing.T) {
		t.Run("Uses Content-Disposition Filename", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/tasks/abc/download/excel" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				w.Header().Set("Content-Disposition", `attachment; filename="report.xlsx"`)
				w.Write([]byte("xlsx-bytes"))
			}))
			defer server.Close()

			var buf bytes.Buffer
			name, n, err := NewJobClient(JobClientOpts{BaseURL: server.URL}).Download(context.Background(), "abc", models.FileExcel, &buf)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if name != "report.xlsx" {
				t.Errorf("expected report.xlsx, got %q", name)
			}
			if n != int64(len("xlsx-bytes")) || buf.String() != "xlsx-bytes" {
				t.Errorf("unexpected body %q (%d bytes)", buf.String(), n)
			}
		})

		t.Run("Missing Artifact", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"detail":"File not found"}`))
			}))
			defer server.Close()

			_, _, err := NewJobClient(JobClientOpts{BaseURL: server.URL}).Download(context.Background(), "abc", models.FileLog, io.Discard)
			if !errors.Is(err, shared.ErrArtifactNotFound) {
				t.Errorf("expected ErrArtifactNotFound, got %v", err)
			}
		})
	})

	t.Run("Cleanup", func(t *testing.T) {
		var method string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method = r.Method
			w.Write([]byte(`{"message":"Task cleaned up"}`))
		}))
		defer server.Close()

		if err := NewJobClient(JobClientOpts{BaseURL: server.URL}).Cleanup(context.Background(), "abc"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", method)
		}
	})

	t.Run("Health", func(t *testing.T) {
		t.Run("Healthy", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"healthy"}`))
			}))
			defer server.Close()

			out, err := NewJobClient(JobClientOpts{BaseURL: server.URL}).Health(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if out["status"] != "healthy" {
				t.Errorf("unexpected payload %v", out)
			}
		})

		t.Run("Unavailable", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			}))
			defer server.Close()

			_, err := NewJobClient(JobClientOpts{BaseURL: server.URL}).Health(context.Background())
			if !errors.Is(err, shared.ErrServiceUnavailable) {
				t.Errorf("expected ErrServiceUnavailable, got %v", err)
			}
		})
	})

	t.Run("Raw", func(t *testing.T) {
		t.Run("Non-JSON Body", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("plain text"))
			}))
			defer server.Close()

			resp, err := NewJobClient(JobClientOpts{BaseURL: server.URL}).Raw(context.Background(), http.MethodGet, "/anything")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.IsJSON {
				t.Error("expected non-JSON response")
			}
			if string(resp.Body) != "plain text" {
				t.Errorf("unexpected body %q", resp.Body)
			}
		})

		t.Run("Read Failure", func(t *testing.T) {
			mock := tu.NewMockRoundTripper(&http.Response{StatusCode: http.StatusOK, Body: &tu.FCloser{}}, nil)
			c := NewJobClient(JobClientOpts{HTTPClient: &http.Client{Transport: mock}})

			_, err := c.Raw(context.Background(), http.MethodGet, "/anything")
			if err == nil || !strings.Contains(err.Error(), "failed to read response") {
				t.Errorf("expected read failure, got %v", err)
			}
		})
	})

	t.Run("WebsocketURL", func(t *testing.T) {
		tests := []struct {
			base string
			want string
		}{
			{base: "http://127.0.0.1:8000", want: "ws://127.0.0.1:8000/api/ws/tasks/abc"},
			{base: "https://reports.example.com", want: "wss://reports.example.com/api/ws/tasks/abc"},
			{base: "https://example.com/proxy/", want: "wss://example.com/proxy/api/ws/tasks/abc"},
		}

		for _, tt := range tests {
			t.Run(tt.base, func(t *testing.T) {
				got, err := NewJobClient(JobClientOpts{BaseURL: tt.base}).WebsocketURL("abc")
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if got != tt.want {
					t.Errorf("expected %s, got %s", tt.want, got)
				}
			})
		}

		t.Run("Unsupported Scheme", func(t *testing.T) {
			_, err := NewJobClient(JobClientOpts{BaseURL: "ftp://example.com"}).WebsocketURL("abc")
			if !errors.Is(err, shared.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	})
}

func TestValidateUpload(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		max     int64
		wantErr bool
	}{
		{name: "Valid JSON", file: "ok.json", content: `{"k":[1,2]}`, max: 1024},
		{name: "Uppercase Extension", file: "OK.JSON", content: `[]`, max: 1024},
		{name: "Wrong Extension", file: "data.csv", content: `a,b`, max: 1024, wantErr: true},
		{name: "Invalid JSON", file: "bad.json", content: `{nope`, max: 1024, wantErr: true},
		{name: "Too Large", file: "big.json", content: `{"k":"` + strings.Repeat("x", 64) + `"}`, max: 16, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tu.MustWriteFile(t, dir, tt.file, tt.content)
			_, err := ValidateUpload(path, tt.max)
			if tt.wantErr && !errors.Is(err, shared.ErrInvalidUpload) {
				t.Errorf("expected ErrInvalidUpload, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}

	t.Run("Missing File", func(t *testing.T) {
		_, err := ValidateUpload(dir+"/missing.json", 1024)
		if !errors.Is(err, shared.ErrInvalidUpload) {
			t.Errorf("expected ErrInvalidUpload, got %v", err)
		}
	})
}
