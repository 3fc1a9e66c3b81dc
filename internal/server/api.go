package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	APIVersion = "2.0.0"

	defaultMaxUploadBytes = 16 << 20
	wsWriteTimeout        = 10 * time.Second
)

// APIOpts configures an [API].
type APIOpts struct {
	MaxUploadBytes int64
	Logger         *log.Logger
}

// API exposes a [Processor] over the report processor's HTTP and websocket endpoints.
type API struct {
	proc     *Processor
	maxBytes int64
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewAPI creates the HTTP surface for proc.
func NewAPI(proc *Processor, opts APIOpts) *API {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	return &API{
		proc:     proc,
		maxBytes: opts.MaxUploadBytes,
		logger:   opts.Logger,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// Register adds every endpoint to r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodGet, "/api/health", http.HandlerFunc(a.health))
	r.Handle(http.MethodPost, "/api/upload", http.HandlerFunc(a.upload))
	r.Handle(http.MethodGet, "/api/tasks/{id}/status", http.HandlerFunc(a.status))
	r.Handle(http.MethodGet, "/api/tasks/{id}/download/{type}", http.HandlerFunc(a.download))
	r.Handle(http.MethodDelete, "/api/tasks/{id}", http.HandlerFunc(a.cleanup))
	r.Handle(http.MethodGet, "/api/ws/tasks/{id}", http.HandlerFunc(a.stream))
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   APIVersion,
		"framework": "net/http",
		"tasks":     a.proc.Len(),
	})
}

func (a *API) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBytes+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "No file selected")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeDetail(w, http.StatusBadRequest, "No file selected")
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".json") {
		writeDetail(w, http.StatusBadRequest, "Invalid file type. Only JSON files are allowed.")
		return
	}

	content, err := io.ReadAll(io.LimitReader(file, a.maxBytes+1))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Failed to read file: %v", err))
		return
	}
	if int64(len(content)) > a.maxBytes {
		writeDetail(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}

	writeJSON(w, http.StatusOK, a.proc.Submit(filepath.Base(header.Filename), content))
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.proc.Status(r.PathValue("id"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) download(w http.ResponseWriter, r *http.Request) {
	ft, err := models.ParseFileType(r.PathValue("type"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "File not found")
		return
	}

	name, data, err := a.proc.Artifact(r.PathValue("id"), ft)
	switch {
	case errors.Is(err, shared.ErrTaskNotFound):
		writeDetail(w, http.StatusNotFound, "Task not found")
		return
	case err != nil:
		writeDetail(w, http.StatusNotFound, "File not found")
		return
	}

	contentType := "text/plain"
	if ft == models.FileExcel {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}

	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Report-Version", APIVersion)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (a *API) cleanup(w http.ResponseWriter, r *http.Request) {
	if !a.proc.Delete(r.PathValue("id")) {
		writeDetail(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleaned"})
}

// stream sends the current snapshot on connect and every change after it.
// A terminal snapshot is followed by a normal close; removal of the task closes with 1001.
func (a *API) stream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "task_id", id, "error", err)
		return
	}
	defer conn.Close()

	logger := shared.WithLogger(a.logger, "task_id", id, "remote", r.RemoteAddr)
	logger.Debug("websocket connected")

	changes, cancel, ok := a.proc.Watch(id)
	defer cancel()
	if !ok {
		closeConn(conn, websocket.ClosePolicyViolation, "Task not found")
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var last *models.Snapshot
	send := func() (done bool) {
		snap, ok := a.proc.Status(id)
		if !ok {
			closeConn(conn, websocket.CloseGoingAway, "Task removed")
			return true
		}
		if last == nil || !sameSnapshot(*last, snap) {
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				logger.Warn("websocket write failed", "error", err)
				return true
			}
			last = &snap
		}
		if snap.Status.IsTerminal() {
			closeConn(conn, websocket.CloseNormalClosure, "Task finished")
			return true
		}
		return false
	}

	if send() {
		return
	}
	for {
		select {
		case _, open := <-changes:
			if !open {
				closeConn(conn, websocket.CloseGoingAway, "Task removed")
				return
			}
			if send() {
				return
			}
		case <-gone:
			logger.Debug("websocket client left")
			return
		case <-r.Context().Done():
			return
		}
	}
}

func sameSnapshot(a, b models.Snapshot) bool {
	return a.Status == b.Status && a.Progress == b.Progress && a.Error == b.Error && len(a.Files) == len(b.Files)
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeDetail writes an error body in the {"detail": "..."} shape clients parse.
func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
