package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Iron-Ham/codeloom/internal/archive"
	"github.com/Iron-Ham/codeloom/internal/errors"
	"github.com/Iron-Ham/codeloom/internal/fstore"
	"github.com/Iron-Ham/codeloom/internal/logging"
	"github.com/Iron-Ham/codeloom/internal/orchestrator"
	"github.com/Iron-Ham/codeloom/internal/session"
)

// maxUploadSize caps direct file edit request bodies.
const maxUploadSize = 10 << 20 // 10 MB

// SessionHandler serves session lifecycle endpoints.
type SessionHandler struct {
	registry *session.Registry
	orch     *orchestrator.Orchestrator
	store    *fstore.Store
	logger   *logging.Logger
}

// NewSessionHandler creates the session handler.
func NewSessionHandler(registry *session.Registry, orch *orchestrator.Orchestrator, store *fstore.Store, logger *logging.Logger) *SessionHandler {
	return &SessionHandler{registry: registry, orch: orch, store: store, logger: logger}
}

type createSessionRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// Create starts a new generation session.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}

	s, err := h.orch.Submit(req.Prompt, orchestrator.SubmitOptions{
		Model:       req.Model,
		Temperature: req.Temperature,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, createSessionResponse{
		SessionID: s.ID,
		Status:    string(s.Status),
		Message:   "project generation started",
	})
}

// List returns all sessions, newest first.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": h.registry.List()})
}

// Get returns the current state of one session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Cancel requests cancellation of a running session.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.orch.Cancel(id); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": id,
		"message":    "cancellation requested",
	})
}

// Retry starts a fresh session with the original session's prompt.
func (h *SessionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	s, err := h.orch.Retry(chi.URLParam(r, "id"), orchestrator.SubmitOptions{})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, createSessionResponse{
		SessionID: s.ID,
		Status:    string(s.Status),
		Message:   "retry started",
	})
}

// Delete evicts a session and removes its generated files.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.registry.Delete(id); err != nil {
		respondError(w, err)
		return
	}
	if err := h.store.DeleteSession(id); err != nil {
		h.logger.WithSession(id).Warn("failed to delete session files", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// FileHandler serves per-session file access.
type FileHandler struct {
	registry *session.Registry
	store    *fstore.Store
}

// NewFileHandler creates the file handler.
func NewFileHandler(registry *session.Registry, store *fstore.Store) *FileHandler {
	return &FileHandler{registry: registry, store: store}
}

// requireSession resolves the session ID from the URL and verifies it
// exists.
func (h *FileHandler) requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := h.registry.Get(id); err != nil {
		respondError(w, err)
		return "", false
	}
	return id, true
}

// List returns every generated file for the session.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	files, err := h.store.List(id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"files":      files,
	})
}

type fileContentResponse struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
	Content   string `json:"content"`
	Size      int    `json:"size"`
}

// Get returns one file's content. The path comes from the "path" query
// parameter since generated paths contain slashes.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	path := r.URL.Query().Get("path")
	content, err := h.store.Read(id, path)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fileContentResponse{
		SessionID: id,
		Path:      path,
		Content:   string(content),
		Size:      len(content),
	})
}

// Put writes one file directly, for manual edits after generation. Direct
// edits do not publish session events.
func (h *FileHandler) Put(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requireSession(w, r)
	if !ok {
		return
	}

	path := r.URL.Query().Get("path")
	content, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		respondError(w, errors.Wrap(err, "failed to read request body"))
		return
	}

	if err := h.store.Write(id, path, content); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"path":       path,
		"size":       len(content),
		"message":    "file updated",
	})
}

// Archive streams the session's files as a ZIP download.
func (h *FileHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.registry.Get(id)
	if err != nil {
		respondError(w, err)
		return
	}

	filename := archive.Filename(s.Prompt, s.ID)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	// The response is already streaming, so a mid-write failure cannot
	// change the status code.
	_ = archive.WriteZip(w, h.store, id)
}

// Health reports service liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
