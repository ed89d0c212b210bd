// Package api exposes the local HTTP control surface: start an upload
// attempt, inspect attempt history, and drain progress events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ThinkFoundation/thinkos-ingest/internal/events"
	"github.com/ThinkFoundation/thinkos-ingest/internal/history"
	"github.com/ThinkFoundation/thinkos-ingest/internal/upload"
)

// Uploader runs one upload attempt. *upload.Coordinator satisfies it.
type Uploader interface {
	Upload(ctx context.Context, uploadID, sourcePath string) upload.Result
}

// Server routes control requests. Attempts run asynchronously; callers poll
// the journal or the event feed for progress.
type Server struct {
	logger   *slog.Logger
	uploader Uploader
	bus      *events.Bus
	journal  *history.Log
	router   *mux.Router
}

// NewServer wires the routes.
func NewServer(logger *slog.Logger, uploader Uploader, bus *events.Bus, journal *history.Log) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{logger: logger, uploader: uploader, bus: bus, journal: journal}

	r := mux.NewRouter()
	r.HandleFunc("/api/uploads", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/api/uploads", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/uploads/{id}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type startRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	uploadID := uuid.New().String()
	if err := s.journal.Begin(r.Context(), uploadID, req.Path); err != nil {
		s.logger.Error("journal begin failed", "upload_id", uploadID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not record attempt")
		return
	}

	// The attempt outlives the request; it runs on the background context.
	go func() {
		res := s.uploader.Upload(context.Background(), uploadID, req.Path)
		status := history.StatusDone
		if !res.Success {
			status = history.StatusError
		}
		if err := s.journal.Finish(context.Background(), uploadID, res.RecordID, status, res.ErrorMessage); err != nil {
			s.logger.Error("journal finish failed", "upload_id", uploadID, "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"uploadId": uploadID,
		"status":   history.StatusRunning,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	attempts, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("journal list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not list attempts")
		return
	}
	if attempts == nil {
		attempts = []history.Attempt{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"uploads": attempts})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	attempt, err := s.journal.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown upload id")
		return
	}
	if err != nil {
		s.logger.Error("journal get failed", "upload_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not read attempt")
		return
	}
	writeJSON(w, http.StatusOK, attempt)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since, err := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	if err != nil {
		since = 0
	}
	evs := s.bus.Since(since)
	if evs == nil {
		evs = []events.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": evs})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
