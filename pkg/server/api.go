package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kylerisse/perfpoints/pkg/build"
)

// maxRequestBody bounds the size of a publish request.
const maxRequestBody = 64 << 10

// PublishRequest is the JSON body of POST /api/publish.
type PublishRequest struct {
	Job     string     `json:"job"`
	JobPath string     `json:"job_path,omitempty"`
	Build   int        `json:"build"`
	Time    *time.Time `json:"time,omitempty"`
}

// PublishResponse acknowledges a queued request.
type PublishResponse struct {
	Build string `json:"build"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/publish", func(w http.ResponseWriter, r *http.Request) {
		s.handlePublish(w, r)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		s.handleStatus(w, r)
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "ok")
	})

	return mux
}

func (req PublishRequest) validate() error {
	if req.Job == "" {
		return fmt.Errorf("'job' is required")
	}
	if req.Build < 0 {
		return fmt.Errorf("'build' must not be negative, got %d", req.Build)
	}
	return build.Job{Name: req.Job, Path: req.JobPath}.ValidatePath()
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	t := task{
		build: build.Build{Job: build.Job{Name: req.Job, Path: req.JobPath}, Number: req.Build},
		ts:    time.Now(),
	}
	if req.Time != nil {
		t.ts = *req.Time
	}

	if err := s.enqueue(t); err != nil {
		s.logger.WithField("build", t.build.String()).WithError(err).Warn("Rejecting publish request")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	s.logger.WithField("build", t.build.String()).Debug("Queued publish request")
	writeJSON(w, http.StatusAccepted, PublishResponse{Build: t.build.String()})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
