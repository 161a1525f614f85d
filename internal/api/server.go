// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crackdb/crawler/internal/crawler"
	"github.com/crackdb/crawler/internal/tasks"
)

// Enqueuer accepts tasks for background processing without blocking the
// submitting request. A full queue surfaces as an error.
type Enqueuer interface {
	TryEnqueue(item crawler.QueueItem) error
}

// Server wires HTTP handlers to the task queue and registry.
type Server struct {
	router   chi.Router
	queue    Enqueuer
	tasks    *tasks.Registry
	idGen    crawler.IDGenerator
	clock    crawler.Clock
	logger   *zap.Logger
	siteURLs []string
}

// Options carries the optional pieces of server construction.
type Options struct {
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
	// KnownSites lists the registered crawl target patterns, surfaced on
	// rejection responses.
	KnownSites []string
	Logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(queue Enqueuer, registry *tasks.Registry, idGen crawler.IDGenerator, clock crawler.Clock, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		queue:    queue,
		tasks:    registry,
		idGen:    idGen,
		clock:    clock,
		logger:   opts.Logger,
		siteURLs: opts.KnownSites,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(opts.Logger))
	r.Use(recoverMiddleware(opts.Logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/crawls", s.submitCrawl)
		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", s.submitAnalysis)
			r.Get("/latest", s.latestAnalysis)
		})
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Get("/{task_id}", s.getTask)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type crawlRequest struct {
	Web    string `json:"web"`
	Filter string `json:"filter"`
	Driver string `json:"driver"`
	Device string `json:"device"`
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Web == "" || req.Filter == "" {
		s.writeError(w, http.StatusBadRequest, "web and filter are required")
		return
	}
	if req.Driver == "" {
		req.Driver = "chrome"
	}
	if req.Device == "" {
		req.Device = "desktop"
	}

	taskID, err := s.enqueue(crawler.QueueItem{
		Kind: crawler.TaskCrawl,
		Crawl: crawler.CrawlRequest{
			TargetURL: req.Web,
			Keyword:   req.Filter,
			Driver:    req.Driver,
			Device:    req.Device,
		},
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID.String()})
}

type analysisRequest struct {
	FileName string `json:"file_name"`
	ByteData string `json:"byte_data"`
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.FileName == "" || req.ByteData == "" {
		s.writeError(w, http.StatusBadRequest, "file_name and byte_data are required")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.ByteData)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "byte_data is not valid base64")
		return
	}

	taskID, err := s.enqueue(crawler.QueueItem{
		Kind:     crawler.TaskAnalysis,
		Analysis: crawler.AnalysisRequest{FileName: req.FileName, Data: data},
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID.String()})
}

func (s *Server) enqueue(item crawler.QueueItem) (uuid.UUID, error) {
	taskID, err := s.idGen.NewRawID()
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("generate task id: %w", err)
	}
	item.TaskID = taskID
	item.Submitted = s.clock.Now().Unix()

	s.tasks.Create(taskID, item.Kind)

	if err := s.queue.TryEnqueue(item); err != nil {
		s.tasks.SetFailure(taskID, "could not be queued")
		return uuid.UUID{}, fmt.Errorf("enqueue task: %w", err)
	}
	return taskID, nil
}

func (s *Server) listTasks(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"tasks": s.tasks.List()})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "task_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	task, ok := s.tasks.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

// latestAnalysis serves the most recent completed scan verdict, or 202 while
// none has finished yet.
func (s *Server) latestAnalysis(w http.ResponseWriter, _ *http.Request) {
	task, ok := s.tasks.LatestCompletedAnalysis()
	if !ok {
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "no completed analysis yet"})
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	payload := map[string]any{"error": msg}
	if status == http.StatusBadRequest && len(s.siteURLs) > 0 {
		payload["known_sites"] = s.siteURLs
	}
	s.writeJSON(w, status, payload)
}
