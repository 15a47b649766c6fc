// Package api exposes the HTTP interface for the scheduler service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sweetwork/svc-scheduler/internal/metrics"
	"github.com/sweetwork/svc-scheduler/internal/reports"
	"github.com/sweetwork/svc-scheduler/internal/scheduler"
	"github.com/sweetwork/svc-scheduler/internal/topics"
)

// Server wires HTTP handlers to the topic manager and report processor.
type Server struct {
	router    chi.Router
	manager   *topics.Manager
	processor *reports.Processor
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(manager *topics.Manager, processor *reports.Processor, logger *zap.Logger) *Server {
	s := &Server{
		manager:   manager,
		processor: processor,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/topics", func(r chi.Router) {
			r.Get("/", s.getTopics)
			r.Get("/{topic_id}", s.getTopics)
			r.Post("/", s.postTopics)
			r.Delete("/{topic_id}", s.deleteTopic)
		})
		r.Post("/feeds", s.postFeedReport)
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.getProjects)
			r.Post("/", s.postProject)
		})
		r.Get("/recover", s.recover)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type topicsResponse struct {
	Success bool               `json:"success"`
	Topics  []topics.TopicView `json:"topics,omitempty"`
	Meta    map[string]any     `json:"meta,omitempty"`
	Error   *errorBody         `json:"error,omitempty"`
}

func (s *Server) getTopics(w http.ResponseWriter, r *http.Request) {
	var topicIDs []int64
	if raw := chi.URLParam(r, "topic_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "BadRequest", "invalid topic_id")
			return
		}
		topicIDs = []int64{id}
	} else if raw := r.URL.Query().Get("topic_ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				writeFailure(w, http.StatusBadRequest, "BadRequest", "invalid topic_ids")
				return
			}
			topicIDs = append(topicIDs, id)
		}
	}
	var projectID int64
	if raw := r.URL.Query().Get("client_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeFailure(w, http.StatusBadRequest, "BadRequest", "invalid client_id")
			return
		}
		projectID = id
	}

	views, err := s.manager.Get(r.Context(), projectID, topicIDs, false)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, topics.ErrMissingQuery) {
			status = http.StatusBadRequest
		}
		writeFailure(w, status, "TopicsManagerError", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, topicsResponse{
		Success: true,
		Topics:  views,
		Meta:    map[string]any{"num_topics": len(views)},
	})
}

type postTopicsRequest struct {
	Topics []scheduler.Topic `json:"topics"`
}

func (s *Server) postTopics(w http.ResponseWriter, r *http.Request) {
	var req postTopicsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "BadRequest", "invalid JSON")
		return
	}
	if len(req.Topics) == 0 {
		writeFailure(w, http.StatusBadRequest, "BadRequest", "missing topics in body")
		return
	}
	for _, t := range req.Topics {
		if err := topics.Validate(t); err != nil {
			writeFailure(w, http.StatusBadRequest, "ValidationError", err.Error())
			return
		}
	}
	stored, err := s.manager.Store(r.Context(), req.Topics)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "TopicsManagerError", err.Error())
		return
	}
	views := make([]topics.TopicView, len(stored))
	for i, t := range stored {
		views[i] = topics.TopicView{Topic: t}
	}
	writeJSON(w, http.StatusOK, topicsResponse{Success: true, Topics: views})
}

func (s *Server) deleteTopic(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "topic_id"), 10, 64)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "BadRequest", "missing topic_id in query")
		return
	}
	if err := s.manager.Delete(r.Context(), id); err != nil {
		writeFailure(w, http.StatusInternalServerError, "TopicsManagerError", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) postFeedReport(w http.ResponseWriter, r *http.Request) {
	var report scheduler.FeedReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeFailure(w, http.StatusBadRequest, "BadRequest", "invalid JSON")
		return
	}
	s.logger.Info("feed update requested",
		zap.String("source", report.Source),
		zap.String("feed_id", report.ID))
	if err := s.processor.Process(r.Context(), report); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, reports.ErrUnknownFeed) {
			status = http.StatusNotFound
		}
		writeFailure(w, status, "FeedReportError", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) getProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.manager.Projects(r.Context())
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "ProjectsError", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "projects": projects})
}

type postProjectRequest struct {
	Name string `json:"name"`
}

func (s *Server) postProject(w http.ResponseWriter, r *http.Request) {
	var req postProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeFailure(w, http.StatusBadRequest, "BadRequest", "missing project name")
		return
	}
	project, err := s.manager.CreateProject(r.Context(), req.Name)
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "ProjectsError", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "project": project})
}

func (s *Server) recover(w http.ResponseWriter, r *http.Request) {
	recovered, err := s.manager.Recover(r.Context())
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "RecoverError", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"num_topics": len(recovered),
		"topics":     recovered,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeFailure(w http.ResponseWriter, status int, name, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   errorBody{Name: name, Message: message},
	})
}
