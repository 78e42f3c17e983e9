package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/corpusqa/corpusqa/internal/config"
	"github.com/corpusqa/corpusqa/internal/core/domain"
	"github.com/corpusqa/corpusqa/internal/core/usecase"
)

const (
	maxQuestionBytes    = 4096
	backpressureTimeout = 100 * time.Millisecond
)

// Router exposes the query service over HTTP: session lifecycle, the query
// endpoint, health, and metrics.
type Router struct {
	service        *usecase.SessionService
	metricsHandler http.Handler
	metrics        trafficMetrics
	cfg            config.APIConfig
}

func NewRouter(service *usecase.SessionService, metricsHandler http.Handler, metrics trafficMetrics, cfg config.APIConfig) *Router {
	return &Router{
		service:        service,
		metricsHandler: metricsHandler,
		metrics:        metrics,
		cfg:            cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/session", rt.createSession)
	mux.HandleFunc("/v1/session/", rt.deleteSession)
	mux.HandleFunc("/v1/query", rt.query)
	if rt.metricsHandler != nil {
		mux.Handle("/metrics", rt.metricsHandler)
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, backpressureTimeout, rt.metrics)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst, rt.metrics)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": rt.service.Open()})
}

func (rt *Router) deleteSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/session/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}

	rt.service.Close(id)
	w.WriteHeader(http.StatusNoContent)
}

type queryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

type queryResponse struct {
	SessionID  string            `json:"session_id"`
	Answer     string            `json:"answer"`
	Citations  []domain.Citation `json:"citations"`
	Confidence string            `json:"confidence"`
	Mode       domain.AnswerMode `json:"mode"`
	ChunksUsed int               `json:"chunks_used"`
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	if len(question) > maxQuestionBytes {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question too long"})
		return
	}

	response, sessionID := rt.service.Ask(r.Context(), strings.TrimSpace(req.SessionID), question)
	writeJSON(w, http.StatusOK, queryResponse{
		SessionID:  sessionID,
		Answer:     response.Answer,
		Citations:  response.Citations,
		Confidence: response.Confidence,
		Mode:       response.Mode,
		ChunksUsed: response.ChunksUsed,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
