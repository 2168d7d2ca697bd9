package api

import (
	"net/http"
	"time"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	pipeline PipelineState
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(p PipelineState) *HealthHandler {
	return &HealthHandler{pipeline: p}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Health handles GET /health (liveness)
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// Ready handles GET /ready (readiness)
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.pipeline.Running() {
		sendJSON(w, http.StatusServiceUnavailable, ReadinessResponse{
			Status:    "not_ready",
			Timestamp: time.Now(),
			Checks:    map[string]string{"pipeline": "stopped"},
			Error:     "pipeline is not running",
		})
		return
	}

	sendJSON(w, http.StatusOK, ReadinessResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Checks:    map[string]string{"pipeline": "ok"},
	})
}
