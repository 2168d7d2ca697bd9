package api

import (
	"net/http"
	"strconv"

	"github.com/flowviz/flowviz/internal/pipeline"
	"github.com/flowviz/flowviz/internal/telemetry"
)

// TelemetryHandler serves live and historical pipeline metrics.
type TelemetryHandler struct {
	pipeline PipelineState
	history  HistoryReader
}

func NewTelemetryHandler(p PipelineState, h HistoryReader) *TelemetryHandler {
	return &TelemetryHandler{pipeline: p, history: h}
}

// Snapshot handles GET /api/v1/telemetry
func (h *TelemetryHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	sendEncoded(w, r, http.StatusOK, h.pipeline.Snapshot())
}

// HistoryResponse wraps the retained series.
type HistoryResponse struct {
	Series []telemetry.Series `json:"series" msgpack:"series"`
}

// History handles GET /api/v1/telemetry/history. The optional series and
// worker query parameters select a single series.
func (h *TelemetryHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		sendError(w, r, http.StatusServiceUnavailable, "HISTORY_DISABLED", "History sampling is not running", nil)
		return
	}

	name := r.URL.Query().Get("series")
	if name == "" {
		sendEncoded(w, r, http.StatusOK, HistoryResponse{Series: h.history.All()})
		return
	}

	if !knownSeries(name) {
		sendError(w, r, http.StatusBadRequest, "INVALID_SERIES", "Unknown series", name)
		return
	}

	worker := 0
	if raw := r.URL.Query().Get("worker"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendError(w, r, http.StatusBadRequest, "INVALID_WORKER", "worker must be a non-negative integer", raw)
			return
		}
		worker = n
	}

	points := h.history.Series(name, worker)
	if points == nil {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "Series not found", nil)
		return
	}
	sendEncoded(w, r, http.StatusOK, HistoryResponse{Series: []telemetry.Series{{
		Name:     name,
		WorkerID: worker,
		Points:   points,
	}}})
}

func knownSeries(name string) bool {
	if name == telemetry.SeriesIntake || name == telemetry.SeriesBatches {
		return true
	}
	_, err := pipeline.ParseStage(name)
	return err == nil
}
