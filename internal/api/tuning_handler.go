package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowviz/flowviz/internal/middleware"
	"github.com/flowviz/flowviz/internal/pipeline"
)

// TuningHandler reads and adjusts the runtime knobs.
type TuningHandler struct {
	tuning *pipeline.Tuning
	logger *slog.Logger
}

func NewTuningHandler(t *pipeline.Tuning, logger *slog.Logger) *TuningHandler {
	return &TuningHandler{tuning: t, logger: logger.With("component", "tuning_api")}
}

type TuningResponse struct {
	BatchSize         int   `json:"batch_size"`
	ProcessingDelayMS int64 `json:"processing_delay_ms"`
}

// UpdateTuningRequest changes any subset of the knobs.
type UpdateTuningRequest struct {
	BatchSize         *int   `json:"batch_size,omitempty" validate:"omitempty,min=1,max=1000000"`
	ProcessingDelayMS *int64 `json:"processing_delay_ms,omitempty" validate:"omitempty,min=0,max=3600000"`
}

func (h *TuningHandler) current() TuningResponse {
	return TuningResponse{
		BatchSize:         h.tuning.BatchSize(),
		ProcessingDelayMS: h.tuning.ProcessingDelay().Milliseconds(),
	}
}

// Get handles GET /api/v1/tuning
func (h *TuningHandler) Get(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, h.current())
}

// Update handles PUT /api/v1/tuning
func (h *TuningHandler) Update(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAndValidate[UpdateTuningRequest](w, r)
	if !ok {
		return
	}
	if req.BatchSize == nil && req.ProcessingDelayMS == nil {
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "At least one of batch_size or processing_delay_ms is required", nil)
		return
	}

	if req.BatchSize != nil {
		if err := h.tuning.SetBatchSize(*req.BatchSize); err != nil {
			h.sendTuningError(w, r, err)
			return
		}
	}
	if req.ProcessingDelayMS != nil {
		if err := h.tuning.SetProcessingDelay(time.Duration(*req.ProcessingDelayMS) * time.Millisecond); err != nil {
			h.sendTuningError(w, r, err)
			return
		}
	}

	h.respond(w, r, "update")
}

// IncreaseBatchSize handles POST /api/v1/tuning/batch-size/increase
func (h *TuningHandler) IncreaseBatchSize(w http.ResponseWriter, r *http.Request) {
	h.tuning.IncreaseBatchSize()
	h.respond(w, r, "batch_size_increase")
}

// DecreaseBatchSize handles POST /api/v1/tuning/batch-size/decrease
func (h *TuningHandler) DecreaseBatchSize(w http.ResponseWriter, r *http.Request) {
	h.tuning.DecreaseBatchSize()
	h.respond(w, r, "batch_size_decrease")
}

// IncreaseDelay handles POST /api/v1/tuning/delay/increase
func (h *TuningHandler) IncreaseDelay(w http.ResponseWriter, r *http.Request) {
	h.tuning.IncreaseDelay()
	h.respond(w, r, "delay_increase")
}

// DecreaseDelay handles POST /api/v1/tuning/delay/decrease
func (h *TuningHandler) DecreaseDelay(w http.ResponseWriter, r *http.Request) {
	h.tuning.DecreaseDelay()
	h.respond(w, r, "delay_decrease")
}

func (h *TuningHandler) respond(w http.ResponseWriter, r *http.Request, action string) {
	resp := h.current()
	h.logger.Info("Tuning changed",
		"action", action,
		"batch_size", resp.BatchSize,
		"processing_delay_ms", resp.ProcessingDelayMS,
		"user", middleware.UsernameFromContext(r.Context()),
	)
	sendJSON(w, http.StatusOK, resp)
}

func (h *TuningHandler) sendTuningError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidBatchSize), errors.Is(err, pipeline.ErrBatchSizeTooLarge),
		errors.Is(err, pipeline.ErrNegativeDelay), errors.Is(err, pipeline.ErrDelayTooLong):
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		sendError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update tuning", nil)
	}
}
