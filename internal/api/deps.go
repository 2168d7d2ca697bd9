package api

import (
	"log/slog"
	"net/http"

	"github.com/flowviz/flowviz/internal/auth"
	"github.com/flowviz/flowviz/internal/config"
	"github.com/flowviz/flowviz/internal/pipeline"
	"github.com/flowviz/flowviz/internal/telemetry"
)

// PipelineState is the part of *pipeline.Pipeline the API reads and tunes.
type PipelineState interface {
	Snapshot() pipeline.Snapshot
	Tuning() *pipeline.Tuning
	Running() bool
}

// HistoryReader is satisfied by *telemetry.History.
type HistoryReader interface {
	Series(name string, id int) []telemetry.Point
	All() []telemetry.Series
}

// Dependencies holds common dependencies for API handlers
type Dependencies struct {
	Pipeline PipelineState
	History  HistoryReader
	// Auth is nil when authentication is disabled.
	Auth *auth.Service
	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
	CORS    config.CORSConfig
	Logger  *slog.Logger
}
