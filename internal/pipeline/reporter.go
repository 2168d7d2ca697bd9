package pipeline

import (
	"log/slog"

	"github.com/flowviz/flowviz/internal/channels"
)

// Reporter is the single consumer of worker rate reports.
type Reporter struct {
	in     *channels.UnboundedReceiver[Report]
	table  *PerformanceTable
	logger *slog.Logger
}

func NewReporter(in *channels.UnboundedReceiver[Report], table *PerformanceTable, logger *slog.Logger) *Reporter {
	return &Reporter{
		in:     in,
		table:  table,
		logger: logger.With("component", "reporter"),
	}
}

// Run stores reports in arrival order until every report sender is released.
func (r *Reporter) Run() {
	defer r.in.Close()

	for {
		rep, err := r.in.Recv()
		if err != nil {
			r.logger.Debug("Reporter stopped", "reason", err)
			return
		}
		if !r.table.Store(rep.Stage, rep.WorkerID, rep.Rate) {
			r.logger.Debug("Dropping report for unknown worker",
				"stage", rep.Stage.String(),
				"worker_id", rep.WorkerID)
		}
	}
}
