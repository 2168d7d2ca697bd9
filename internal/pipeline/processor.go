package pipeline

import (
	"log/slog"
	"time"

	"github.com/flowviz/flowviz/internal/channels"
)

// BatchHook is invoked by a processor for every batch after the processing delay.
type BatchHook func(workerID int, batch Batch)

// Processor consumes batches and simulates a per-batch cost.
type Processor struct {
	id      int
	in      *channels.Receiver[Batch]
	reports reportSink
	tuning  *Tuning
	window  time.Duration
	hook    BatchHook
	logger  *slog.Logger
}

// NewProcessor takes ownership of in and reports. hook may be nil.
func NewProcessor(
	id int,
	in *channels.Receiver[Batch],
	reports reportSink,
	tuning *Tuning,
	window time.Duration,
	hook BatchHook,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		id:      id,
		in:      in,
		reports: reports,
		tuning:  tuning,
		window:  window,
		hook:    hook,
		logger:  logger.With("component", "processor", "worker_id", id),
	}
}

// Run processes batches until the batch channel is closed and drained.
func (p *Processor) Run() {
	defer p.reports.Close()
	defer p.in.Close()

	p.logger.Debug("Processor started")

	rate := newRateWindow(p.window)
	for {
		batch, err := p.in.Recv()
		if err != nil {
			p.logger.Debug("Processor stopped", "reason", err)
			return
		}

		// delay is re-read per batch so tuning changes apply to the next one
		if d := p.tuning.ProcessingDelay(); d > 0 {
			time.Sleep(d)
		}
		if p.hook != nil {
			p.hook(p.id, batch)
		}

		if r, ok := rate.observe(1); ok {
			p.reports.Publish(Report{Stage: StageLayer2, WorkerID: p.id, Rate: r})
		}
	}
}
