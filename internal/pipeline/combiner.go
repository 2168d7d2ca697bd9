package pipeline

import (
	"log/slog"
	"time"

	"github.com/flowviz/flowviz/internal/channels"
)

// maxPrealloc bounds the up-front allocation for very large batch sizes.
const maxPrealloc = 4096

// Combiner groups intake messages into batches for the processors.
type Combiner struct {
	id           int
	in           *channels.Receiver[Message]
	out          *channels.Sender[Batch]
	reports      reportSink
	tuning       *Tuning
	window       time.Duration
	flushPartial bool
	logger       *slog.Logger
}

// NewCombiner takes ownership of in, out and reports.
func NewCombiner(
	id int,
	in *channels.Receiver[Message],
	out *channels.Sender[Batch],
	reports reportSink,
	tuning *Tuning,
	window time.Duration,
	flushPartial bool,
	logger *slog.Logger,
) *Combiner {
	return &Combiner{
		id:           id,
		in:           in,
		out:          out,
		reports:      reports,
		tuning:       tuning,
		window:       window,
		flushPartial: flushPartial,
		logger:       logger.With("component", "combiner", "worker_id", id),
	}
}

// Run drains the intake until it is closed and empty, or until the batch
// channel stops accepting sends.
//
// The size limit of a batch is sampled from Tuning when its first message
// arrives and stays fixed until the batch is forwarded.
func (c *Combiner) Run() {
	defer c.reports.Close()
	defer c.out.Close()
	defer c.in.Close()

	c.logger.Debug("Combiner started")

	rate := newRateWindow(c.window)
	var (
		batch Batch
		limit int
	)
	for {
		msg, err := c.in.Recv()
		if err != nil {
			c.finish(batch)
			return
		}

		if batch == nil {
			limit = c.tuning.BatchSize()
			batch = make(Batch, 0, min(limit, maxPrealloc))
		}
		batch = append(batch, msg)

		if r, ok := rate.observe(1); ok {
			c.reports.Publish(Report{Stage: StageLayer1, WorkerID: c.id, Rate: r})
		}

		if len(batch) >= limit {
			if err := c.out.Send(batch); err != nil {
				c.logger.Debug("Combiner stopped", "reason", err)
				return
			}
			batch = nil
		}
	}
}

func (c *Combiner) finish(partial Batch) {
	if len(partial) == 0 {
		c.logger.Debug("Combiner stopped", "reason", "intake closed")
		return
	}
	if !c.flushPartial {
		c.logger.Debug("Discarding partial batch", "size", len(partial))
		return
	}
	if err := c.out.Send(partial); err != nil {
		c.logger.Debug("Partial batch lost", "size", len(partial), "reason", err)
		return
	}
	c.logger.Debug("Flushed partial batch", "size", len(partial))
}
