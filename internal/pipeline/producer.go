package pipeline

import (
	"log/slog"
	"time"

	"github.com/flowviz/flowviz/internal/channels"
)

const (
	lcgMultiplier = 1103515245
	lcgIncrement  = 12345
)

// nextMessage advances the linear congruential generator, wrapping mod 2^64.
func nextMessage(prev uint64) uint64 {
	return prev*lcgMultiplier + lcgIncrement
}

// Producer emits an endless pseudo-random message stream into the intake channel.
type Producer struct {
	id      int
	out     *channels.Sender[Message]
	reports reportSink
	window  time.Duration
	logger  *slog.Logger
}

// NewProducer takes ownership of out and reports; both are released when Run returns.
func NewProducer(id int, out *channels.Sender[Message], reports reportSink, window time.Duration, logger *slog.Logger) *Producer {
	return &Producer{
		id:      id,
		out:     out,
		reports: reports,
		window:  window,
		logger:  logger.With("component", "producer", "worker_id", id),
	}
}

// Run sends until the intake's receiving end is closed.
func (p *Producer) Run() {
	defer p.reports.Close()
	defer p.out.Close()

	p.logger.Debug("Producer started")

	next := uint64(p.id)
	rate := newRateWindow(p.window)
	for {
		next = nextMessage(next)
		if err := p.out.Send(Message(next)); err != nil {
			p.logger.Debug("Producer stopped", "reason", err)
			return
		}
		if r, ok := rate.observe(1); ok {
			p.reports.Publish(Report{Stage: StageProducer, WorkerID: p.id, Rate: r})
		}
	}
}
