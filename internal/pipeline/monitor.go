package pipeline

import (
	"context"
	"log/slog"
	"time"
)

// Gauge is a channel whose fill level can be observed.
type Gauge interface {
	Len() int
	Cap() int
}

// CapacityMonitor periodically publishes the fill level of the intake and
// batch channels. It only observes; it never sends or receives.
type CapacityMonitor struct {
	intake    Gauge
	batches   Gauge
	occupancy *Occupancy
	interval  time.Duration
	logger    *slog.Logger
}

func NewCapacityMonitor(intake, batches Gauge, occupancy *Occupancy, interval time.Duration, logger *slog.Logger) *CapacityMonitor {
	return &CapacityMonitor{
		intake:    intake,
		batches:   batches,
		occupancy: occupancy,
		interval:  interval,
		logger:    logger.With("component", "capacity_monitor"),
	}
}

// Sample takes one reading of both channels.
func (m *CapacityMonitor) Sample() {
	m.occupancy.store(
		Percent(m.intake.Len(), m.intake.Cap()),
		Percent(m.batches.Len(), m.batches.Cap()),
	)
}

// Run samples every interval until ctx is cancelled.
func (m *CapacityMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Debug("Capacity monitor started", "interval", m.interval)
	m.Sample()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Capacity monitor stopped")
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}
