package pipeline

import (
	"math"
	"sync/atomic"
)

// Occupancy holds the latest fill percentage of the intake and batch channels.
type Occupancy struct {
	intake  atomic.Int32
	batches atomic.Int32
}

// Intake returns how full the producer-to-combiner channel was at the last sample.
func (o *Occupancy) Intake() int {
	return int(o.intake.Load())
}

// Batches returns how full the combiner-to-processor channel was at the last sample.
func (o *Occupancy) Batches() int {
	return int(o.batches.Load())
}

func (o *Occupancy) store(intake, batches int) {
	o.intake.Store(int32(intake))
	o.batches.Store(int32(batches))
}

// Percent returns round(length/capacity*100) clamped to [0, 100].
func Percent(length, capacity int) int {
	if capacity <= 0 || length <= 0 {
		return 0
	}
	p := int(math.Round(float64(length) / float64(capacity) * 100))
	if p > 100 {
		return 100
	}
	return p
}
