package pipeline

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Stage identifies the pipeline layer a worker belongs to.
type Stage int

const (
	StageProducer Stage = iota
	StageLayer1
	StageLayer2

	stageCount = 3
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{StageProducer, StageLayer1, StageLayer2}

func (s Stage) String() string {
	switch s {
	case StageProducer:
		return "producer"
	case StageLayer1:
		return "layer1"
	case StageLayer2:
		return "layer2"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ParseStage is the inverse of Stage.String.
func ParseStage(name string) (Stage, error) {
	for _, s := range Stages {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

func (s Stage) valid() bool {
	return s >= 0 && s < stageCount
}

// PerformanceTable maps (stage, worker id) to the latest reported rate. Each
// cell is an independent atomic word holding float64 bits, so the single
// writer never coordinates with readers.
type PerformanceTable struct {
	cells [stageCount][]atomic.Uint64
}

// NewPerformanceTable sizes the table for the given worker counts.
func NewPerformanceTable(producers, combiners, processors int) *PerformanceTable {
	t := &PerformanceTable{}
	t.cells[StageProducer] = make([]atomic.Uint64, max(producers, 0))
	t.cells[StageLayer1] = make([]atomic.Uint64, max(combiners, 0))
	t.cells[StageLayer2] = make([]atomic.Uint64, max(processors, 0))
	return t
}

// Store records rate for the worker and reports whether the cell exists.
func (t *PerformanceTable) Store(stage Stage, id int, rate float64) bool {
	if !stage.valid() || id < 0 || id >= len(t.cells[stage]) {
		return false
	}
	t.cells[stage][id].Store(math.Float64bits(rate))
	return true
}

// Rate returns the latest rate for the worker.
func (t *PerformanceTable) Rate(stage Stage, id int) (float64, bool) {
	if !stage.valid() || id < 0 || id >= len(t.cells[stage]) {
		return 0, false
	}
	return math.Float64frombits(t.cells[stage][id].Load()), true
}

// Workers returns the number of cells for stage.
func (t *PerformanceTable) Workers(stage Stage) int {
	if !stage.valid() {
		return 0
	}
	return len(t.cells[stage])
}

// Rates copies every rate of stage, indexed by worker id.
func (t *PerformanceTable) Rates(stage Stage) []float64 {
	if !stage.valid() {
		return nil
	}
	out := make([]float64, len(t.cells[stage]))
	for i := range t.cells[stage] {
		out[i] = math.Float64frombits(t.cells[stage][i].Load())
	}
	return out
}
