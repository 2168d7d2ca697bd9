package pipeline

import "time"

// Snapshot is a point-in-time copy of all externally visible state.
type Snapshot struct {
	Timestamp         time.Time `json:"timestamp" msgpack:"timestamp"`
	Producers         []float64 `json:"producers" msgpack:"producers"`
	Layer1            []float64 `json:"layer1" msgpack:"layer1"`
	Layer2            []float64 `json:"layer2" msgpack:"layer2"`
	IntakeOccupancy   int       `json:"intake_occupancy_percent" msgpack:"intake_occupancy_percent"`
	BatchOccupancy    int       `json:"batch_occupancy_percent" msgpack:"batch_occupancy_percent"`
	BatchSize         int       `json:"batch_size" msgpack:"batch_size"`
	ProcessingDelayMS int64     `json:"processing_delay_ms" msgpack:"processing_delay_ms"`
	Running           bool      `json:"running" msgpack:"running"`
}

// Rates returns the per-worker rates for stage.
func (s Snapshot) Rates(stage Stage) []float64 {
	switch stage {
	case StageProducer:
		return s.Producers
	case StageLayer1:
		return s.Layer1
	case StageLayer2:
		return s.Layer2
	default:
		return nil
	}
}

// Snapshot reads every table cell, gauge and tuning value. Cells are read
// independently, so the result is not an atomic cut across workers.
func (p *Pipeline) Snapshot() Snapshot {
	return Snapshot{
		Timestamp:         time.Now().UTC(),
		Producers:         p.table.Rates(StageProducer),
		Layer1:            p.table.Rates(StageLayer1),
		Layer2:            p.table.Rates(StageLayer2),
		IntakeOccupancy:   p.occupancy.Intake(),
		BatchOccupancy:    p.occupancy.Batches(),
		BatchSize:         p.tuning.BatchSize(),
		ProcessingDelayMS: p.tuning.ProcessingDelay().Milliseconds(),
		Running:           p.Running(),
	}
}
