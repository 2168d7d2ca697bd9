// Package telemetry turns pipeline snapshots into time series for the API,
// Prometheus and the sample writer.
package telemetry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/flowviz/flowviz/internal/pipeline"
)

// Occupancy series names. Rate series are named after pipeline.Stage.
const (
	SeriesIntake  = "intake"
	SeriesBatches = "batches"
)

// Source supplies snapshots. *pipeline.Pipeline satisfies it.
type Source interface {
	Snapshot() pipeline.Snapshot
}

// Point is one sample of a series.
type Point struct {
	Time  time.Time `json:"t" msgpack:"t"`
	Value float64   `json:"v" msgpack:"v"`
}

// Series is the retained history of one worker rate or channel occupancy.
type Series struct {
	Name     string  `json:"name" msgpack:"name"`
	WorkerID int     `json:"worker_id" msgpack:"worker_id"`
	Points   []Point `json:"points" msgpack:"points"`
}

type seriesKey struct {
	name string
	id   int
}

// ring keeps the newest len(buf) points.
type ring struct {
	buf   []Point
	start int
	n     int
}

func newRing(size int) *ring {
	return &ring{buf: make([]Point, size)}
}

func (r *ring) push(p Point) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = p
		r.n++
		return
	}
	r.buf[r.start] = p
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) points() []Point {
	out := make([]Point, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// History periodically samples a Source and keeps a bounded window per series.
type History struct {
	source   Source
	length   int
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	series map[seriesKey]*ring
}

// NewHistory keeps up to length points per series. Lengths below one are raised to one.
func NewHistory(source Source, length int, interval time.Duration, logger *slog.Logger) *History {
	if length < 1 {
		length = 1
	}
	return &History{
		source:   source,
		length:   length,
		interval: interval,
		logger:   logger.With("component", "history"),
		series:   make(map[seriesKey]*ring),
	}
}

// Record appends every value of s to its series.
func (h *History) Record(s pipeline.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stage := range pipeline.Stages {
		for id, rate := range s.Rates(stage) {
			h.push(seriesKey{stage.String(), id}, Point{Time: s.Timestamp, Value: rate})
		}
	}
	h.push(seriesKey{SeriesIntake, 0}, Point{Time: s.Timestamp, Value: float64(s.IntakeOccupancy)})
	h.push(seriesKey{SeriesBatches, 0}, Point{Time: s.Timestamp, Value: float64(s.BatchOccupancy)})
}

func (h *History) push(k seriesKey, p Point) {
	r, ok := h.series[k]
	if !ok {
		r = newRing(h.length)
		h.series[k] = r
	}
	r.push(p)
}

// Run records a snapshot every interval until ctx is cancelled.
func (h *History) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Debug("History sampler started", "interval", h.interval, "length", h.length)

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("History sampler stopped")
			return
		case <-ticker.C:
			h.Record(h.source.Snapshot())
		}
	}
}

// Series returns a copy of one series, oldest first.
func (h *History) Series(name string, id int) []Point {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r, ok := h.series[seriesKey{name, id}]
	if !ok {
		return nil
	}
	return r.points()
}

// All returns every series ordered by name then worker id.
func (h *History) All() []Series {
	h.mu.RLock()
	out := make([]Series, 0, len(h.series))
	for k, r := range h.series {
		out = append(out, Series{Name: k.name, WorkerID: k.id, Points: r.points()})
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].WorkerID < out[j].WorkerID
	})
	return out
}
