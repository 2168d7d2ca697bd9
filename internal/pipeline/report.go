package pipeline

import (
	"time"

	"github.com/flowviz/flowviz/internal/channels"
)

// Message is one synthetic workload item.
type Message uint64

// Batch is a group of messages assembled by a combiner. A batch is owned by a
// single goroutine at a time: the combiner until it is sent, then the
// processor that receives it.
type Batch []Message

// Report is a throughput sample. Producer and Layer1 rates are messages per
// second, Layer2 rates are batches per second.
type Report struct {
	Stage    Stage
	WorkerID int
	Rate     float64
}

// reportSink is where workers publish their samples. Publishing is best
// effort: a sample lost because the reporter is gone is not an error.
type reportSink = *channels.UnboundedSender[Report]

// rateWindow turns a stream of counts into a rate every window.
type rateWindow struct {
	window time.Duration
	start  time.Time
	count  uint64
	now    func() time.Time
}

func newRateWindow(window time.Duration) *rateWindow {
	return &rateWindow{
		window: window,
		start:  time.Now(),
		now:    time.Now,
	}
}

// observe adds n to the current window. Once the window has elapsed it returns
// count/elapsed and starts a new window.
func (w *rateWindow) observe(n uint64) (float64, bool) {
	w.count += n
	now := w.now()
	elapsed := now.Sub(w.start)
	if elapsed < w.window {
		return 0, false
	}
	rate := float64(w.count) / elapsed.Seconds()
	w.count = 0
	w.start = now
	return rate, true
}
