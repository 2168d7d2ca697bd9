package pipeline

import (
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowviz/flowviz/internal/channels"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runAsync runs fn in a goroutine and returns a channel closed when it returns.
func runAsync(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}

func requireDone(t *testing.T, done <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not terminate", what)
	}
}

func drainReports(rx *channels.UnboundedReceiver[Report]) []Report {
	var out []Report
	for {
		r, err := rx.Recv()
		if err != nil {
			return out
		}
		out = append(out, r)
	}
}

func TestNextMessage(t *testing.T) {
	assert.Equal(t, uint64(12345), nextMessage(0))
	assert.Equal(t, uint64(1103527590), nextMessage(1))
	assert.Equal(t, uint64(2207042835), nextMessage(2))

	// wraps modulo 2^64 instead of overflowing
	assert.Equal(t, uint64(18446744072606048716), nextMessage(math.MaxUint64))
}

func TestProducer_FillsChannelAndSuspends(t *testing.T) {
	intake := channels.NewBounded[Message](10)
	rx := intake.Receiver() // held but never read
	defer rx.Close()
	reports := channels.NewUnbounded[Report]()
	reportRx := reports.Receiver()

	p := NewProducer(0, intake.Sender(), reports.Sender(), time.Millisecond, testLogger())
	done := runAsync(p.Run)

	require.Eventually(t, func() bool { return intake.Len() == 10 }, time.Second, time.Millisecond)

	// the 11th send stays suspended
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 10, intake.Len())
	select {
	case <-done:
		t.Fatal("producer exited while the channel was only full")
	default:
	}

	occ := &Occupancy{}
	NewCapacityMonitor(intake, channels.NewBounded[Batch](10), occ, time.Second, testLogger()).Sample()
	assert.Equal(t, 100, occ.Intake())
	assert.Equal(t, 0, occ.Batches())

	intake.CloseRecv()
	requireDone(t, done, "producer")

	// report sender released on exit
	drainReports(reportRx)
}

func TestProducer_SequenceSeededByID(t *testing.T) {
	intake := channels.NewBounded[Message](3)
	rx := intake.Receiver()
	reports := channels.NewUnbounded[Report]()

	p := NewProducer(2, intake.Sender(), reports.Sender(), time.Hour, testLogger())
	done := runAsync(p.Run)

	want := uint64(2)
	for i := 0; i < 3; i++ {
		want = nextMessage(want)
		got, err := rx.Recv()
		require.NoError(t, err)
		assert.Equal(t, Message(want), got)
	}

	rx.Close()
	requireDone(t, done, "producer")
}

type combinerHarness struct {
	intake   *channels.Bounded[Message]
	batches  *channels.Bounded[Batch]
	in       *channels.Sender[Message]
	out      *channels.Receiver[Batch]
	reports  *channels.UnboundedReceiver[Report]
	tuning   *Tuning
	done     <-chan struct{}
	combiner *Combiner
}

func newCombinerHarness(t *testing.T, batchSize int, flush bool) *combinerHarness {
	t.Helper()
	tun, err := NewTuning(batchSize, 0)
	require.NoError(t, err)

	h := &combinerHarness{
		intake:  channels.NewBounded[Message](64),
		batches: channels.NewBounded[Batch](64),
		tuning:  tun,
	}
	reports := channels.NewUnbounded[Report]()
	h.in = h.intake.Sender()
	h.out = h.batches.Receiver()
	h.reports = reports.Receiver()
	h.combiner = NewCombiner(0, h.intake.Receiver(), h.batches.Sender(), reports.Sender(),
		tun, time.Millisecond, flush, testLogger())
	h.done = runAsync(h.combiner.Run)
	return h
}

func (h *combinerHarness) send(t *testing.T, msgs ...Message) {
	t.Helper()
	for _, m := range msgs {
		require.NoError(t, h.in.Send(m))
	}
}

func TestCombiner_ForwardsFullBatches(t *testing.T) {
	h := newCombinerHarness(t, 4, false)

	h.send(t, 1, 2, 3, 4, 5)

	b, err := h.out.Recv()
	require.NoError(t, err)
	assert.Equal(t, Batch{1, 2, 3, 4}, b)

	// the fifth message starts a new batch that is never completed
	require.Eventually(t, func() bool { return h.intake.Len() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, h.batches.Len())

	h.in.Close()
	requireDone(t, h.done, "combiner")

	_, err = h.out.Recv()
	assert.ErrorIs(t, err, channels.ErrDisconnected, "partial batch must be discarded")
}

func TestCombiner_FlushesPartialBatchWhenEnabled(t *testing.T) {
	h := newCombinerHarness(t, 4, true)

	h.send(t, 1, 2, 3, 4, 5, 6)
	h.in.Close()
	requireDone(t, h.done, "combiner")

	b, err := h.out.Recv()
	require.NoError(t, err)
	assert.Equal(t, Batch{1, 2, 3, 4}, b)

	b, err = h.out.Recv()
	require.NoError(t, err)
	assert.Equal(t, Batch{5, 6}, b)

	_, err = h.out.Recv()
	assert.ErrorIs(t, err, channels.ErrDisconnected)
}

func TestCombiner_BatchSizeFrozenAtBatchStart(t *testing.T) {
	h := newCombinerHarness(t, 4, false)

	h.send(t, 1, 2)
	// once both are consumed the first one has fixed the batch limit
	require.Eventually(t, func() bool { return h.intake.Len() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, h.tuning.SetBatchSize(8))

	h.send(t, 3, 4)
	b, err := h.out.Recv()
	require.NoError(t, err)
	assert.Equal(t, Batch{1, 2, 3, 4}, b)

	h.send(t, 5, 6, 7, 8, 9, 10, 11, 12)
	b, err = h.out.Recv()
	require.NoError(t, err)
	assert.Len(t, b, 8)

	h.in.Close()
	requireDone(t, h.done, "combiner")
}

func TestCombiner_StopsWhenBatchReceiverCloses(t *testing.T) {
	h := newCombinerHarness(t, 2, false)

	h.batches.CloseRecv()
	h.send(t, 1, 2)

	requireDone(t, h.done, "combiner")
	// its intake receiver was released, closing the intake for producers
	assert.True(t, h.intake.RecvClosed())
	assert.ErrorIs(t, h.in.Send(3), channels.ErrDisconnected)
}

func TestCombiner_ReportsItemRate(t *testing.T) {
	h := newCombinerHarness(t, 1, false)

	for i := 0; i < 20; i++ {
		h.send(t, Message(i))
		_, err := h.out.Recv()
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}
	h.in.Close()
	requireDone(t, h.done, "combiner")

	reports := drainReports(h.reports)
	require.NotEmpty(t, reports)
	for _, r := range reports {
		assert.Equal(t, StageLayer1, r.Stage)
		assert.Equal(t, 0, r.WorkerID)
		assert.Greater(t, r.Rate, 0.0)
	}
}

func TestProcessor_UncappedAtZeroDelay(t *testing.T) {
	tun, err := NewTuning(4, 0)
	require.NoError(t, err)

	batches := channels.NewBounded[Batch](128)
	tx := batches.Sender()
	reports := channels.NewUnbounded[Report]()
	reportRx := reports.Receiver()

	var (
		mu    sync.Mutex
		count int
		ids   = map[int]bool{}
	)
	hook := func(id int, b Batch) {
		mu.Lock()
		defer mu.Unlock()
		count++
		ids[id] = true
	}

	p := NewProcessor(3, batches.Receiver(), reports.Sender(), tun, time.Millisecond, hook, testLogger())

	start := time.Now()
	done := runAsync(p.Run)
	for i := 0; i < 100; i++ {
		require.NoError(t, tx.Send(Batch{Message(i)}))
	}
	tx.Close()
	requireDone(t, done, "processor")

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 100, count)
	assert.Equal(t, map[int]bool{3: true}, ids)

	for _, r := range drainReports(reportRx) {
		assert.Equal(t, StageLayer2, r.Stage)
		assert.Equal(t, 3, r.WorkerID, "processors report under their own id")
	}
}

func TestProcessor_AppliesDelayPerBatch(t *testing.T) {
	tun, err := NewTuning(4, 20*time.Millisecond)
	require.NoError(t, err)

	batches := channels.NewBounded[Batch](8)
	tx := batches.Sender()
	reports := channels.NewUnbounded[Report]()

	p := NewProcessor(0, batches.Receiver(), reports.Sender(), tun, time.Second, nil, testLogger())

	start := time.Now()
	done := runAsync(p.Run)
	for i := 0; i < 5; i++ {
		require.NoError(t, tx.Send(Batch{1}))
	}
	tx.Close()
	requireDone(t, done, "processor")

	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestReporter_StoresInArrivalOrder(t *testing.T) {
	table := NewPerformanceTable(2, 1, 1)
	reports := channels.NewUnbounded[Report]()
	tx := reports.Sender()

	r := NewReporter(reports.Receiver(), table, testLogger())

	tx.Publish(Report{Stage: StageProducer, WorkerID: 1, Rate: 10})
	tx.Publish(Report{Stage: StageProducer, WorkerID: 1, Rate: 20})
	tx.Publish(Report{Stage: StageLayer2, WorkerID: 0, Rate: 3.5})
	tx.Publish(Report{Stage: StageLayer1, WorkerID: 5, Rate: 1})
	tx.Close()

	done := runAsync(r.Run)
	requireDone(t, done, "reporter")

	rate, _ := table.Rate(StageProducer, 1)
	assert.Equal(t, 20.0, rate)
	rate, _ = table.Rate(StageLayer2, 0)
	assert.Equal(t, 3.5, rate)
	assert.Equal(t, []float64{0}, table.Rates(StageLayer1))
}
