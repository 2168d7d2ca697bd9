package pipeline

import (
	"sync/atomic"
	"time"
)

const (
	DefaultBatchSize = 32

	// BatchSizeStep and DelayStep are the increments used by the step helpers.
	BatchSizeStep = 32
	DelayStep     = 100 * time.Millisecond

	// MaxBatchSize and MaxProcessingDelay bound every setter and step helper.
	MaxBatchSize       = 1_000_000
	MaxProcessingDelay = time.Hour
)

// Tuning holds the runtime knobs read by workers. Values are advisory and
// accessed with plain atomic loads and stores; readers may observe a change
// slightly late.
type Tuning struct {
	batchSize atomic.Int64
	delay     atomic.Int64
}

// NewTuning returns tuning state seeded with the given values.
func NewTuning(batchSize int, delay time.Duration) (*Tuning, error) {
	t := &Tuning{}
	if err := t.SetBatchSize(batchSize); err != nil {
		return nil, err
	}
	if err := t.SetProcessingDelay(delay); err != nil {
		return nil, err
	}
	return t, nil
}

// BatchSize returns the current batch size.
func (t *Tuning) BatchSize() int {
	return int(t.batchSize.Load())
}

// SetBatchSize changes the size used by batches that begin after the call.
func (t *Tuning) SetBatchSize(n int) error {
	if n < 1 {
		return ErrInvalidBatchSize
	}
	if n > MaxBatchSize {
		return ErrBatchSizeTooLarge
	}
	t.batchSize.Store(int64(n))
	return nil
}

// ProcessingDelay returns the simulated per-batch cost.
func (t *Tuning) ProcessingDelay() time.Duration {
	return time.Duration(t.delay.Load())
}

// SetProcessingDelay changes the cost applied to batches processed after the call.
func (t *Tuning) SetProcessingDelay(d time.Duration) error {
	if d < 0 {
		return ErrNegativeDelay
	}
	if d > MaxProcessingDelay {
		return ErrDelayTooLong
	}
	t.delay.Store(int64(d))
	return nil
}

// IncreaseBatchSize adds BatchSizeStep, stopping at MaxBatchSize, and returns
// the new size.
func (t *Tuning) IncreaseBatchSize() int {
	for {
		cur := t.batchSize.Load()
		next := min(cur+BatchSizeStep, MaxBatchSize)
		if cur == next || t.batchSize.CompareAndSwap(cur, next) {
			return int(next)
		}
	}
}

// DecreaseBatchSize subtracts BatchSizeStep unless that would take the size
// to BatchSizeStep or below, and returns the resulting size.
func (t *Tuning) DecreaseBatchSize() int {
	for {
		cur := t.batchSize.Load()
		if cur <= BatchSizeStep {
			return int(cur)
		}
		if t.batchSize.CompareAndSwap(cur, cur-BatchSizeStep) {
			return int(cur - BatchSizeStep)
		}
	}
}

// IncreaseDelay adds DelayStep, stopping at MaxProcessingDelay, and returns
// the new delay.
func (t *Tuning) IncreaseDelay() time.Duration {
	for {
		cur := t.delay.Load()
		next := min(cur+int64(DelayStep), int64(MaxProcessingDelay))
		if cur == next || t.delay.CompareAndSwap(cur, next) {
			return time.Duration(next)
		}
	}
}

// DecreaseDelay subtracts DelayStep, stopping at zero, and returns the new delay.
func (t *Tuning) DecreaseDelay() time.Duration {
	for {
		cur := t.delay.Load()
		next := cur - int64(DelayStep)
		if next < 0 {
			next = 0
		}
		if cur == next || t.delay.CompareAndSwap(cur, next) {
			return time.Duration(next)
		}
	}
}
