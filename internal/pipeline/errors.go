package pipeline

import "errors"

var (
	ErrAlreadyRunning    = errors.New("pipeline already started")
	ErrInvalidBatchSize  = errors.New("batch size must be a positive integer")
	ErrBatchSizeTooLarge = errors.New("batch size exceeds the maximum of 1000000")
	ErrNegativeDelay     = errors.New("processing delay must not be negative")
	ErrDelayTooLong      = errors.New("processing delay exceeds the maximum of one hour")
	ErrInvalidTopology   = errors.New("every stage needs at least one worker and a positive channel capacity")
)
