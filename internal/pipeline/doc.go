// Package pipeline implements the staged backpressure pipeline:
//
//	producers -> intake (bounded) -> combiners -> batches (bounded) -> processors
//
// Every worker also publishes rate samples to an unbounded report channel
// drained by a single Reporter into a PerformanceTable. A CapacityMonitor
// samples the occupancy of both bounded channels.
//
// The bounded channels are the only flow control. A slow processor fills the
// batch channel, which suspends combiners, which stop draining the intake,
// which suspends producers.
//
// Data-path workers never stop on their own: each one exits only when the
// peer end of one of its channels is closed. Pipeline.Stop closes the
// receiving end of the intake and the shutdown cascades downstream from there.
package pipeline
