package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flowviz/flowviz/internal/channels"
	"github.com/flowviz/flowviz/internal/config"
)

// Option customises a Pipeline before it starts.
type Option func(*Pipeline)

// WithBatchHook attaches fn to every processor. fn runs on the processor's
// goroutine after each batch and must be safe for concurrent use.
func WithBatchHook(fn BatchHook) Option {
	return func(p *Pipeline) {
		p.hook = fn
	}
}

// Pipeline owns the channels, shared state and workers of one run.
// A Pipeline can be started once.
type Pipeline struct {
	cfg    config.PipelineConfig
	logger *slog.Logger
	hook   BatchHook

	tuning    *Tuning
	table     *PerformanceTable
	occupancy *Occupancy

	intake  *channels.Bounded[Message]
	batches *channels.Bounded[Batch]
	reports *channels.Unbounded[Report]

	mu      sync.Mutex
	started bool
	running bool
	workers sync.WaitGroup
	done    chan struct{}
}

// New builds a pipeline from cfg. No goroutines are started until Start.
func New(cfg config.PipelineConfig, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if cfg.Producers < 1 || cfg.Combiners < 1 || cfg.Processors < 1 || cfg.ChannelCapacity < 1 {
		return nil, ErrInvalidTopology
	}
	if logger == nil {
		logger = slog.Default()
	}

	tuning, err := NewTuning(cfg.BatchSize, cfg.ProcessingDelay())
	if err != nil {
		return nil, fmt.Errorf("initial tuning: %w", err)
	}

	p := &Pipeline{
		cfg:       cfg,
		logger:    logger.With("component", "pipeline"),
		tuning:    tuning,
		table:     NewPerformanceTable(cfg.Producers, cfg.Combiners, cfg.Processors),
		occupancy: &Occupancy{},
		intake:    channels.NewBounded[Message](cfg.ChannelCapacity),
		batches:   channels.NewBounded[Batch](cfg.ChannelCapacity),
		reports:   channels.NewUnbounded[Report](),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start spawns every worker plus the reporter and the capacity monitor. The
// monitor runs until ctx is cancelled; the data path runs until Stop.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyRunning
	}
	p.started = true
	p.running = true

	// Acquire every handle before any worker runs so an early exit can never
	// drop a channel's sender count to zero.
	producers := make([]*Producer, p.cfg.Producers)
	for i := range producers {
		producers[i] = NewProducer(i, p.intake.Sender(), p.reports.Sender(), p.cfg.ProducerWindow(), p.logger)
	}
	combiners := make([]*Combiner, p.cfg.Combiners)
	for i := range combiners {
		combiners[i] = NewCombiner(i, p.intake.Receiver(), p.batches.Sender(), p.reports.Sender(),
			p.tuning, p.cfg.CombinerWindow(), p.cfg.FlushPartialBatches, p.logger)
	}
	processors := make([]*Processor, p.cfg.Processors)
	for i := range processors {
		processors[i] = NewProcessor(i, p.batches.Receiver(), p.reports.Sender(),
			p.tuning, p.cfg.ProcessorWindow(), p.hook, p.logger)
	}
	reporter := NewReporter(p.reports.Receiver(), p.table, p.logger)
	monitor := NewCapacityMonitor(p.intake, p.batches, p.occupancy, p.cfg.MonitorInterval(), p.logger)

	spawn := func(run func()) {
		p.workers.Add(1)
		go func() {
			defer p.workers.Done()
			run()
		}()
	}
	spawn(reporter.Run)
	for _, w := range processors {
		spawn(w.Run)
	}
	for _, w := range combiners {
		spawn(w.Run)
	}
	for _, w := range producers {
		spawn(w.Run)
	}
	go monitor.Run(ctx)

	go func() {
		p.workers.Wait()
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		close(p.done)
		p.logger.Info("Pipeline stopped")
	}()

	p.logger.Info("Pipeline started",
		"producers", p.cfg.Producers,
		"combiners", p.cfg.Combiners,
		"processors", p.cfg.Processors,
		"capacity", p.cfg.ChannelCapacity,
		"batch_size", p.tuning.BatchSize())
	return nil
}

// Stop closes the receiving end of the intake channel. Producers fail their
// next send and the shutdown cascades through every stage. Stop does not wait;
// use Wait or Done for that.
func (p *Pipeline) Stop() {
	p.intake.CloseRecv()
}

// Wait blocks until every data-path worker and the reporter have exited.
// It returns immediately if the pipeline was never started.
func (p *Pipeline) Wait() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return
	}
	<-p.done
}

// Done is closed once the pipeline has fully drained after Stop.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Run starts the pipeline, blocks until ctx is cancelled, then shuts it down
// and waits for it to drain.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	p.logger.Info("Shutting down pipeline")
	p.Stop()
	p.Wait()
	return ctx.Err()
}

// Running reports whether workers are active.
func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pipeline) Tuning() *Tuning {
	return p.tuning
}

func (p *Pipeline) Table() *PerformanceTable {
	return p.table
}

func (p *Pipeline) Occupancy() *Occupancy {
	return p.occupancy
}
