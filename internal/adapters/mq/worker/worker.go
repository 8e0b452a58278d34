// Package worker drains the dispatch queue into the downstream processor.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/hookline/internal/domain/model"
	"github.com/okian/hookline/pkg/logger"
	"github.com/okian/hookline/pkg/metrics"
)

const (
	defaultWorkersPerCPU = 2
	poolShutdownTimeout  = 30 * time.Second
)

// Event is what workers read off the queue.
type Event = model.EventEnvelope

// Processor handles one accepted event. It may be slow or fail; failures are
// reported, never retried.
type Processor interface {
	ProcessAcceptedEvent(ctx context.Context, ev model.EventEnvelope) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, ev model.EventEnvelope) error

// ProcessAcceptedEvent calls f.
func (f ProcessorFunc) ProcessAcceptedEvent(ctx context.Context, ev model.EventEnvelope) error {
	return f(ctx, ev)
}

// FailureReporter is told about every failed (or panicking) processor call.
type FailureReporter func(ev model.EventEnvelope, err error)

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes events from a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called
	// or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current event.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing events.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	cfg       config
	processed *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}
}

var _ Worker = (*InMemoryWorker)(nil)

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, processor Processor, opts ...Option) *InMemoryWorker {
	cfg := newConfig("worker", opts)
	return &InMemoryWorker{
		queue:     queue,
		processor: processor,
		cfg:       cfg,
		processed: new(atomic.Int64),
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	eventChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			w.process(ctx, event)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.cfg.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process runs the processor for one event. Errors and panics are counted
// and reported; nothing escapes the worker.
func (w *InMemoryWorker) process(ctx context.Context, event Event) { //nolint:gocritic // hugeParam: envelopes travel by value
	start := time.Now()
	err := w.call(ctx, event)
	metrics.RecordProcessingLatency(float64(time.Since(start).Milliseconds()))
	w.processed.Add(1)

	if err == nil {
		return
	}
	metrics.RecordProcessingFailure()
	metrics.RecordErrorByComponent("worker", "processor_error")
	w.cfg.logger.Error(ctx, "processor failed",
		logger.String("eventId", event.EventID),
		logger.String("eventType", event.EventType),
		logger.Error(err),
	)
	if w.cfg.onFailure != nil {
		w.cfg.onFailure(event, err)
	}
}

func (w *InMemoryWorker) call(ctx context.Context, event Event) (err error) { //nolint:gocritic // hugeParam: envelopes travel by value
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrProcessorPanic, r)
		}
	}()
	return w.processor.ProcessAcceptedEvent(ctx, event)
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers   []*InMemoryWorker
	queue     Queue
	processed atomic.Int64
	logger    logger.Logger
}

// NewPool creates a new worker pool. workerCount < 1 picks a CPU-based default.
func NewPool(workerCount int, queue Queue, processor Processor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkersPerCPU
	}
	cfg := newConfig("worker-pool", opts)

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  cfg.logger,
	}
	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(queue, processor,
			WithLogger(cfg.base),
			WithName("worker-"+strconv.Itoa(i)),
			WithFailureReporter(cfg.onFailure),
		)
		w.processed = &pool.processed
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns how many events the pool has handed to the processor.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Shutdown closes the queue and lets workers drain what is already queued.
// If ctx expires first, workers are stopped after their current event.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
		}
		if timedOut {
			break
		}
	}
	if !timedOut {
		return nil
	}

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer stopCancel()
	for _, w := range p.workers {
		_ = w.Shutdown(stopCtx)
	}
	return fmt.Errorf("worker pool drain: %w", shutdownCtx.Err())
}
