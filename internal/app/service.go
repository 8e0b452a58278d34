// Package service composes the request handler, dedup store, dispatch queue
// and processor workers into the collector.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	eventqueue "github.com/okian/hookline/internal/adapters/mq/queue"
	workerpool "github.com/okian/hookline/internal/adapters/mq/worker"
	"github.com/okian/hookline/internal/domain/dedupe"
	"github.com/okian/hookline/internal/domain/ingest"
	"github.com/okian/hookline/internal/domain/model"
	"github.com/okian/hookline/pkg/logger"
	"github.com/okian/hookline/pkg/metrics"
)

const (
	defaultQueueSize   = 10000
	stopDrainTimeout   = 10 * time.Second
	dispatchDropPrefix = "dispatch dropped"
	shutdownDropReason = "shutdown"
)

// Processor is the downstream capability accepted events are handed to.
type Processor = workerpool.Processor

// Stats is a point-in-time view of the collector.
type Stats struct {
	Started               bool   `json:"started"`
	AcceptedEvents        int64  `json:"acceptedEvents"`
	ProcessedEvents       int64  `json:"processedEvents"` // handed to the processor, failed or not
	ProcessingFailures    int64  `json:"processingFailures"`
	LastProcessingFailure string `json:"lastProcessingFailure,omitempty"`
	StoredEvents          int64  `json:"storedEvents"`
	DedupedEvents         int64  `json:"dedupedEvents"`
	QueueLength           int    `json:"queueLength"`
	QueueCapacity         int    `json:"queueCapacity"`
	WorkerCount           int    `json:"workerCount"`
}

// BatchResult tallies an IngestBatch call.
type BatchResult struct {
	Accepted int      `json:"accepted"`
	Deduped  int      `json:"deduped"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

// Service is the collector. Requests are answered synchronously; accepted
// events reach the processor through a bounded queue and a worker pool, so a
// slow or failing processor never affects a response.
type Service struct {
	mu sync.RWMutex

	handler    *ingest.Handler
	store      dedupe.Store
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool
	processor  Processor

	workerCount int
	queueSize   int
	dedupeSize  int
	clock       func() time.Time

	acceptedEvents     atomic.Int64
	processingFailures atomic.Int64
	failureMu          sync.Mutex
	lastFailure        string

	started bool
	stopped bool

	logger logger.Logger
}

// New constructs a Service. Requests can be handled right away; the
// processor only runs once Start is called.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU() * 2,
		queueSize:   defaultQueueSize,
		clock:       time.Now,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = dedupe.NewInMemoryStore(dedupe.WithMaxSize(s.dedupeSize))
	}
	if s.processor == nil {
		s.processor = NewLoggingProcessor(s.logger)
	}
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.processor,
		workerpool.WithLogger(s.logger),
		workerpool.WithFailureReporter(s.reportProcessorFailure),
	)
	s.handler = ingest.NewHandler(ingest.Dependencies{
		Store:      s.store,
		StartedAt:  s.clock(),
		Clock:      s.clock,
		OnAccepted: s.dispatch,
		Logger:     s.logger.Named("ingest"),
	})

	return s
}

// Start launches the processor workers. Cancelling ctx does not stop them;
// only Stop does.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	s.workerPool.Start(context.WithoutCancel(ctx))
	s.started = true
	s.logger.Info(ctx, "collector service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.eventQueue.Cap()),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop closes the handler to asynchronous dispatch, waits for in-flight
// dispatches, then closes the queue and lets the workers drain it. Events
// still queued when the drain times out, and events accepted afterwards, are
// counted as dropped. Stop is safe to call while requests are being handled.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping collector service...")

	s.handler.Close()
	if s.started {
		drainCtx, cancel := context.WithTimeout(ctx, stopDrainTimeout)
		if err := s.workerPool.Shutdown(drainCtx); err != nil {
			s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
		}
		cancel()
	} else {
		_ = s.eventQueue.Close()
	}
	if dropped := s.dropQueued(ctx); dropped > 0 {
		s.logger.Warn(ctx, "queued events dropped at shutdown", logger.Int("count", dropped))
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "collector service stopped")
}

// Handle answers one decoded request.
func (s *Service) Handle(ctx context.Context, req ingest.Request) ingest.Response {
	return s.handler.Handle(ctx, req)
}

// HandleRaw answers one undecoded request.
func (s *Service) HandleRaw(ctx context.Context, req ingest.RawRequest) ingest.Response {
	return s.handler.HandleRaw(ctx, req)
}

// Ingest submits a typed envelope through the hook route.
func (s *Service) Ingest(ctx context.Context, ev model.EventEnvelope) ingest.Response { //nolint:gocritic // hugeParam: envelopes travel by value
	return s.handler.Handle(ctx, ingest.Request{Method: http.MethodPost, URL: ingest.PathHooks, Body: ev})
}

// IngestBatch submits each envelope in order and tallies the outcomes.
func (s *Service) IngestBatch(ctx context.Context, events []model.EventEnvelope) BatchResult {
	var res BatchResult
	for i := range events {
		resp := s.Ingest(ctx, events[i])
		switch p := resp.Payload.(type) {
		case ingest.AckPayload:
			if p.Deduped {
				res.Deduped++
			} else {
				res.Accepted++
			}
		case ingest.ErrorPayload:
			res.Rejected++
			res.Errors = append(res.Errors, batchErrors(events[i].EventID, p)...)
		}
	}
	return res
}

// Stats returns service, store and queue counters.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	counters := s.store.Counters()
	queueLen := s.eventQueue.Len(context.Background())

	s.failureMu.Lock()
	lastFailure := s.lastFailure
	s.failureMu.Unlock()

	return Stats{
		Started:               started,
		AcceptedEvents:        s.acceptedEvents.Load(),
		ProcessedEvents:       s.workerPool.Processed(),
		ProcessingFailures:    s.processingFailures.Load(),
		LastProcessingFailure: lastFailure,
		StoredEvents:          counters.StoredEvents,
		DedupedEvents:         counters.DedupedEvents,
		QueueLength:           queueLen,
		QueueCapacity:         s.eventQueue.Cap(),
		WorkerCount:           s.workerPool.Size(),
	}
}

// Store returns the dedup store.
func (s *Service) Store() dedupe.Store {
	return s.store
}

// dispatch is the handler's accepted-event hook. A refused enqueue is a
// processing failure; it is never retried.
func (s *Service) dispatch(ctx context.Context, ev model.EventEnvelope) error { //nolint:gocritic // hugeParam: envelopes travel by value
	s.acceptedEvents.Add(1)

	err := s.eventQueue.Enqueue(ctx, ev)
	if err == nil {
		return nil
	}

	metrics.RecordDispatchDropped()
	metrics.RecordProcessingFailure()
	s.recordFailure(fmt.Sprintf("%s: %v", dispatchDropPrefix, err))
	if errors.Is(err, eventqueue.ErrQueueFull) {
		s.logger.Warn(ctx, "dispatch queue full", logger.String("eventId", ev.EventID))
	}
	return fmt.Errorf("%s: %w", dispatchDropPrefix, err)
}

// dropQueued empties the closed queue, counting each leftover event as a
// processing failure.
func (s *Service) dropQueued(ctx context.Context) int {
	dropped := 0
	for range s.eventQueue.Dequeue(ctx) {
		dropped++
		metrics.RecordDispatchDropped()
		metrics.RecordProcessingFailure()
		s.recordFailure(fmt.Sprintf("%s: %s", dispatchDropPrefix, shutdownDropReason))
	}
	return dropped
}

func (s *Service) reportProcessorFailure(ev model.EventEnvelope, err error) {
	s.recordFailure(fmt.Sprintf("%s: %v", ev.EventID, err))
}

func (s *Service) recordFailure(desc string) {
	s.processingFailures.Add(1)
	s.failureMu.Lock()
	s.lastFailure = desc
	s.failureMu.Unlock()
}

func batchErrors(eventID string, p ingest.ErrorPayload) []string {
	prefix := eventID
	if prefix == "" {
		prefix = "event"
	}
	if len(p.Errors) == 0 {
		return []string{prefix + ": " + p.Message}
	}
	out := make([]string, len(p.Errors))
	for i, e := range p.Errors {
		out[i] = prefix + ": " + e
	}
	return out
}
