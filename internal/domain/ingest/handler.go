// Package ingest implements the request state machine shared by every
// transport: routing, envelope validation, dedup and accepted-event dispatch.
package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/okian/hookline/internal/domain/dedupe"
	"github.com/okian/hookline/internal/domain/model"
	"github.com/okian/hookline/pkg/logger"
	"github.com/okian/hookline/pkg/metrics"
)

// Dependencies are the capabilities a Handler is built from. Zero fields get
// in-memory or no-op defaults.
type Dependencies struct {
	// Validate turns a decoded body into an envelope.
	Validate func(body any) (model.EventEnvelope, error)
	// EventID picks the dedup key; it must agree with the store's key.
	EventID func(ev model.EventEnvelope) string
	Store   dedupe.Store
	// StartedAt is reported by /health.
	StartedAt time.Time
	Clock     func() time.Time
	// OnAccepted runs once per first-seen event, after the response is built.
	// Its error is logged and never reaches the caller.
	OnAccepted func(ctx context.Context, ev model.EventEnvelope) error
	Logger     logger.Logger
}

// Handler answers ingest requests. Safe for concurrent use.
type Handler struct {
	validate   func(any) (model.EventEnvelope, error)
	eventID    func(model.EventEnvelope) string
	store      dedupe.Store
	startedAt  time.Time
	clock      func() time.Time
	onAccepted func(context.Context, model.EventEnvelope) error
	log        logger.Logger

	// mu spans the Has/Put pair so one id cannot be accepted twice.
	mu sync.Mutex

	// dispatchMu orders inflight.Add against inflight.Wait.
	dispatchMu sync.RWMutex
	closed     bool
	inflight   sync.WaitGroup
}

// NewHandler builds a Handler from deps.
func NewHandler(deps Dependencies) *Handler {
	h := &Handler{
		validate:   deps.Validate,
		eventID:    deps.EventID,
		store:      deps.Store,
		startedAt:  deps.StartedAt,
		clock:      deps.Clock,
		onAccepted: deps.OnAccepted,
		log:        deps.Logger,
	}
	if h.validate == nil {
		h.validate = func(body any) (model.EventEnvelope, error) { return model.ValidateEventEnvelope(body) }
	}
	if h.eventID == nil {
		h.eventID = model.EventEnvelope.EventKey
	}
	if h.store == nil {
		h.store = dedupe.NewInMemoryStore()
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	if h.startedAt.IsZero() {
		h.startedAt = h.clock()
	}
	if h.log == nil {
		h.log = logger.Nop()
	}
	return h
}

// Store returns the dedup store the handler writes to.
func (h *Handler) Store() dedupe.Store {
	return h.store
}

// Handle routes one request. The query string is ignored and a trailing
// slash is tolerated; anything unrouted is 404.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	path := routePath(req.URL)
	method := strings.ToUpper(strings.TrimSpace(req.Method))

	switch {
	case path == PathHealth && method == http.MethodGet:
		return h.health()
	case path == PathHooks && method == http.MethodPost:
		return h.ingest(ctx, req.Body)
	case path == PathHookStats && method == http.MethodGet:
		return h.stats()
	default:
		return errorResponse(http.StatusNotFound, MsgNotFound)
	}
}

// Wait blocks until every dispatched OnAccepted call has returned. Dispatches
// started while Wait runs are held back until it returns.
func (h *Handler) Wait() {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	h.inflight.Wait()
}

// Close waits like Wait and then switches to synchronous dispatch: OnAccepted
// for later acceptances runs before the response is returned. Closing twice
// is a no-op.
func (h *Handler) Close() {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	h.closed = true
	h.inflight.Wait()
}

func (h *Handler) health() Response {
	return Response{
		StatusCode: http.StatusOK,
		Payload: HealthPayload{
			Status:    StatusOK,
			StartedAt: model.FormatTimestamp(h.startedAt),
			UptimeMs:  h.clock().Sub(h.startedAt).Milliseconds(),
		},
	}
}

func (h *Handler) stats() Response {
	return Response{
		StatusCode: http.StatusOK,
		Payload:    StatsPayload{Status: StatusOK, Stats: h.store.Counters()},
	}
}

func (h *Handler) ingest(ctx context.Context, body any) Response {
	metrics.RecordEventReceived(sourceOf(body))

	ev, err := h.validate(body)
	if err != nil {
		metrics.RecordEventRejected("validation")
		h.log.Debug(ctx, "event rejected", logger.Error(err))
		return Response{
			StatusCode: http.StatusBadRequest,
			Payload:    ErrorPayload{Status: StatusError, Errors: validationMessages(err)},
		}
	}

	id := h.eventID(ev)
	source := string(ev.Source)

	h.mu.Lock()
	if h.store.Has(ctx, id) {
		h.store.RecordDuplicate(ctx, id)
		h.mu.Unlock()
		metrics.RecordEventDeduped(source)
		return Response{
			StatusCode: http.StatusAccepted,
			Payload:    AckPayload{Status: StatusAccepted, Accepted: false, Deduped: true},
		}
	}
	if err := h.store.Put(ctx, ev); err != nil {
		h.mu.Unlock()
		metrics.RecordStoreError()
		h.log.Error(ctx, "failed to store event", logger.String("eventId", id), logger.Error(err))
		return errorResponse(http.StatusInternalServerError, MsgStoreFailed)
	}
	h.mu.Unlock()

	metrics.RecordEventAccepted(source)
	resp := Response{
		StatusCode: http.StatusAccepted,
		Payload:    AckPayload{Status: StatusAccepted, Accepted: true, Deduped: false},
	}
	h.dispatch(ctx, ev)
	return resp
}

// dispatch hands ev to OnAccepted on its own goroutine, or inline once the
// handler is closed. The request context's cancellation does not reach the
// callback.
func (h *Handler) dispatch(ctx context.Context, ev model.EventEnvelope) {
	if h.onAccepted == nil {
		return
	}
	dctx := context.WithoutCancel(ctx)

	h.dispatchMu.RLock()
	defer h.dispatchMu.RUnlock()
	if h.closed {
		h.callback(dctx, ev)
		return
	}

	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		h.callback(dctx, ev)
	}()
}

func (h *Handler) callback(ctx context.Context, ev model.EventEnvelope) { //nolint:gocritic // hugeParam: envelopes travel by value
	defer func() {
		if r := recover(); r != nil {
			h.log.Error(ctx, "accepted-event callback panicked",
				logger.String("eventId", ev.EventID), logger.Any("panic", r))
		}
	}()
	if err := h.onAccepted(ctx, ev); err != nil {
		h.log.Warn(ctx, "accepted-event callback failed",
			logger.String("eventId", ev.EventID), logger.Error(err))
	}
}

func errorResponse(status int, msg string) Response {
	return Response{StatusCode: status, Payload: ErrorPayload{Status: StatusError, Message: msg}}
}

func validationMessages(err error) []string {
	var verrs model.ValidationErrors
	if errors.As(err, &verrs) {
		return []string(verrs)
	}
	return []string{err.Error()}
}

// routePath strips query, fragment and a trailing slash.
func routePath(raw string) string {
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		path = raw[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}

// sourceOf reads the producer label before validation, for metrics only.
func sourceOf(body any) string {
	switch b := body.(type) {
	case map[string]any:
		s, _ := b["source"].(string)
		return s
	case model.EventEnvelope:
		return string(b.Source)
	case *model.EventEnvelope:
		if b != nil {
			return string(b.Source)
		}
	}
	return ""
}
