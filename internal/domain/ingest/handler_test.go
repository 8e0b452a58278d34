package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/hookline/internal/domain/dedupe"
	"github.com/okian/hookline/internal/domain/ingest"
	"github.com/okian/hookline/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func hookEvent(id string) map[string]any {
	return map[string]any{
		"schemaVersion": "1.0",
		"source":        "hook",
		"sourceVersion": "claude-hooks/1.2.0",
		"eventId":       id,
		"sessionId":     "sess_abc",
		"eventType":     "user_prompt",
		"privacyTier":   float64(1),
		"payload":       map[string]any{"prompt_text": "hi"},
	}
}

type failingStore struct {
	dedupe.Store
}

func (failingStore) Put(context.Context, model.EventEnvelope) error {
	return errors.New("disk full")
}

func TestHandlerIngest(t *testing.T) {
	ctx := context.Background()

	Convey("Given a handler with an in-memory store", t, func() {
		store := dedupe.NewInMemoryStore()
		var calls atomic.Int32
		h := ingest.NewHandler(ingest.Dependencies{
			Store: store,
			OnAccepted: func(context.Context, model.EventEnvelope) error {
				calls.Add(1)
				return nil
			},
		})
		post := ingest.Request{Method: http.MethodPost, URL: "/v1/hooks", Body: hookEvent("evt_001")}

		Convey("When the same event is submitted twice", func() {
			first := h.Handle(ctx, post)
			second := h.Handle(ctx, post)
			h.Wait()

			Convey("Then the first should be accepted and the second deduped", func() {
				So(first.StatusCode, ShouldEqual, http.StatusAccepted)
				So(first.Payload, ShouldResemble, ingest.AckPayload{Status: "accepted", Accepted: true, Deduped: false})
				So(second.StatusCode, ShouldEqual, http.StatusAccepted)
				So(second.Payload, ShouldResemble, ingest.AckPayload{Status: "accepted", Accepted: false, Deduped: true})
			})

			Convey("And the counters should show one stored and one deduped", func() {
				So(store.Counters(), ShouldResemble, dedupe.Counters{StoredEvents: 1, DedupedEvents: 1})
			})

			Convey("And the callback should run only for the first", func() {
				So(calls.Load(), ShouldEqual, 1)
			})

			Convey("And the stats route should report the counters", func() {
				resp := h.Handle(ctx, ingest.Request{Method: http.MethodGet, URL: "/v1/hooks/stats"})
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(resp.Payload, ShouldResemble, ingest.StatsPayload{
					Status: "ok",
					Stats:  dedupe.Counters{StoredEvents: 1, DedupedEvents: 1},
				})
			})
		})

		Convey("When the body fails validation", func() {
			body := hookEvent(" ")
			body["sessionId"] = ""
			resp := h.Handle(ctx, ingest.Request{Method: http.MethodPost, URL: "/v1/hooks", Body: body})
			h.Wait()

			Convey("Then every violation should be returned with a 400", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				payload := resp.Payload.(ingest.ErrorPayload)
				So(payload.Status, ShouldEqual, "error")
				So(len(payload.Errors), ShouldEqual, 2)
				So(store.Counters().StoredEvents, ShouldEqual, 0)
				So(calls.Load(), ShouldEqual, 0)
			})
		})

		Convey("When a typed envelope is submitted", func() {
			resp := h.Handle(ctx, ingest.Request{Method: http.MethodPost, URL: "/v1/hooks", Body: model.EventEnvelope{
				Source:      model.SourceOTEL,
				EventID:     "evt_typed",
				SessionID:   "s",
				EventType:   "api_request",
				PrivacyTier: model.PrivacyTierMinimal,
			}})
			h.Wait()

			Convey("Then it should be accepted", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
				So(store.Has(ctx, "evt_typed"), ShouldBeTrue)
			})
		})

		Convey("When many goroutines race on one event id", func() {
			var wg sync.WaitGroup
			var accepted atomic.Int32
			for i := 0; i < 32; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if h.Handle(ctx, post).Payload.(ingest.AckPayload).Accepted {
						accepted.Add(1)
					}
				}()
			}
			wg.Wait()
			h.Wait()

			Convey("Then exactly one should be accepted", func() {
				So(accepted.Load(), ShouldEqual, 1)
				So(store.Counters(), ShouldResemble, dedupe.Counters{StoredEvents: 1, DedupedEvents: 31})
				So(calls.Load(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given a callback that fails or panics", t, func() {
		for _, cb := range []func(context.Context, model.EventEnvelope) error{
			func(context.Context, model.EventEnvelope) error { return errors.New("downstream offline") },
			func(context.Context, model.EventEnvelope) error { panic("boom") },
		} {
			h := ingest.NewHandler(ingest.Dependencies{OnAccepted: cb})
			resp := h.Handle(ctx, ingest.Request{Method: http.MethodPost, URL: "/v1/hooks", Body: hookEvent("evt_001")})
			So(func() { h.Wait() }, ShouldNotPanic)

			So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
			So(resp.Payload.(ingest.AckPayload).Accepted, ShouldBeTrue)
		}
	})

	Convey("Given a cancelled request context", t, func() {
		cctx, cancel := context.WithCancel(ctx)
		var sawErr atomic.Value
		h := ingest.NewHandler(ingest.Dependencies{
			OnAccepted: func(c context.Context, _ model.EventEnvelope) error {
				sawErr.Store(c.Err() == nil)
				return nil
			},
		})
		cancel()
		h.Handle(cctx, ingest.Request{Method: http.MethodPost, URL: "/v1/hooks", Body: hookEvent("evt_001")})
		h.Wait()

		Convey("Then the callback context should not be cancelled", func() {
			So(sawErr.Load(), ShouldEqual, true)
		})
	})

	Convey("Given a handler closed while requests are in flight", t, func() {
		var calls atomic.Int32
		h := ingest.NewHandler(ingest.Dependencies{
			OnAccepted: func(context.Context, model.EventEnvelope) error {
				calls.Add(1)
				return nil
			},
		})

		var wg sync.WaitGroup
		var accepted atomic.Int32
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				body := hookEvent(fmt.Sprintf("evt_%03d", i))
				if h.Handle(ctx, ingest.Request{Method: http.MethodPost, URL: "/v1/hooks", Body: body}).Payload.(ingest.AckPayload).Accepted {
					accepted.Add(1)
				}
			}(i)
			if i == 32 {
				So(func() { h.Close() }, ShouldNotPanic)
			}
		}
		wg.Wait()
		h.Wait()

		Convey("Then every accepted event should reach the callback exactly once", func() {
			So(accepted.Load(), ShouldEqual, 64)
			So(calls.Load(), ShouldEqual, 64)
		})

		Convey("And later acceptances should run the callback before returning", func() {
			before := calls.Load()
			resp := h.Handle(ctx, ingest.Request{Method: http.MethodPost, URL: "/v1/hooks", Body: hookEvent("evt_late")})
			So(resp.Payload.(ingest.AckPayload).Accepted, ShouldBeTrue)
			So(calls.Load(), ShouldEqual, before+1)
		})

		Convey("And closing again should be a no-op", func() {
			So(func() { h.Close() }, ShouldNotPanic)
		})
	})

	Convey("Given a store whose put fails", t, func() {
		h := ingest.NewHandler(ingest.Dependencies{Store: failingStore{Store: dedupe.NewInMemoryStore()}})
		resp := h.Handle(ctx, ingest.Request{Method: http.MethodPost, URL: "/v1/hooks", Body: hookEvent("evt_001")})

		So(resp.StatusCode, ShouldEqual, http.StatusInternalServerError)
		So(resp.Payload, ShouldResemble, ingest.ErrorPayload{Status: "error", Message: "failed to store event"})
	})
}

func TestHandlerRouting(t *testing.T) {
	ctx := context.Background()

	Convey("Given a handler with a fixed clock", t, func() {
		started := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
		h := ingest.NewHandler(ingest.Dependencies{
			StartedAt: started,
			Clock:     func() time.Time { return started.Add(1500 * time.Millisecond) },
		})

		Convey("When health is requested", func() {
			for _, u := range []string{"/health", "/health/", "/health?probe=1"} {
				resp := h.Handle(ctx, ingest.Request{Method: "GET", URL: u})

				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(resp.Payload, ShouldResemble, ingest.HealthPayload{
					Status:    "ok",
					StartedAt: "2026-01-15T10:00:00Z",
					UptimeMs:  1500,
				})
			}
		})

		Convey("When an unknown path is requested", func() {
			resp := h.Handle(ctx, ingest.Request{Method: "GET", URL: "/v2/nothing"})

			Convey("Then it should be 404 not found", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
				So(resp.Payload, ShouldResemble, ingest.ErrorPayload{Status: "error", Message: "not found"})
			})
		})

		Convey("When a known path is used with the wrong verb", func() {
			resp := h.Handle(ctx, ingest.Request{Method: "GET", URL: "/v1/hooks"})
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestHandleRaw(t *testing.T) {
	ctx := context.Background()

	Convey("Given the raw adapter", t, func() {
		h := ingest.NewHandler(ingest.Dependencies{})

		Convey("When the method is not GET or POST", func() {
			for _, m := range []string{"PUT", "DELETE", "PATCH"} {
				resp := h.HandleRaw(ctx, ingest.RawRequest{Method: m, URL: "/v1/hooks"})
				So(resp.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
				So(resp.Payload, ShouldResemble, ingest.ErrorPayload{Status: "error", Message: "method not allowed"})
			}
		})

		Convey("When the body is not JSON", func() {
			resp := h.HandleRaw(ctx, ingest.RawRequest{Method: "POST", URL: "/v1/hooks", RawBody: []byte(`{"eventId":`)})

			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			So(resp.Payload, ShouldResemble, ingest.ErrorPayload{Status: "error", Message: "invalid JSON body"})
		})

		Convey("When the body is valid JSON", func() {
			raw := []byte(`{"source":"hook","eventId":"evt_raw","sessionId":"s","eventType":"tool_result","privacyTier":0}`)
			resp := h.HandleRaw(ctx, ingest.RawRequest{Method: "post", URL: "/v1/hooks", RawBody: raw})
			So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
		})

		Convey("When the body is empty", func() {
			health := h.HandleRaw(ctx, ingest.RawRequest{Method: "GET", URL: "/health"})
			post := h.HandleRaw(ctx, ingest.RawRequest{Method: "POST", URL: "/v1/hooks"})

			Convey("Then routes without a body should work and ingest should fail validation", func() {
				So(health.StatusCode, ShouldEqual, http.StatusOK)
				So(post.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(post.Payload.(ingest.ErrorPayload).Errors, ShouldContain, "envelope: must be an object")
			})
		})
	})
}
