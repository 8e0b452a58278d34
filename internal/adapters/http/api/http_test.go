package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/hookline/internal/adapters/http/api"
	service "github.com/okian/hookline/internal/app"
	"github.com/okian/hookline/internal/domain/ingest"
	. "github.com/smartystreets/goconvey/convey"
)

const hookBody = `{"schemaVersion":"1.0","source":"hook","eventId":"evt_001","sessionId":"sess_abc",` +
	`"eventType":"user_prompt","privacyTier":1,"payload":{"prompt_text":"hi"}}`

const otlpBody = `{"resourceLogs":[{"scopeLogs":[{"logRecords":[` +
	`{"timeUnixNano":"1768471200000000000","attributes":[` +
	`{"key":"session.id","value":{"stringValue":"sess_otel"}},` +
	`{"key":"event.name","value":{"stringValue":"api_request"}}]},` +
	`{"timeUnixNano":"1768471200000000000","attributes":[` +
	`{"key":"event.name","value":{"stringValue":"api_request"}}]}` +
	`]}]}]}`

func newMux(opts ...api.Option) (*http.ServeMux, *service.Service) {
	svc := service.New(service.WithQueueSize(100))
	server := api.NewServer(svc, opts...)
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	server.RegisterOTLP(context.Background(), mux)
	return mux, svc
}

func serve(mux *http.ServeMux, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux, svc := newMux()
		defer svc.Stop()

		Convey("When the same hook event is posted twice", func() {
			first := serve(mux, http.MethodPost, "/v1/hooks", "application/json", hookBody)
			second := serve(mux, http.MethodPost, "/v1/hooks", "application/json", hookBody)

			Convey("Then the first should be accepted and the second deduped", func() {
				So(first.Code, ShouldEqual, http.StatusAccepted)
				So(first.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
				var ack ingest.AckPayload
				decode(first, &ack)
				So(ack, ShouldResemble, ingest.AckPayload{Status: "accepted", Accepted: true})

				decode(second, &ack)
				So(ack, ShouldResemble, ingest.AckPayload{Status: "accepted", Deduped: true})
			})

			Convey("And the stats routes should report the counters", func() {
				hookStats := serve(mux, http.MethodGet, "/v1/hooks/stats", "", "")
				So(hookStats.Code, ShouldEqual, http.StatusOK)
				var payload ingest.StatsPayload
				decode(hookStats, &payload)
				So(payload.Stats.StoredEvents, ShouldEqual, 1)
				So(payload.Stats.DedupedEvents, ShouldEqual, 1)

				stats := serve(mux, http.MethodGet, "/stats", "", "")
				So(stats.Code, ShouldEqual, http.StatusOK)
				var s service.Stats
				decode(stats, &s)
				So(s.StoredEvents, ShouldEqual, 1)
				So(s.QueueCapacity, ShouldEqual, 100)
			})
		})

		Convey("When health is requested", func() {
			w := serve(mux, http.MethodGet, "/health", "", "")

			Convey("Then it should be ok", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var health ingest.HealthPayload
				decode(w, &health)
				So(health.Status, ShouldEqual, "ok")
				So(health.StartedAt, ShouldNotBeEmpty)
			})
		})

		Convey("When the body is not JSON", func() {
			w := serve(mux, http.MethodPost, "/v1/hooks", "application/json", `{"eventId":`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "invalid JSON body")
		})

		Convey("When the verb is not GET or POST", func() {
			w := serve(mux, http.MethodDelete, "/v1/hooks", "", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("When an unknown path is requested", func() {
			w := serve(mux, http.MethodGet, "/unknown", "", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
			var payload ingest.ErrorPayload
			decode(w, &payload)
			So(payload, ShouldResemble, ingest.ErrorPayload{Status: "error", Message: "not found"})
		})

		Convey("When /stats is posted to", func() {
			w := serve(mux, http.MethodPost, "/stats", "", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(w.Header().Get("Allow"), ShouldEqual, http.MethodGet)
		})

		Convey("When metrics are scraped", func() {
			serve(mux, http.MethodGet, "/health", "", "")
			w := serve(mux, http.MethodGet, "/metrics", "", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})
	})

	Convey("Given a server with a small body limit", t, func() {
		mux, svc := newMux(api.WithMaxBodyBytes(64))
		defer svc.Stop()

		Convey("When the body exceeds the limit", func() {
			hooks := serve(mux, http.MethodPost, "/v1/hooks", "application/json", hookBody)
			logs := serve(mux, http.MethodPost, "/v1/logs", "application/json", otlpBody)

			Convey("Then both listeners should answer 413", func() {
				So(hooks.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
				So(logs.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
				So(hooks.Body.String(), ShouldContainSubstring, "request body too large")
				So(svc.Stats().StoredEvents, ShouldEqual, 0)
			})
		})
	})
}

func TestServer_RegisterOTLP(t *testing.T) {
	Convey("Given a registered OTLP receiver", t, func() {
		fixed := time.Date(2026, 1, 15, 10, 0, 5, 0, time.UTC)
		mux, svc := newMux(api.WithPrivacyTier(2), api.WithClock(func() time.Time { return fixed }))
		defer svc.Stop()

		Convey("When an export with one bad record is posted", func() {
			w := serve(mux, http.MethodPost, "/v1/logs", "application/json", otlpBody)

			Convey("Then the good record should be ingested and the export reported partial", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var resp api.OTLPResponse
				decode(w, &resp)
				So(resp.Status, ShouldEqual, api.OTLPStatusPartial)
				So(resp.Events, ShouldEqual, 1)
				So(resp.Accepted, ShouldEqual, 1)
				So(resp.DroppedRecords, ShouldEqual, 1)
				So(len(resp.Errors), ShouldEqual, 1)
				So(svc.Stats().StoredEvents, ShouldEqual, 1)
			})

			Convey("And a replay of the same export should be deduped", func() {
				again := serve(mux, http.MethodPost, "/v1/logs", "application/json", otlpBody)
				var resp api.OTLPResponse
				decode(again, &resp)
				So(resp.Accepted, ShouldEqual, 0)
				So(resp.Deduped, ShouldEqual, 1)
			})
		})

		Convey("When the export has no resource logs", func() {
			w := serve(mux, http.MethodPost, "/v1/logs", "application/json", `{"resourceLogs":[]}`)

			Convey("Then it should be rejected", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				var payload ingest.ErrorPayload
				decode(w, &payload)
				So(payload.Errors, ShouldResemble, []string{"payload does not contain OTEL log records"})
			})
		})

		Convey("When the content type is unsupported", func() {
			w := serve(mux, http.MethodPost, "/v1/logs", "text/csv", "a,b")
			So(w.Code, ShouldEqual, http.StatusUnsupportedMediaType)
		})

		Convey("When the JSON is broken", func() {
			w := serve(mux, http.MethodPost, "/v1/logs", "application/json", `{"resourceLogs":`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the method is not POST", func() {
			w := serve(mux, http.MethodGet, "/v1/logs", "", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(w.Header().Get("Allow"), ShouldEqual, http.MethodPost)
		})
	})
}
