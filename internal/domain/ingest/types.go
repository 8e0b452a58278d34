package ingest

import "github.com/okian/hookline/internal/domain/dedupe"

// Routes served by the handler.
const (
	PathHealth    = "/health"
	PathHooks     = "/v1/hooks"
	PathHookStats = "/v1/hooks/stats"
)

// Status values carried in every payload.
const (
	StatusOK       = "ok"
	StatusAccepted = "accepted"
	StatusError    = "error"
)

// Request is one logical request with an already-decoded body.
type Request struct {
	Method string
	URL    string
	Body   any
}

// RawRequest is one logical request whose body has not been decoded.
type RawRequest struct {
	Method  string
	URL     string
	RawBody []byte
}

// Response is the handler's answer. Payload is one of the *Payload types.
type Response struct {
	StatusCode int
	Payload    any
}

// HealthPayload answers GET /health.
type HealthPayload struct {
	Status    string `json:"status"`
	StartedAt string `json:"startedAt"`
	UptimeMs  int64  `json:"uptimeMs"`
}

// AckPayload answers POST /v1/hooks. Exactly one of Accepted and Deduped is
// true.
type AckPayload struct {
	Status   string `json:"status"`
	Accepted bool   `json:"accepted"`
	Deduped  bool   `json:"deduped"`
}

// StatsPayload answers GET /v1/hooks/stats.
type StatsPayload struct {
	Status string          `json:"status"`
	Stats  dedupe.Counters `json:"stats"`
}

// ErrorPayload carries either per-field validation errors or a message.
type ErrorPayload struct {
	Status  string   `json:"status"`
	Errors  []string `json:"errors,omitempty"`
	Message string   `json:"message,omitempty"`
}
