package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/okian/hookline/internal/domain/ingest"
	"github.com/okian/hookline/internal/domain/model"
	"github.com/okian/hookline/internal/domain/otlplogs"
	"github.com/okian/hookline/pkg/logger"
)

// PathOTLPLogs is the OTLP/HTTP logs route.
const PathOTLPLogs = "/v1/logs"

// OTLP export outcomes.
const (
	OTLPStatusOK      = "ok"
	OTLPStatusPartial = "partial"
)

// OTLPResponse answers POST /v1/logs.
type OTLPResponse struct {
	Status         string   `json:"status"`
	Events         int      `json:"events"`
	Accepted       int      `json:"accepted"`
	Deduped        int      `json:"deduped"`
	Rejected       int      `json:"rejected"`
	DroppedRecords int      `json:"droppedRecords"`
	Errors         []string `json:"errors,omitempty"`
}

// OTLPHandler receives OTLP log exports and submits the normalized events.
type OTLPHandler struct {
	collector    Collector
	maxBodyBytes int64
	privacyTier  model.PrivacyTier
	clock        func() time.Time
	logger       logger.Logger
}

func newOTLPHandler(c Collector, cfg *config) *OTLPHandler {
	return &OTLPHandler{
		collector:    c,
		maxBodyBytes: cfg.maxBodyBytes,
		privacyTier:  cfg.privacyTier,
		clock:        cfg.clock,
		logger:       cfg.logger.Named("otlp"),
	}
}

// HandleLogs handles POST /v1/logs.
func (h *OTLPHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, ingest.MsgMethodNotAllowed)
		return
	}

	body, err := readBody(w, r, h.maxBodyBytes)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	payload, err := otlplogs.DecodeExport(r.Header.Get("Content-Type"), body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, otlplogs.ErrUnsupportedContent) {
			status = http.StatusUnsupportedMediaType
		}
		writeError(w, status, err.Error())
		return
	}

	norm := otlplogs.Normalize(otlplogs.Input{
		PrivacyTier: h.privacyTier,
		IngestedAt:  h.clock().UTC(),
		Payload:     payload,
		Now:         h.clock,
	})
	if !norm.OK && len(norm.Events) == 0 {
		writeJSON(w, http.StatusBadRequest, ingest.ErrorPayload{Status: ingest.StatusError, Errors: norm.Errors})
		return
	}

	batch := h.collector.IngestBatch(r.Context(), norm.Events)
	resp := OTLPResponse{
		Status:         OTLPStatusOK,
		Events:         len(norm.Events),
		Accepted:       batch.Accepted,
		Deduped:        batch.Deduped,
		Rejected:       batch.Rejected,
		DroppedRecords: norm.DroppedRecords,
		Errors:         append(append([]string{}, norm.Errors...), batch.Errors...),
	}
	if !norm.OK || batch.Rejected > 0 {
		resp.Status = OTLPStatusPartial
		h.logger.Warn(r.Context(), "partial OTLP export",
			logger.Int("dropped", norm.DroppedRecords),
			logger.Int("rejected", batch.Rejected),
		)
	}
	if len(resp.Errors) == 0 {
		resp.Errors = nil
	}
	writeJSON(w, http.StatusOK, resp)
}
