package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/okian/hookline/internal/domain/ingest"
)

// CollectorHandler hands HTTP requests to the collector's raw adapter.
type CollectorHandler struct {
	collector    Collector
	maxBodyBytes int64
}

// NewCollectorHandler creates a collector handler.
func NewCollectorHandler(c Collector, maxBodyBytes int64) *CollectorHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &CollectorHandler{collector: c, maxBodyBytes: maxBodyBytes}
}

// Handle serves /health, /v1/hooks and /v1/hooks/stats.
func (h *CollectorHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, h.maxBodyBytes)
	if err != nil {
		writeBodyError(w, err)
		return
	}

	resp := h.collector.HandleRaw(r.Context(), ingest.RawRequest{
		Method:  r.Method,
		URL:     r.URL.RequestURI(),
		RawBody: body,
	})
	writeJSON(w, resp.StatusCode, resp.Payload)
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: %w", ErrReadBody, err)
	}
	return body, nil
}

func writeBodyError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrBodyTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, ErrBodyTooLarge.Error())
		return
	}
	writeError(w, http.StatusBadRequest, ErrReadBody.Error())
}
