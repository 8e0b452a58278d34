package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// HandleRaw adapts an undecoded request: methods other than GET and POST get
// 405, an unparseable body gets 400, and everything else goes to Handle.
// An empty body decodes to nil.
func (h *Handler) HandleRaw(ctx context.Context, req RawRequest) Response {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method != http.MethodGet && method != http.MethodPost {
		return errorResponse(http.StatusMethodNotAllowed, MsgMethodNotAllowed)
	}

	var body any
	if len(bytes.TrimSpace(req.RawBody)) > 0 {
		if err := json.Unmarshal(req.RawBody, &body); err != nil {
			return errorResponse(http.StatusBadRequest, MsgInvalidJSON)
		}
	}

	return h.Handle(ctx, Request{Method: method, URL: req.URL, Body: body})
}
