package otlplogs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Content types accepted on the OTLP/HTTP logs route.
const (
	ContentTypeJSON     = "application/json"
	ContentTypeProtobuf = "application/x-protobuf"
)

// DecodeExport turns an OTLP/HTTP request body into the generic shape
// Normalize reads. JSON bodies are decoded as-is so malformed records reach
// the normalizer and are reported per record; protobuf bodies are unmarshaled
// and re-rendered with the proto3 JSON mapping.
func DecodeExport(contentType string, body []byte) (any, error) {
	mediaType := ContentTypeJSON
	if strings.TrimSpace(contentType) != "" {
		mt, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType)
		}
		mediaType = mt
	}

	switch mediaType {
	case ContentTypeJSON:
		return decodeJSON(body)
	case ContentTypeProtobuf:
		var req collogspb.ExportLogsServiceRequest
		if err := proto.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("%w: protobuf: %w", ErrDecode, err)
		}
		rendered, err := protojson.Marshal(&req)
		if err != nil {
			return nil, fmt.Errorf("%w: render protobuf: %w", ErrDecode, err)
		}
		return decodeJSON(rendered)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedContent, mediaType)
	}
}

func decodeJSON(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	var out any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: json: %w", ErrDecode, err)
	}
	return out, nil
}
