package otlplogs

import "errors"

// Sentinel kinds for OTEL export handling.
var (
	ErrNoLogRecords       = errors.New("payload does not contain OTEL log records")
	ErrUnsupportedContent = errors.New("unsupported OTLP content type")
	ErrDecode             = errors.New("decode OTLP export")
)
