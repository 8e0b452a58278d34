// Package model contains the canonical event envelope and session trace
// shapes passed between layers, plus their boundary validators.
package model

import (
	"strings"
	"time"
)

// SchemaVersion is the envelope format this collector emits.
const SchemaVersion = "1.0"

// Source identifies the producer an envelope came from.
type Source string

// Known producers.
const (
	SourceHook       Source = "hook"
	SourceOTEL       Source = "otel"
	SourceTranscript Source = "transcript"
)

// Valid reports whether s is one of the known producers.
func (s Source) Valid() bool {
	switch s {
	case SourceHook, SourceOTEL, SourceTranscript:
		return true
	default:
		return false
	}
}

// PrivacyTier controls downstream payload redaction. Only 0, 1 and 2 are valid.
type PrivacyTier int

// Privacy tiers.
const (
	PrivacyTierMinimal  PrivacyTier = 0
	PrivacyTierStandard PrivacyTier = 1
	PrivacyTierFull     PrivacyTier = 2
)

// Valid reports whether t is a known tier.
func (t PrivacyTier) Valid() bool {
	return t >= PrivacyTierMinimal && t <= PrivacyTierFull
}

// Event types emitted by the normalizers.
const (
	EventTypeUserPrompt   = "user_prompt"
	EventTypeToolResult   = "tool_result"
	EventTypeAPIResponse  = "api_response"
	EventTypeAPIToolUse   = "api_tool_use"
	EventTypeSessionStart = "session_start"
)

// Payload is the producer-specific detail bag. Values are JSON scalars,
// arrays or objects.
//
// Well-known keys:
//
//	prompt_text        user prompt text (transcript)
//	tool_name          tool invoked by the model (transcript, otel)
//	tool_use_id        id of the tool_use block (transcript)
//	file_path          file the tool targeted (transcript)
//	model              model that produced a response (transcript, otel)
//	input_tokens       prompt tokens (transcript, otel)
//	output_tokens      completion tokens (transcript, otel)
//	cache_read_tokens  cached prompt tokens (transcript)
//	severity_text      OTEL record severity (otel)
//	body               raw OTEL record body when it is not a JSON object (otel)
type Payload map[string]any

// Well-known payload keys.
const (
	PayloadPromptText      = "prompt_text"
	PayloadToolName        = "tool_name"
	PayloadToolUseID       = "tool_use_id"
	PayloadFilePath        = "file_path"
	PayloadModel           = "model"
	PayloadInputTokens     = "input_tokens"
	PayloadOutputTokens    = "output_tokens"
	PayloadCacheReadTokens = "cache_read_tokens"
	PayloadSeverityText    = "severity_text"
	PayloadBody            = "body"
)

// String returns the value at key when it is a string.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

// Attributes carries normalizer provenance metadata.
type Attributes map[string]string

// Well-known attribute keys.
const (
	AttrTranscriptLine    = "transcript_line"
	AttrOTELResourceIndex = "otel_resource_index"
	AttrOTELScopeIndex    = "otel_scope_index"
	AttrOTELRecordIndex   = "otel_record_index"
)

// EventEnvelope is the canonical unit every producer is normalized into.
// Envelopes are values; nothing mutates one after validation.
type EventEnvelope struct {
	SchemaVersion  string      `json:"schemaVersion"`
	Source         Source      `json:"source"`
	SourceVersion  string      `json:"sourceVersion"`
	EventID        string      `json:"eventId"`
	SessionID      string      `json:"sessionId"`
	PromptID       string      `json:"promptId,omitempty"`
	EventType      string      `json:"eventType"`
	EventTimestamp string      `json:"eventTimestamp,omitempty"`
	IngestedAt     string      `json:"ingestedAt,omitempty"`
	PrivacyTier    PrivacyTier `json:"privacyTier"`
	Payload        Payload     `json:"payload"`
	Attributes     Attributes  `json:"attributes,omitempty"`
}

// EventKey returns the dedup key.
func (e EventEnvelope) EventKey() string {
	return strings.TrimSpace(e.EventID)
}

// EventTime parses EventTimestamp.
func (e EventEnvelope) EventTime() (time.Time, error) {
	return ParseTimestamp(e.EventTimestamp)
}
