// Package otlplogs normalizes OTLP log exports into event envelopes.
package otlplogs

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/okian/hookline/internal/domain/model"
	"github.com/okian/hookline/internal/version"
	"github.com/okian/hookline/pkg/metrics"
)

// Input is one OTLP log export to normalize.
type Input struct {
	PrivacyTier model.PrivacyTier
	// IngestedAt stamps every event; zero means Now().
	IngestedAt time.Time
	// Payload is the decoded export: resourceLogs[].scopeLogs[].logRecords[].
	Payload any
	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// Result is the outcome of one normalization. Events holds whatever could be
// normalized even when OK is false.
type Result struct {
	OK             bool
	Events         []model.EventEnvelope
	DroppedRecords int
	Errors         []string
}

// Attribute keys read from each record.
var (
	sessionIDKeys = []string{"session_id", "session.id"}
	eventTypeKeys = []string{"event_type", "event.name"}
	eventIDKeys   = []string{"event_id", "event.id"}
)

const promptIDKey = "prompt_id"

// Normalize converts an OTLP log export into envelopes. Records without a
// usable session id and event type, or that are not objects, are dropped
// and reported. A payload with no resource log groups is fatal.
func Normalize(in Input) Result {
	root, _ := in.Payload.(map[string]any)
	resourceLogs, _ := root["resourceLogs"].([]any)
	if len(resourceLogs) == 0 {
		return Result{OK: false, Events: []model.EventEnvelope{}, Errors: []string{ErrNoLogRecords.Error()}}
	}

	now := in.Now
	if now == nil {
		now = time.Now
	}
	ingestedAt := in.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = now()
	}

	n := &normalizer{
		tier:       in.PrivacyTier,
		ingestedAt: model.FormatTimestamp(ingestedAt),
		events:     []model.EventEnvelope{},
		wellFormed: true,
	}

	for ri, rawResource := range resourceLogs {
		resource, ok := rawResource.(map[string]any)
		if !ok {
			n.malformed("resourceLogs[%d]: must be an object", ri)
			continue
		}
		scopeLogs, ok := optionalArray(resource, "scopeLogs")
		if !ok {
			n.malformed("resourceLogs[%d].scopeLogs: must be an array", ri)
			continue
		}
		for si, rawScope := range scopeLogs {
			scope, ok := rawScope.(map[string]any)
			if !ok {
				n.malformed("resourceLogs[%d].scopeLogs[%d]: must be an object", ri, si)
				continue
			}
			records, ok := optionalArray(scope, "logRecords")
			if !ok {
				n.malformed("resourceLogs[%d].scopeLogs[%d].logRecords: must be an array", ri, si)
				continue
			}
			for li, rawRecord := range records {
				n.record(ri, si, li, rawRecord)
			}
		}
	}

	metrics.RecordOTELRecordsDropped(n.dropped)
	metrics.RecordNormalizedEvents(string(model.SourceOTEL), len(n.events))

	return Result{
		OK:             n.dropped == 0 && n.wellFormed,
		Events:         n.events,
		DroppedRecords: n.dropped,
		Errors:         n.errs,
	}
}

type normalizer struct {
	tier       model.PrivacyTier
	ingestedAt string
	events     []model.EventEnvelope
	dropped    int
	errs       []string
	wellFormed bool
}

func (n *normalizer) malformed(format string, args ...any) {
	n.wellFormed = false
	n.errs = append(n.errs, fmt.Sprintf(format, args...))
}

func (n *normalizer) drop(ri, si, li int, reason string) {
	n.dropped++
	n.errs = append(n.errs, fmt.Sprintf("resourceLogs[%d].scopeLogs[%d].logRecords[%d]: %s", ri, si, li, reason))
}

func (n *normalizer) record(ri, si, li int, raw any) {
	rec, ok := raw.(map[string]any)
	if !ok {
		n.drop(ri, si, li, "record is not an object")
		return
	}

	attrs := flattenAttributes(rec["attributes"])

	// Body fields are defaults; explicit attributes override them.
	payload := model.Payload{}
	if body, ok := bodyString(rec["body"]); ok {
		var fields map[string]any
		if err := json.Unmarshal([]byte(body), &fields); err == nil && fields != nil {
			for k, v := range fields {
				payload[k] = v
			}
		} else if strings.TrimSpace(body) != "" {
			payload[model.PayloadBody] = body
		}
	}
	for k, v := range attrs {
		payload[k] = v
	}
	if sev, ok := rec["severityText"].(string); ok && sev != "" {
		payload[model.PayloadSeverityText] = sev
	}

	sessionID := firstString(payload, sessionIDKeys...)
	eventType := firstString(payload, eventTypeKeys...)
	switch {
	case sessionID == "" && eventType == "":
		n.drop(ri, si, li, "missing session id and event type")
		return
	case sessionID == "":
		n.drop(ri, si, li, "missing session id")
		return
	case eventType == "":
		n.drop(ri, si, li, "missing event type")
		return
	}

	eventTimestamp := n.ingestedAt
	timeNano := unixNanoString(rec["timeUnixNano"])
	if ts, ok := unixNanoTime(timeNano); ok {
		eventTimestamp = model.FormatTimestamp(ts)
	}

	eventID := firstString(payload, eventIDKeys...)
	if eventID == "" {
		eventID = model.DefaultEventID(string(model.SourceOTEL), sessionID, eventType, timeNano,
			strconv.Itoa(ri), strconv.Itoa(si), strconv.Itoa(li))
	}

	n.events = append(n.events, model.EventEnvelope{
		SchemaVersion:  model.SchemaVersion,
		Source:         model.SourceOTEL,
		SourceVersion:  version.Collector(),
		EventID:        eventID,
		SessionID:      sessionID,
		PromptID:       firstString(payload, promptIDKey),
		EventType:      eventType,
		EventTimestamp: eventTimestamp,
		IngestedAt:     n.ingestedAt,
		PrivacyTier:    n.tier,
		Payload:        payload,
		Attributes: model.Attributes{
			model.AttrOTELResourceIndex: strconv.Itoa(ri),
			model.AttrOTELScopeIndex:    strconv.Itoa(si),
			model.AttrOTELRecordIndex:   strconv.Itoa(li),
		},
	})
}

// optionalArray treats an absent key as empty; proto3 JSON omits empty
// repeated fields.
func optionalArray(obj map[string]any, key string) ([]any, bool) {
	raw, present := obj[key]
	if !present || raw == nil {
		return nil, true
	}
	items, ok := raw.([]any)
	return items, ok
}

// flattenAttributes reads [{key, value:{stringValue}}]. Only the string
// variant of the value union is kept.
func flattenAttributes(raw any) map[string]string {
	out := map[string]string{}
	items, _ := raw.([]any)
	for _, item := range items {
		kv, ok := item.(map[string]any)
		if !ok {
			continue
		}
		key, _ := kv["key"].(string)
		if key == "" {
			continue
		}
		value, _ := kv["value"].(map[string]any)
		if s, ok := value["stringValue"].(string); ok {
			out[key] = s
		}
	}
	return out
}

func bodyString(raw any) (string, bool) {
	body, ok := raw.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := body["stringValue"].(string)
	return s, ok
}

func firstString(p model.Payload, keys ...string) string {
	for _, k := range keys {
		if s, ok := p.String(k); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// unixNanoString accepts the protojson string form and plain JSON numbers.
func unixNanoString(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v <= 0 || v > math.MaxInt64 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', 0, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func unixNanoTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	nanos, err := strconv.ParseInt(s, 10, 64)
	if err != nil || nanos <= 0 {
		return time.Time{}, false
	}
	return time.Unix(0, nanos).UTC(), true
}
