// Package transcript normalizes newline-delimited JSON session transcripts
// into event envelopes.
//
// Two line shapes are recognized. Hook-style lines carry a top-level "event"
// field and mirror what the local hook process posts. Claude-style records
// carry "type" (user or assistant) and a "message" object as written by the
// agent's own transcript log.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/okian/hookline/internal/domain/model"
	"github.com/okian/hookline/internal/version"
	"github.com/okian/hookline/pkg/metrics"
)

// MaxLineBytes bounds a single transcript line.
const MaxLineBytes = 16 << 20

// Input describes one transcript to normalize.
type Input struct {
	FilePath    string
	PrivacyTier model.PrivacyTier
	// IngestedAt stamps every event; zero means Now().
	IngestedAt time.Time
	// SessionIDFallback is used for lines that do not name their session.
	SessionIDFallback string
	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// Result is the outcome of one scan. ParsedEvents holds every line that could
// be normalized even when OK is false.
type Result struct {
	OK           bool
	ParsedEvents []model.EventEnvelope
	SkippedLines int
	Errors       []string
}

// Keys lifted out of hook-style lines into envelope fields.
var hookEnvelopeKeys = map[string]struct{}{
	"event":      {},
	"event_id":   {},
	"session_id": {},
	"prompt_id":  {},
	"timestamp":  {},
}

// Parse scans the transcript at in.FilePath. A missing file short-circuits
// with a single error and no partial results.
func Parse(in Input) Result {
	f, err := os.Open(in.FilePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return failed(ErrFileNotFound.Error())
		}
		return failed(fmt.Errorf("%w: %w", ErrRead, err).Error())
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f, in)
}

// ParseReader scans a transcript stream. Bad lines are skipped and reported;
// the scan only stops early when the stream itself fails.
func ParseReader(r io.Reader, in Input) Result {
	p := newParser(in)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)

	n := 0
	for sc.Scan() {
		n++
		p.parseLine(n, sc.Bytes())
	}
	scanErr := sc.Err()
	if scanErr != nil {
		p.errs = append(p.errs, fmt.Sprintf("line %d: %v", n+1, fmt.Errorf("%w: %w", ErrRead, scanErr)))
	}

	metrics.RecordTranscriptLinesSkipped(p.skipped)
	metrics.RecordNormalizedEvents(string(model.SourceTranscript), len(p.events))

	return Result{
		OK:           p.skipped == 0 && scanErr == nil,
		ParsedEvents: p.events,
		SkippedLines: p.skipped,
		Errors:       p.errs,
	}
}

func failed(msg string) Result {
	return Result{OK: false, ParsedEvents: []model.EventEnvelope{}, Errors: []string{msg}}
}

type parser struct {
	tier       model.PrivacyTier
	ingestedAt string
	fallback   string
	events     []model.EventEnvelope
	skipped    int
	errs       []string
}

func newParser(in Input) *parser {
	now := in.Now
	if now == nil {
		now = time.Now
	}
	ingestedAt := in.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = now()
	}
	return &parser{
		tier:       in.PrivacyTier,
		ingestedAt: model.FormatTimestamp(ingestedAt),
		fallback:   strings.TrimSpace(in.SessionIDFallback),
		events:     []model.EventEnvelope{},
	}
}

func (p *parser) skip(n int, reason string) {
	p.skipped++
	p.errs = append(p.errs, fmt.Sprintf("line %d: %s", n, reason))
}

func (p *parser) parseLine(n int, raw []byte) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		p.skip(n, "invalid JSON")
		return
	}
	rec, ok := v.(map[string]any)
	if !ok {
		p.skip(n, "record is not a JSON object")
		return
	}

	var (
		ev     model.EventEnvelope
		reason string
	)
	switch {
	case hasKey(rec, "event"):
		ev, reason = p.hookLine(n, rec)
	case isAgentRecord(rec):
		ev, reason = p.agentLine(n, rec)
	default:
		reason = "unrecognized record shape"
	}
	if reason != "" {
		p.skip(n, reason)
		return
	}
	p.events = append(p.events, ev)
}

func (p *parser) hookLine(n int, rec map[string]any) (model.EventEnvelope, string) {
	eventType := str(rec, "event")
	if eventType == "" {
		return model.EventEnvelope{}, "event must be a non-empty string"
	}
	sessionID := p.session(str(rec, "session_id"))
	if sessionID == "" {
		return model.EventEnvelope{}, "missing session id"
	}

	payload := model.Payload{}
	for k, v := range rec {
		if _, lifted := hookEnvelopeKeys[k]; !lifted {
			payload[k] = v
		}
	}

	ts := p.timestamp(rec)
	eventID := str(rec, "event_id")
	if eventID == "" {
		eventID = p.derivedID(n, sessionID, eventType, str(rec, "timestamp"))
	}
	return p.envelope(n, eventID, sessionID, str(rec, "prompt_id"), eventType, ts, payload), ""
}

func isAgentRecord(rec map[string]any) bool {
	if _, ok := rec["message"].(map[string]any); !ok {
		return false
	}
	switch str(rec, "type") {
	case "user", "assistant":
		return true
	default:
		return false
	}
}

func (p *parser) agentLine(n int, rec map[string]any) (model.EventEnvelope, string) {
	msg, _ := rec["message"].(map[string]any)

	sessionID := str(rec, "sessionId")
	if sessionID == "" {
		sessionID = str(rec, "session_id")
	}
	sessionID = p.session(sessionID)
	if sessionID == "" {
		return model.EventEnvelope{}, "missing session id"
	}

	recordID := str(rec, "uuid")
	ts := p.timestamp(rec)
	payload := model.Payload{}

	var eventType, promptID, eventID string
	if str(rec, "type") == "user" {
		eventType = model.EventTypeUserPrompt
		promptID = recordID
		eventID = recordID
		if text, ok := msg["content"].(string); ok {
			payload[model.PayloadPromptText] = text
		}
	} else {
		usage, _ := msg["usage"].(map[string]any)
		if block, ok := firstToolUse(msg["content"]); ok {
			eventType = model.EventTypeAPIToolUse
			setString(payload, model.PayloadToolName, block["name"])
			setString(payload, model.PayloadToolUseID, block["id"])
			if input, ok := block["input"].(map[string]any); ok {
				setString(payload, model.PayloadFilePath, input["file_path"])
			}
			copyUsage(payload, usage, false)
			if recordID != "" {
				eventID = recordID + ":tool_use"
			}
		} else {
			eventType = model.EventTypeAPIResponse
			setString(payload, model.PayloadModel, msg["model"])
			copyUsage(payload, usage, true)
			eventID = recordID
		}
	}

	if eventID == "" {
		eventID = p.derivedID(n, sessionID, eventType, str(rec, "timestamp"))
	}
	return p.envelope(n, eventID, sessionID, promptID, eventType, ts, payload), ""
}

func (p *parser) envelope(n int, eventID, sessionID, promptID, eventType, ts string, payload model.Payload) model.EventEnvelope {
	return model.EventEnvelope{
		SchemaVersion:  model.SchemaVersion,
		Source:         model.SourceTranscript,
		SourceVersion:  version.Collector(),
		EventID:        eventID,
		SessionID:      sessionID,
		PromptID:       promptID,
		EventType:      eventType,
		EventTimestamp: ts,
		IngestedAt:     p.ingestedAt,
		PrivacyTier:    p.tier,
		Payload:        payload,
		Attributes:     model.Attributes{model.AttrTranscriptLine: strconv.Itoa(n)},
	}
}

func (p *parser) session(id string) string {
	if id != "" {
		return id
	}
	return p.fallback
}

// timestamp normalizes the line's own timestamp, falling back to ingestion time.
func (p *parser) timestamp(rec map[string]any) string {
	if t, err := model.ParseTimestamp(str(rec, "timestamp")); err == nil {
		return model.FormatTimestamp(t)
	}
	return p.ingestedAt
}

// derivedID depends only on line content so replaying a file dedups.
func (p *parser) derivedID(n int, sessionID, eventType, rawTimestamp string) string {
	return model.DefaultEventID(string(model.SourceTranscript), sessionID, eventType, rawTimestamp, strconv.Itoa(n))
}

func firstToolUse(content any) (map[string]any, bool) {
	blocks, _ := content.([]any)
	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if ok && block["type"] == "tool_use" {
			return block, true
		}
	}
	return nil, false
}

func copyUsage(payload model.Payload, usage map[string]any, withCache bool) {
	setNumber(payload, model.PayloadInputTokens, usage["input_tokens"])
	setNumber(payload, model.PayloadOutputTokens, usage["output_tokens"])
	if withCache {
		setNumber(payload, model.PayloadCacheReadTokens, usage["cache_read_input_tokens"])
	}
}

func setString(payload model.Payload, key string, v any) {
	if s, ok := v.(string); ok && s != "" {
		payload[key] = s
	}
}

func setNumber(payload model.Payload, key string, v any) {
	if f, ok := v.(float64); ok {
		payload[key] = f
	}
}

func hasKey(rec map[string]any, key string) bool {
	_, ok := rec[key]
	return ok
}

func str(rec map[string]any, key string) string {
	s, _ := rec[key].(string)
	return strings.TrimSpace(s)
}
