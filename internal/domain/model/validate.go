package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ValidationErrors lists every violation found in one input. Each entry reads
// "<fieldPath>: <problem>".
type ValidationErrors []string

func (v ValidationErrors) Error() string {
	return "validation failed: " + strings.Join(v, "; ")
}

// ValidateEventEnvelope checks arbitrary input against the envelope contract.
// Input may be decoded JSON (map[string]any) or an EventEnvelope. On failure
// the error is a ValidationErrors holding all violations.
func ValidateEventEnvelope(input any) (EventEnvelope, error) {
	obj, ok := asObject(input)
	if !ok {
		return EventEnvelope{}, ValidationErrors{"envelope: must be an object"}
	}

	c := &checker{}
	env := EventEnvelope{
		SchemaVersion:  c.optionalString(obj, "schemaVersion", "schemaVersion"),
		SourceVersion:  c.optionalString(obj, "sourceVersion", "sourceVersion"),
		EventID:        c.requiredString(obj, "eventId", "eventId"),
		SessionID:      c.requiredString(obj, "sessionId", "sessionId"),
		PromptID:       c.optionalString(obj, "promptId", "promptId"),
		EventType:      c.requiredString(obj, "eventType", "eventType"),
		EventTimestamp: c.optionalTimestamp(obj, "eventTimestamp", "eventTimestamp"),
		IngestedAt:     c.optionalTimestamp(obj, "ingestedAt", "ingestedAt"),
	}

	if raw, present := obj["source"]; !present || raw == nil {
		c.add("source", "is required")
	} else if s, isString := raw.(string); !isString {
		c.add("source", "must be a string")
	} else if src := Source(strings.TrimSpace(s)); !src.Valid() {
		c.addf("source", "must be one of hook, otel, transcript (got %q)", s)
	} else {
		env.Source = src
	}

	if tier, ok := c.integer(obj, "privacyTier", "privacyTier", true); ok {
		if !PrivacyTier(tier).Valid() {
			c.addf("privacyTier", "must be 0, 1 or 2 (got %d)", tier)
		} else {
			env.PrivacyTier = PrivacyTier(tier)
		}
	}

	switch raw := obj["payload"].(type) {
	case nil:
		env.Payload = Payload{}
	case map[string]any:
		env.Payload = Payload(raw)
	default:
		c.add("payload", "must be an object")
	}

	switch raw := obj["attributes"].(type) {
	case nil:
	case map[string]any:
		attrs := make(Attributes, len(raw))
		for k, v := range raw {
			s, isString := v.(string)
			if !isString {
				c.add("attributes."+k, "must be a string")
				continue
			}
			attrs[k] = s
		}
		env.Attributes = attrs
	default:
		c.add("attributes", "must be an object")
	}

	if len(c.errs) > 0 {
		return EventEnvelope{}, c.errs
	}
	return env, nil
}

// ValidateSessionTrace checks arbitrary input against the session trace
// contract, accumulating every violation.
func ValidateSessionTrace(input any) (SessionTrace, error) {
	obj, ok := asObject(input)
	if !ok {
		return SessionTrace{}, ValidationErrors{"trace: must be an object"}
	}

	c := &checker{}
	trace := SessionTrace{
		SessionID: c.requiredString(obj, "sessionId", "sessionId"),
	}

	switch raw := obj["git"].(type) {
	case nil:
	case map[string]any:
		trace.Git = c.git(raw)
	default:
		c.add("git", "must be an object")
	}

	if raw, isObj := obj["metrics"].(map[string]any); isObj {
		trace.Metrics = c.metrics(raw)
	} else if obj["metrics"] == nil {
		c.add("metrics", "is required")
	} else {
		c.add("metrics", "must be an object")
	}

	items, present, isArr := arrayField(obj, "timeline")
	switch {
	case !present:
		c.add("timeline", "is required")
	case !isArr:
		c.add("timeline", "must be an array")
	default:
		trace.Timeline = make([]TimelineEvent, 0, len(items))
		for i, item := range items {
			path := fmt.Sprintf("timeline[%d]", i)
			ev, isObj := item.(map[string]any)
			if !isObj {
				c.add(path, "must be an object")
				continue
			}
			trace.Timeline = append(trace.Timeline, TimelineEvent{
				ID:        c.requiredString(ev, "id", path+".id"),
				Type:      c.requiredString(ev, "type", path+".type"),
				Timestamp: c.requiredTimestamp(ev, "timestamp", path+".timestamp"),
			})
		}
	}

	if len(c.errs) > 0 {
		return SessionTrace{}, c.errs
	}
	return trace, nil
}

func (c *checker) git(obj map[string]any) GitMetadata {
	g := GitMetadata{
		Repo:   c.optionalString(obj, "repo", "git.repo"),
		Branch: c.optionalString(obj, "branch", "git.branch"),
	}
	items, present, isArr := arrayField(obj, "pullRequests")
	if !present {
		return g
	}
	if !isArr {
		c.add("git.pullRequests", "must be an array")
		return g
	}
	g.PullRequests = make([]PullRequest, 0, len(items))
	for i, item := range items {
		path := fmt.Sprintf("git.pullRequests[%d]", i)
		pr, isObj := item.(map[string]any)
		if !isObj {
			c.add(path, "must be an object")
			continue
		}
		p := PullRequest{
			Repo:  c.requiredString(pr, "repo", path+".repo"),
			State: c.requiredString(pr, "state", path+".state"),
		}
		if n, ok := c.integer(pr, "prNumber", path+".prNumber", true); ok {
			if n <= 0 {
				c.addf(path+".prNumber", "must be a positive integer (got %d)", n)
			}
			p.PRNumber = n
		}
		g.PullRequests = append(g.PullRequests, p)
	}
	return g
}

func (c *checker) metrics(obj map[string]any) SessionMetrics {
	var m SessionMetrics
	if n, ok := c.integer(obj, "promptCount", "metrics.promptCount", true); ok {
		if n < 0 {
			c.addf("metrics.promptCount", "must be >= 0 (got %d)", n)
		}
		m.PromptCount = n
	}
	if n, ok := c.integer(obj, "toolCallCount", "metrics.toolCallCount", true); ok {
		if n < 0 {
			c.addf("metrics.toolCallCount", "must be >= 0 (got %d)", n)
		}
		m.ToolCallCount = n
	}
	if f, ok := c.number(obj, "totalCostUsd", "metrics.totalCostUsd", true); ok {
		if f < 0 {
			c.addf("metrics.totalCostUsd", "must be >= 0 (got %v)", f)
		}
		m.TotalCostUSD = f
	}

	items, present, isArr := arrayField(obj, "filesTouched")
	switch {
	case !present:
		c.add("metrics.filesTouched", "is required")
	case !isArr:
		c.add("metrics.filesTouched", "must be an array")
	default:
		m.FilesTouched = make([]string, 0, len(items))
		for i, item := range items {
			path := fmt.Sprintf("metrics.filesTouched[%d]", i)
			s, isString := item.(string)
			if !isString {
				c.add(path, "must be a string")
				continue
			}
			if strings.TrimSpace(s) == "" {
				c.add(path, "must not be empty")
				continue
			}
			m.FilesTouched = append(m.FilesTouched, s)
		}
	}
	return m
}

// checker accumulates violations while extracting typed fields.
type checker struct {
	errs ValidationErrors
}

func (c *checker) add(path, problem string) {
	c.errs = append(c.errs, path+": "+problem)
}

func (c *checker) addf(path, format string, args ...any) {
	c.add(path, fmt.Sprintf(format, args...))
}

func (c *checker) requiredString(obj map[string]any, key, path string) string {
	raw, present := obj[key]
	if !present || raw == nil {
		c.add(path, "is required")
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		c.add(path, "must be a string")
		return ""
	}
	if strings.TrimSpace(s) == "" {
		c.add(path, "must not be empty")
		return ""
	}
	return s
}

func (c *checker) optionalString(obj map[string]any, key, path string) string {
	raw, present := obj[key]
	if !present || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		c.add(path, "must be a string")
		return ""
	}
	return s
}

func (c *checker) requiredTimestamp(obj map[string]any, key, path string) string {
	s := c.requiredString(obj, key, path)
	if s == "" {
		return ""
	}
	if _, err := ParseTimestamp(s); err != nil {
		c.addf(path, "must be an ISO-8601 timestamp (got %q)", s)
		return ""
	}
	return s
}

func (c *checker) optionalTimestamp(obj map[string]any, key, path string) string {
	raw, present := obj[key]
	if !present || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		c.add(path, "must be a string")
		return ""
	}
	if _, err := ParseTimestamp(s); err != nil {
		c.addf(path, "must be an ISO-8601 timestamp (got %q)", s)
		return ""
	}
	return s
}

func (c *checker) number(obj map[string]any, key, path string, required bool) (float64, bool) {
	raw, present := obj[key]
	if !present || raw == nil {
		if required {
			c.add(path, "is required")
		}
		return 0, false
	}
	f, ok := toFloat(raw)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		c.add(path, "must be a number")
		return 0, false
	}
	return f, true
}

func (c *checker) integer(obj map[string]any, key, path string, required bool) (int64, bool) {
	f, ok := c.number(obj, key, path, required)
	if !ok {
		return 0, false
	}
	if f != math.Trunc(f) {
		c.addf(path, "must be an integer (got %v)", f)
		return 0, false
	}
	return int64(f), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func arrayField(obj map[string]any, key string) (items []any, present, isArray bool) {
	raw, present := obj[key]
	if !present || raw == nil {
		return nil, false, false
	}
	items, isArray = raw.([]any)
	return items, true, isArray
}

// asObject accepts decoded JSON objects and typed values. Typed values go
// through a JSON round trip so they are checked by the same rules.
func asObject(input any) (map[string]any, bool) {
	switch v := input.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return v, true
	case EventEnvelope, *EventEnvelope, SessionTrace, *SessionTrace:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, false
		}
		return obj, obj != nil
	default:
		return nil, false
	}
}
