package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is the kind-specific body of a gateway event. Accessors read the
// fields the projection uses and tolerate absent or mistyped values.
type Payload map[string]any

// Clone deep-copies nested objects and lists. Scalars are immutable and
// shared.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	return Payload(cloneObject(p))
}

func cloneObject(object map[string]any) map[string]any {
	out := make(map[string]any, len(object))
	for key, value := range object {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneObject(typed)
	case Payload:
		return typed.Clone()
	case []any:
		out := make([]any, len(typed))
		for index, item := range typed {
			out[index] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string{}, typed...)
	default:
		return value
	}
}

const (
	DecisionAllow = "ALLOW"
	DecisionDeny  = "DENY"
)

// Decision reads "decision", falling back to the legacy "result" key. The
// first non-empty string wins and is upper-cased.
func (p Payload) Decision() string {
	return strings.ToUpper(p.firstString("decision", "result"))
}

// Status is the lower-cased "status" string, or "" when it is not a string.
func (p Payload) Status() string {
	return strings.ToLower(p.firstString("status"))
}

// IsErrorStatus reports whether the status mentions "error".
func (p Payload) IsErrorStatus() bool {
	return strings.Contains(p.Status(), "error")
}

// LatencyMS returns "latency_ms" when it is numeric. Booleans do not count.
func (p Payload) LatencyMS() (float64, bool) {
	switch typed := p["latency_ms"].(type) {
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	default:
		return 0, false
	}
}

func (p Payload) ModelID() (string, bool) {
	value, ok := p["model_id"].(string)
	return value, ok
}

func (p Payload) ProviderID() (string, bool) {
	value, ok := p["provider_id"].(string)
	return value, ok
}

// ReasonCodes returns the "reason_codes" list with every item rendered as a
// string. ok is false when the field is not a list.
func (p Payload) ReasonCodes() ([]string, bool) {
	items, ok := p["reason_codes"].([]any)
	if !ok {
		if typed, isStrings := p["reason_codes"].([]string); isStrings {
			return append([]string(nil), typed...), true
		}
		return nil, false
	}
	codes := make([]string, 0, len(items))
	for _, item := range items {
		switch typed := item.(type) {
		case string:
			codes = append(codes, typed)
		default:
			codes = append(codes, fmt.Sprint(typed))
		}
	}
	return codes, true
}

// PolicyID is the "policy_id" string, "" when absent.
func (p Payload) PolicyID() string {
	value, _ := p["policy_id"].(string)
	return value
}

// PolicyVersion is nil unless "policy_version" is a string.
func (p Payload) PolicyVersion() *string {
	value, ok := p["policy_version"].(string)
	if !ok {
		return nil
	}
	return &value
}

func (p Payload) firstString(keys ...string) string {
	for _, key := range keys {
		if value, ok := p[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}
