// Package event normalizes raw gateway events into the internal record the
// live path stores and projects.
package event

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type Kind string

const (
	KindIntent    Kind = "INTENT"
	KindDecision  Kind = "DECISION"
	KindExecution Kind = "EXECUTION"
	KindProof     Kind = "PROOF"
)

// MissingIndex marks an event whose index was absent or not an integer.
const MissingIndex int64 = -1

// ObservedEvent is the normalized form of one gateway event. Missing or
// mistyped string fields are empty, a missing index is MissingIndex and a
// missing or non-object payload is empty. Optional fields stay nil when absent
// or mistyped.
type ObservedEvent struct {
	Index           int64   `json:"index"`
	Kind            Kind    `json:"kind"`
	ThreadID        string  `json:"thread_id"`
	TurnID          string  `json:"turn_id"`
	ParentTurnID    *string `json:"parent_turn_id"`
	Actor           string  `json:"actor"`
	IntentType      string  `json:"intent_type"`
	Lane            string  `json:"lane"`
	StreamID        string  `json:"stream_id"`
	CreatedAt       *string `json:"created_at"`
	Digest          *string `json:"digest"`
	CanonLen        *int64  `json:"canon_len"`
	IsAuthoritative *bool   `json:"is_authoritative"`
	Payload         Payload `json:"payload"`
}

// FromGatewayEvent is the single conversion point from the gateway wire form.
// It never fails.
func FromGatewayEvent(raw map[string]any) ObservedEvent {
	index, ok := intField(raw, "index")
	if !ok {
		index = MissingIndex
	}
	payload, _ := raw["payload"].(map[string]any)
	if payload == nil {
		payload = map[string]any{}
	}
	observed := ObservedEvent{
		Index:        index,
		Kind:         Kind(stringField(raw, "kind")),
		ThreadID:     stringField(raw, "thread_id"),
		TurnID:       stringField(raw, "turn_id"),
		ParentTurnID: optionalString(raw, "parent_turn_id"),
		Actor:        stringField(raw, "actor"),
		IntentType:   stringField(raw, "intent_type"),
		Lane:         stringField(raw, "lane"),
		StreamID:     stringField(raw, "stream_id"),
		CreatedAt:    optionalString(raw, "created_at"),
		Digest:       optionalString(raw, "digest"),
		Payload:      Payload(payload),
	}
	if canonLen, ok := intField(raw, "canon_len"); ok {
		observed.CanonLen = &canonLen
	}
	if authoritative, ok := raw["is_authoritative"].(bool); ok {
		observed.IsAuthoritative = &authoritative
	}
	return observed
}

// TurnKey identifies a turn within its thread.
func (e ObservedEvent) TurnKey() string {
	return TurnKey(e.ThreadID, e.TurnID)
}

func TurnKey(threadID, turnID string) string {
	return threadID + ":" + turnID
}

// Clone returns a copy that shares no maps, slices or pointers with e.
func (e ObservedEvent) Clone() ObservedEvent {
	out := e
	out.ParentTurnID = clonePointer(e.ParentTurnID)
	out.CreatedAt = clonePointer(e.CreatedAt)
	out.Digest = clonePointer(e.Digest)
	out.CanonLen = clonePointer(e.CanonLen)
	out.IsAuthoritative = clonePointer(e.IsAuthoritative)
	out.Payload = e.Payload.Clone()
	return out
}

func clonePointer[T any](value *T) *T {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func stringField(raw map[string]any, key string) string {
	value, _ := raw[key].(string)
	return value
}

func optionalString(raw map[string]any, key string) *string {
	value, ok := raw[key].(string)
	if !ok {
		return nil
	}
	return &value
}

// intField accepts integer values only. Booleans, fractional numbers and
// numeric strings are rejected.
func intField(raw map[string]any, key string) (int64, bool) {
	return asInt(raw[key])
}

func asInt(value any) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int64:
		return typed, true
	case json.Number:
		text := typed.String()
		if strings.ContainsAny(text, ".eE") {
			return 0, false
		}
		parsed, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case float64:
		// plain json.Unmarshal yields float64 for every number
		if typed != math.Trunc(typed) || math.Abs(typed) > 1<<53 {
			return 0, false
		}
		return int64(typed), true
	default:
		return 0, false
	}
}
