package projection

import "github.com/davidahmann/observer/core/event"

// MaxLatencySamples bounds the latency sample set. The oldest sample is
// evicted first.
const MaxLatencySamples = 5000

const topCountLimit = 10

// TurnSummary aggregates one INTENT, DECISION, EXECUTION cycle.
type TurnSummary struct {
	ThreadID       string       `json:"thread_id"`
	TurnID         string       `json:"turn_id"`
	ParentTurnID   *string      `json:"parent_turn_id"`
	FirstIndex     int64        `json:"first_index"`
	LastIndex      int64        `json:"last_index"`
	Kinds          []event.Kind `json:"kinds"`
	DecisionResult *string      `json:"decision_result"`
	ReasonCodes    []string     `json:"reason_codes"`
	ProviderID     *string      `json:"provider_id"`
	ModelID        *string      `json:"model_id"`
	LatencyMS      *float64     `json:"latency_ms"`
	HasExecution   bool         `json:"has_execution"`
	HasErrors      bool         `json:"has_errors"`
}

// ThreadSummary holds counters only; no per-event history is retained.
type ThreadSummary struct {
	ThreadID            string `json:"thread_id"`
	FirstIndex          int64  `json:"first_index"`
	LastIndex           int64  `json:"last_index"`
	TurnsTotal          int    `json:"turns_total"`
	DenyTotal           int    `json:"deny_total"`
	AllowTotal          int    `json:"allow_total"`
	ExecutionErrorTotal int    `json:"execution_error_total"`
}

type ActorSummary struct {
	Actor       string `json:"actor"`
	TurnsTotal  int    `json:"turns_total"`
	DenyTotal   int    `json:"deny_total"`
	AllowTotal  int    `json:"allow_total"`
	ErrorsTotal int    `json:"errors_total"`
}

// PolicyWindow is the index span during which a policy pair was the latest
// one seen on a DECISION. A nil ToIndex marks the open window.
type PolicyWindow struct {
	PolicyID      string  `json:"policy_id"`
	PolicyVersion *string `json:"policy_version"`
	FromIndex     int64   `json:"from_index"`
	ToIndex       *int64  `json:"to_index"`
}

type LatencyProfile struct {
	P50         float64 `json:"p50"`
	P95         float64 `json:"p95"`
	P99         float64 `json:"p99"`
	SampleCount int     `json:"sample_count"`
}

// LatencyMetrics is the metrics rendering of LatencyProfile with nulls when
// no samples exist.
type LatencyMetrics struct {
	P50         *float64 `json:"p50"`
	P95         *float64 `json:"p95"`
	P99         *float64 `json:"p99"`
	SampleCount int      `json:"sample_count"`
}

type CountEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type SystemMetrics struct {
	EventCount        int            `json:"event_count"`
	ThreadCount       int            `json:"thread_count"`
	ActorCount        int            `json:"actor_count"`
	TurnCount         int            `json:"turn_count"`
	DenyTotal         int            `json:"deny_total"`
	AllowTotal        int            `json:"allow_total"`
	DenyRate          float64        `json:"deny_rate"`
	Latency           LatencyMetrics `json:"latency"`
	PolicyWindowCount int            `json:"policy_window_count"`
	TopIntentTypes    []CountEntry   `json:"top_intent_types"`
	TopReasonCodes    []CountEntry   `json:"top_reason_codes"`
}

// Snapshot is a consistent copy of the aggregates taken under one lock.
type Snapshot struct {
	Threads       []ThreadSummary `json:"threads"`
	Actors        []ActorSummary  `json:"actors"`
	PolicyWindows []PolicyWindow  `json:"policy_windows"`
	Latency       *LatencyProfile `json:"latency"`
	Metrics       SystemMetrics   `json:"metrics"`
}

// clone copies every slice and pointer so a query result shares nothing with
// the index.
func (t TurnSummary) clone() TurnSummary {
	out := t
	out.ParentTurnID = clonePointer(t.ParentTurnID)
	out.Kinds = append([]event.Kind{}, t.Kinds...)
	out.DecisionResult = clonePointer(t.DecisionResult)
	out.ReasonCodes = append([]string{}, t.ReasonCodes...)
	out.ProviderID = clonePointer(t.ProviderID)
	out.ModelID = clonePointer(t.ModelID)
	out.LatencyMS = clonePointer(t.LatencyMS)
	return out
}

func (w PolicyWindow) clone() PolicyWindow {
	out := w
	out.PolicyVersion = clonePointer(w.PolicyVersion)
	out.ToIndex = clonePointer(w.ToIndex)
	return out
}

func clonePolicyWindows(windows []PolicyWindow) []PolicyWindow {
	out := make([]PolicyWindow, len(windows))
	for index, window := range windows {
		out[index] = window.clone()
	}
	return out
}

func clonePointer[T any](value *T) *T {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func (t *TurnSummary) addKind(kind event.Kind) {
	for index, existing := range t.Kinds {
		if existing == kind {
			return
		}
		if existing > kind {
			t.Kinds = append(t.Kinds, "")
			copy(t.Kinds[index+1:], t.Kinds[index:])
			t.Kinds[index] = kind
			return
		}
	}
	t.Kinds = append(t.Kinds, kind)
}

func samePolicy(window PolicyWindow, policyID string, policyVersion *string) bool {
	if window.PolicyID != policyID {
		return false
	}
	if window.PolicyVersion == nil || policyVersion == nil {
		return window.PolicyVersion == nil && policyVersion == nil
	}
	return *window.PolicyVersion == *policyVersion
}
