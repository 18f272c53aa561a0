package signal

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/davidahmann/observer/core/event"
	"github.com/davidahmann/observer/core/projection"
)

func feedTurns(index *projection.Index, threadID string, start int64, decisions ...string) int64 {
	next := start
	for turn, decision := range decisions {
		turnID := fmt.Sprintf("%s-u%d", threadID, turn)
		index.Feed(event.ObservedEvent{Index: next, Kind: event.KindIntent, ThreadID: threadID, TurnID: turnID, Payload: event.Payload{}})
		next++
		index.Feed(event.ObservedEvent{Index: next, Kind: event.KindDecision, ThreadID: threadID, TurnID: turnID, Payload: event.Payload{"decision": decision}})
		next++
	}
	return next
}

func TestDenyRateSignal(t *testing.T) {
	index := projection.New()
	feedTurns(index, "t1", 0, "DENY", "DENY", "DENY", "DENY", "DENY", "ALLOW")
	signals := Engine{}.Evaluate(index.Snapshot())
	found := false
	for _, item := range signals {
		if strings.Contains(item.ID, "deny_rate") && (item.Severity == SeverityWarn || item.Severity == SeverityCritical) {
			found = true
			if item.ID != "thread.t1.deny_rate.critical" || item.Detail != "Deny rate 83% over 6 turns" {
				t.Fatalf("unexpected deny signal: %#v", item)
			}
			if item.AtIndex != 11 {
				t.Fatalf("unexpected at_index: %d", item.AtIndex)
			}
		}
	}
	if !found {
		t.Fatalf("expected deny rate signal, got %#v", signals)
	}
}

func TestDenyRateThresholds(t *testing.T) {
	tests := []struct {
		name      string
		decisions []string
		wantID    string
	}{
		{name: "too_few_turns", decisions: []string{"DENY", "DENY", "DENY", "DENY"}, wantID: ""},
		{name: "elevated", decisions: []string{"DENY", "DENY", "DENY", "ALLOW", "ALLOW", "ALLOW"}, wantID: "thread.t.deny_rate.elevated"},
		{name: "below_warn", decisions: []string{"DENY", "DENY", "ALLOW", "ALLOW", "ALLOW", "ALLOW"}, wantID: ""},
		{name: "critical_exact", decisions: []string{"DENY", "DENY", "DENY", "DENY", "ALLOW"}, wantID: "thread.t.deny_rate.critical"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			index := projection.New()
			feedTurns(index, "t", 0, test.decisions...)
			signals := Engine{}.Evaluate(index.Snapshot())
			got := ""
			for _, item := range signals {
				if strings.Contains(item.ID, "deny_rate") {
					got = item.ID
				}
			}
			if got != test.wantID {
				t.Fatalf("expected %q, got %q", test.wantID, got)
			}
		})
	}
}

func TestLatencyAndErrorAndPolicySignalsSorted(t *testing.T) {
	index := projection.New()
	next := int64(0)
	for i := 0; i < 3; i++ {
		index.Feed(event.ObservedEvent{Index: next, Kind: event.KindExecution, ThreadID: "t9", TurnID: fmt.Sprint(i), Payload: event.Payload{"status": "error", "latency_ms": 20000}})
		next++
	}
	for i := 0; i < 4; i++ {
		index.Feed(event.ObservedEvent{Index: next, Kind: event.KindDecision, ThreadID: "t9", TurnID: "p", Payload: event.Payload{"policy_id": "p", "policy_version": fmt.Sprint(i)}})
		next++
	}

	signals := Engine{}.Evaluate(index.Snapshot())
	ids := make([]string, 0, len(signals))
	for _, item := range signals {
		ids = append(ids, item.ID)
	}
	want := []string{
		"system.policy.frequent_changes",
		"thread.t9.error_cluster",
		"system.latency.p95.critical",
	}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected signal order: %v", ids)
	}
	if signals[0].AtIndex != 6 || signals[0].Detail != "4 policy versions observed" {
		t.Fatalf("unexpected policy signal: %#v", signals[0])
	}
	if signals[2].Detail != "P95 latency is 20000ms (threshold: 15000ms)" || signals[2].AtIndex != -1 {
		t.Fatalf("unexpected latency signal: %#v", signals[2])
	}
	if signals[2].Evidence["sample_count"] != 3 {
		t.Fatalf("unexpected latency evidence: %#v", signals[2].Evidence)
	}
}

func TestElevatedLatency(t *testing.T) {
	index := projection.New()
	index.Feed(event.ObservedEvent{Index: 0, Kind: event.KindExecution, Payload: event.Payload{"latency_ms": 5000}})
	signals := Engine{}.Evaluate(index.Snapshot())
	if len(signals) != 1 || signals[0].ID != "system.latency.p95.elevated" || signals[0].Severity != SeverityWarn {
		t.Fatalf("unexpected signals: %#v", signals)
	}
}

func TestEvaluateIsPure(t *testing.T) {
	index := projection.New()
	feedTurns(index, "a", 0, "DENY", "DENY", "DENY", "DENY", "DENY")
	feedTurns(index, "b", 100, "DENY", "DENY", "DENY", "ALLOW", "ALLOW")
	engine := Engine{}
	first := engine.Evaluate(index.Snapshot())
	second := engine.Evaluate(index.Snapshot())
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("evaluate not deterministic:\n%#v\n%#v", first, second)
	}
	if len(first) != 2 || first[0].Severity != SeverityWarn || first[1].Severity != SeverityCritical {
		t.Fatalf("expected warn before critical, got %#v", first)
	}
}

func TestSeverityOrdinalAndJSON(t *testing.T) {
	if !(SeverityInfo < SeverityWarn && SeverityWarn < SeverityCritical) {
		t.Fatal("severity must be ordered info < warn < critical")
	}
	encoded, err := json.Marshal(Signal{ID: "x", Severity: SeverityCritical})
	if err != nil {
		t.Fatalf("marshal signal: %v", err)
	}
	if !strings.Contains(string(encoded), `"severity":"critical"`) {
		t.Fatalf("unexpected encoding: %s", encoded)
	}
	var decoded Signal
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal signal: %v", err)
	}
	if decoded.Severity != SeverityCritical {
		t.Fatalf("unexpected decoded severity: %v", decoded.Severity)
	}
	if _, err := ParseSeverity("fatal"); err == nil {
		t.Fatal("expected unknown severity error")
	}
}

func TestCountBySeverity(t *testing.T) {
	counts := CountBySeverity([]Signal{{Severity: SeverityWarn}, {Severity: SeverityWarn}})
	if counts["info"] != 0 || counts["warn"] != 2 || counts["critical"] != 0 {
		t.Fatalf("unexpected counts: %#v", counts)
	}
}
