package projection

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/davidahmann/observer/core/event"
)

func intent(index int64, threadID, turnID, actor, intentType string) event.ObservedEvent {
	return event.ObservedEvent{
		Index:      index,
		Kind:       event.KindIntent,
		ThreadID:   threadID,
		TurnID:     turnID,
		Actor:      actor,
		IntentType: intentType,
		Payload:    event.Payload{},
	}
}

func decision(index int64, threadID, turnID, actor string, payload event.Payload) event.ObservedEvent {
	return event.ObservedEvent{
		Index:    index,
		Kind:     event.KindDecision,
		ThreadID: threadID,
		TurnID:   turnID,
		Actor:    actor,
		Payload:  payload,
	}
}

func execution(index int64, threadID, turnID, actor string, payload event.Payload) event.ObservedEvent {
	return event.ObservedEvent{
		Index:    index,
		Kind:     event.KindExecution,
		ThreadID: threadID,
		TurnID:   turnID,
		Actor:    actor,
		Payload:  payload,
	}
}

func TestTurnLifecycle(t *testing.T) {
	for _, key := range [][2]string{{"t1", "u1"}, {"thread-x", "turn-9"}, {"", ""}} {
		index := New()
		index.Feed(intent(0, key[0], key[1], "alice", "chat"))
		index.Feed(decision(1, key[0], key[1], "alice", event.Payload{"decision": "allow", "reason_codes": []any{"ok"}}))
		index.Feed(execution(2, key[0], key[1], "alice", event.Payload{"latency_ms": 150, "model_id": "m1", "provider_id": "p1"}))

		turn, ok := index.Turn(key[0], key[1])
		if !ok {
			t.Fatalf("turn %v not found", key)
		}
		if turn.DecisionResult == nil || *turn.DecisionResult != event.DecisionAllow {
			t.Fatalf("unexpected decision result: %v", turn.DecisionResult)
		}
		if !turn.HasExecution || turn.HasErrors {
			t.Fatalf("unexpected execution flags: %#v", turn)
		}
		if turn.LatencyMS == nil || *turn.LatencyMS != 150.0 {
			t.Fatalf("unexpected latency: %v", turn.LatencyMS)
		}
		if turn.ModelID == nil || *turn.ModelID != "m1" || turn.ProviderID == nil || *turn.ProviderID != "p1" {
			t.Fatalf("unexpected model/provider: %#v", turn)
		}
		if turn.FirstIndex != 0 || turn.LastIndex != 2 {
			t.Fatalf("unexpected span: %d..%d", turn.FirstIndex, turn.LastIndex)
		}
		if fmt.Sprint(turn.Kinds) != "[DECISION EXECUTION INTENT]" {
			t.Fatalf("unexpected kinds: %v", turn.Kinds)
		}
		if strings.Join(turn.ReasonCodes, ",") != "ok" {
			t.Fatalf("unexpected reason codes: %v", turn.ReasonCodes)
		}
	}
}

func TestLatencyProfileNearestRank(t *testing.T) {
	build := func() *Index {
		index := New()
		for i := 0; i < 100; i++ {
			index.Feed(intent(int64(2*i), "t", fmt.Sprint(i), "", "chat"))
			index.Feed(execution(int64(2*i+1), "t", fmt.Sprint(i), "", event.Payload{"latency_ms": 100 + i}))
		}
		return index
	}
	first, okFirst := build().LatencyProfile()
	second, okSecond := build().LatencyProfile()
	if !okFirst || !okSecond {
		t.Fatal("expected latency profiles")
	}
	if first != second {
		t.Fatalf("profiles differ: %#v %#v", first, second)
	}
	if first.SampleCount != 100 || first.P50 != 150 || first.P95 != 195 || first.P99 != 199 {
		t.Fatalf("unexpected profile: %#v", first)
	}
}

func TestLatencySamplesAreBounded(t *testing.T) {
	index := New()
	for i := 0; i < MaxLatencySamples+10; i++ {
		index.Feed(execution(int64(i), "t", "u", "", event.Payload{"latency_ms": i}))
	}
	index.Feed(execution(99999, "t", "u", "", event.Payload{"latency_ms": -5}))
	index.Feed(execution(100000, "t", "u", "", event.Payload{"latency_ms": true}))
	profile, ok := index.LatencyProfile()
	if !ok || profile.SampleCount != MaxLatencySamples {
		t.Fatalf("unexpected sample count: %#v", profile)
	}
	// samples 0..9 were evicted
	if profile.P50 != float64(10+MaxLatencySamples/2) {
		t.Fatalf("unexpected p50 after eviction: %v", profile.P50)
	}
}

func TestNoLatencyProfileWithoutSamples(t *testing.T) {
	index := New()
	if _, ok := index.LatencyProfile(); ok {
		t.Fatal("expected no latency profile")
	}
	metrics := index.SystemMetrics()
	if metrics.Latency.P95 != nil || metrics.Latency.SampleCount != 0 {
		t.Fatalf("unexpected latency metrics: %#v", metrics.Latency)
	}
	if metrics.DenyRate != 0 {
		t.Fatalf("expected zero deny rate, got %v", metrics.DenyRate)
	}
}

func TestPolicyWindows(t *testing.T) {
	index := New()
	index.Feed(decision(1, "t", "u1", "", event.Payload{"policy_id": "p", "policy_version": "1"}))
	index.Feed(decision(2, "t", "u2", "", event.Payload{"policy_id": "p", "policy_version": "1"}))
	index.Feed(decision(3, "t", "u3", "", event.Payload{"policy_id": ""}))
	index.Feed(decision(4, "t", "u4", "", event.Payload{"policy_id": "p", "policy_version": "2"}))
	index.Feed(decision(5, "t", "u5", "", event.Payload{"policy_id": "p"}))
	index.Feed(intent(6, "t", "u6", "", "chat"))

	windows := index.PolicyTimeline()
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %#v", windows)
	}
	expect := []struct {
		version *string
		from    int64
		to      *int64
	}{
		{version: strPtr("1"), from: 1, to: intPtr(4)},
		{version: strPtr("2"), from: 4, to: intPtr(5)},
		{version: nil, from: 5, to: nil},
	}
	for i, want := range expect {
		got := windows[i]
		if got.PolicyID != "p" || got.FromIndex != want.from {
			t.Fatalf("window %d: unexpected %#v", i, got)
		}
		if (got.PolicyVersion == nil) != (want.version == nil) || (got.PolicyVersion != nil && *got.PolicyVersion != *want.version) {
			t.Fatalf("window %d: unexpected version %v", i, got.PolicyVersion)
		}
		if (got.ToIndex == nil) != (want.to == nil) || (got.ToIndex != nil && *got.ToIndex != *want.to) {
			t.Fatalf("window %d: unexpected to_index %v", i, got.ToIndex)
		}
	}
}

func TestThreadActorAndSystemCounters(t *testing.T) {
	index := New()
	index.Feed(intent(0, "t1", "u1", "alice", "chat"))
	index.Feed(decision(1, "t1", "u1", "alice", event.Payload{"decision": "DENY", "reason_codes": []any{"blocked", "pii"}}))
	index.Feed(intent(2, "t2", "u1", "bob", "search"))
	index.Feed(decision(3, "t2", "u1", "bob", event.Payload{"result": "allow", "reason_codes": []any{"blocked"}}))
	index.Feed(execution(4, "t2", "u1", "bob", event.Payload{"status": "ERROR", "latency_ms": 10}))
	index.Feed(intent(5, "t1", "u2", "", "chat"))

	t1, ok := index.Thread("t1")
	if !ok || t1.TurnsTotal != 2 || t1.DenyTotal != 1 || t1.FirstIndex != 0 || t1.LastIndex != 5 {
		t.Fatalf("unexpected t1: %#v", t1)
	}
	t2, _ := index.Thread("t2")
	if t2.AllowTotal != 1 || t2.ExecutionErrorTotal != 1 {
		t.Fatalf("unexpected t2: %#v", t2)
	}
	if _, ok := index.Thread("missing"); ok {
		t.Fatal("unknown thread must not be found")
	}

	threads := index.ListThreads()
	if threads[0].ThreadID != "t1" || threads[1].ThreadID != "t2" {
		t.Fatalf("unexpected thread order: %#v", threads)
	}
	turns := index.ListTurnsForThread("t1")
	if len(turns) != 2 || turns[0].TurnID != "u1" || turns[1].TurnID != "u2" {
		t.Fatalf("unexpected turns: %#v", turns)
	}

	actors := index.ListActors()
	if len(actors) != 2 || actors[0].Actor != "alice" || actors[1].Actor != "bob" {
		t.Fatalf("unexpected actors (tie breaks by name): %#v", actors)
	}
	if actors[1].ErrorsTotal != 1 || actors[0].DenyTotal != 1 {
		t.Fatalf("unexpected actor counters: %#v", actors)
	}

	metrics := index.SystemMetrics()
	if metrics.EventCount != 6 || metrics.ThreadCount != 2 || metrics.ActorCount != 2 || metrics.TurnCount != 3 {
		t.Fatalf("unexpected metrics: %#v", metrics)
	}
	if metrics.DenyTotal != 1 || metrics.AllowTotal != 1 || metrics.DenyRate != 1.0/3.0 {
		t.Fatalf("unexpected decision metrics: %#v", metrics)
	}
	if len(metrics.TopIntentTypes) != 2 || metrics.TopIntentTypes[0] != (CountEntry{Name: "chat", Count: 2}) {
		t.Fatalf("unexpected top intents: %#v", metrics.TopIntentTypes)
	}
	if metrics.TopReasonCodes[0] != (CountEntry{Name: "blocked", Count: 2}) {
		t.Fatalf("unexpected top reason codes: %#v", metrics.TopReasonCodes)
	}
}

func TestEmptyThreadIDStillCreatesThread(t *testing.T) {
	index := New()
	index.Feed(intent(0, "", "", "", "chat"))
	if _, ok := index.Thread(""); !ok {
		t.Fatal("expected thread for empty id")
	}
	if len(index.ListActors()) != 0 {
		t.Fatal("empty actor must be skipped")
	}
}

func TestMissingIndexSpanRecovers(t *testing.T) {
	index := New()
	index.Feed(intent(event.MissingIndex, "t", "u", "", "chat"))
	index.Feed(intent(7, "t", "u", "", "chat"))
	thread, _ := index.Thread("t")
	if thread.FirstIndex != 7 || thread.LastIndex != 7 {
		t.Fatalf("unexpected span: %#v", thread)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	index := New()
	index.Feed(decision(1, "t", "u", "", event.Payload{"decision": "ALLOW", "reason_codes": []any{"a"}}))
	turn, _ := index.Turn("t", "u")
	turn.ReasonCodes[0] = "mutated"
	turn.Kinds[0] = "mutated"
	again, _ := index.Turn("t", "u")
	if again.ReasonCodes[0] != "a" || again.Kinds[0] != event.KindDecision {
		t.Fatalf("turn state leaked: %#v", again)
	}

	*again.DecisionResult = event.DecisionDeny
	listed := index.ListTurnsForThread("t")
	*listed[0].DecisionResult = event.DecisionDeny
	final, _ := index.Turn("t", "u")
	if *final.DecisionResult != event.DecisionAllow {
		t.Fatalf("decision result leaked: %s", *final.DecisionResult)
	}
}

func TestTurnPointersAreNotShared(t *testing.T) {
	index := New()
	parent := "p0"
	intentEvent := intent(1, "t", "u", "", "chat")
	intentEvent.ParentTurnID = &parent
	index.Feed(intentEvent)
	index.Feed(execution(2, "t", "u", "", event.Payload{"latency_ms": 120, "model_id": "m", "provider_id": "p"}))
	parent = "mutated"

	turn, _ := index.Turn("t", "u")
	*turn.LatencyMS = 1
	*turn.ModelID = "mutated"
	*turn.ProviderID = "mutated"
	*turn.ParentTurnID = "mutated"

	again, _ := index.Turn("t", "u")
	if *again.LatencyMS != 120 || *again.ModelID != "m" || *again.ProviderID != "p" || *again.ParentTurnID != "p0" {
		t.Fatalf("turn pointers leaked: latency=%v model=%s provider=%s parent=%s",
			*again.LatencyMS, *again.ModelID, *again.ProviderID, *again.ParentTurnID)
	}
}

func TestPolicyTimelineReturnsCopies(t *testing.T) {
	index := New()
	index.Feed(decision(1, "t", "u1", "", event.Payload{"decision": "ALLOW", "policy_id": "p", "policy_version": "1"}))
	index.Feed(decision(2, "t", "u2", "", event.Payload{"decision": "ALLOW", "policy_id": "p", "policy_version": "2"}))

	windows := index.PolicyTimeline()
	*windows[0].ToIndex = 99
	*windows[0].PolicyVersion = "mutated"
	snapshot := index.Snapshot()
	*snapshot.PolicyWindows[0].ToIndex = 98

	again := index.PolicyTimeline()
	if *again[0].ToIndex != 2 || *again[0].PolicyVersion != "1" {
		t.Fatalf("policy window leaked: to=%d version=%s", *again[0].ToIndex, *again[0].PolicyVersion)
	}
}

func TestConcurrentFeedAndQuery(t *testing.T) {
	index := New()
	var wg sync.WaitGroup
	for worker := 0; worker < 4; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				threadID := fmt.Sprintf("t%d", worker)
				index.Feed(intent(int64(i), threadID, fmt.Sprint(i), "", "chat"))
				_ = index.Snapshot()
			}
		}(worker)
	}
	wg.Wait()
	if got := index.SystemMetrics().TurnCount; got != 400 {
		t.Fatalf("expected 400 turns, got %d", got)
	}
}

func strPtr(value string) *string { return &value }

func intPtr(value int64) *int64 { return &value }
