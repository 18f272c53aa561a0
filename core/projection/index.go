// Package projection folds observed gateway events, in feed order, into
// per-turn, per-thread, per-actor, policy and latency aggregates.
package projection

import (
	"sort"
	"sync"

	"github.com/davidahmann/observer/core/event"
)

// Index is strictly incremental: every Feed applies one event and past events
// are never revisited. Feeding out of index order yields unspecified but
// well-formed aggregates.
type Index struct {
	mu               sync.Mutex
	turns            map[string]*TurnSummary
	threads          map[string]*ThreadSummary
	actors           map[string]*ActorSummary
	policyWindows    []PolicyWindow
	latency          latencyRing
	intentTypeCounts map[string]int
	reasonCodeCounts map[string]int
	eventCount       int
}

func New() *Index {
	return &Index{
		turns:            map[string]*TurnSummary{},
		threads:          map[string]*ThreadSummary{},
		actors:           map[string]*ActorSummary{},
		intentTypeCounts: map[string]int{},
		reasonCodeCounts: map[string]int{},
	}
}

// Feed applies the turn, thread, actor, policy and latency updates for one
// event as a single step.
func (x *Index) Feed(observed event.ObservedEvent) {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.eventCount++
	x.upsertTurn(observed)
	x.upsertThread(observed)
	x.upsertActor(observed)
	x.upsertPolicy(observed)
	x.upsertLatency(observed)
}

func (x *Index) Turn(threadID, turnID string) (TurnSummary, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	turn, ok := x.turns[event.TurnKey(threadID, turnID)]
	if !ok {
		return TurnSummary{}, false
	}
	return turn.clone(), true
}

func (x *Index) Thread(threadID string) (ThreadSummary, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	thread, ok := x.threads[threadID]
	if !ok {
		return ThreadSummary{}, false
	}
	return *thread, true
}

// ListThreads orders by last index descending, then thread id.
func (x *Index) ListThreads() []ThreadSummary {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.listThreadsLocked()
}

// ListTurnsForThread orders by first index ascending, then turn id.
func (x *Index) ListTurnsForThread(threadID string) []TurnSummary {
	x.mu.Lock()
	defer x.mu.Unlock()
	turns := []TurnSummary{}
	for _, turn := range x.turns {
		if turn.ThreadID == threadID {
			turns = append(turns, turn.clone())
		}
	}
	sort.Slice(turns, func(i, j int) bool {
		if turns[i].FirstIndex != turns[j].FirstIndex {
			return turns[i].FirstIndex < turns[j].FirstIndex
		}
		return turns[i].TurnID < turns[j].TurnID
	})
	return turns
}

// ListActors orders by turn volume descending, then actor.
func (x *Index) ListActors() []ActorSummary {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.listActorsLocked()
}

func (x *Index) PolicyTimeline() []PolicyWindow {
	x.mu.Lock()
	defer x.mu.Unlock()
	return clonePolicyWindows(x.policyWindows)
}

// LatencyProfile returns nearest-rank quantiles over the retained samples.
func (x *Index) LatencyProfile() (LatencyProfile, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.latency.profile()
}

func (x *Index) SystemMetrics() SystemMetrics {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.systemMetricsLocked()
}

// Snapshot copies everything the signal rules read under one lock.
func (x *Index) Snapshot() Snapshot {
	x.mu.Lock()
	defer x.mu.Unlock()
	snapshot := Snapshot{
		Threads:       x.listThreadsLocked(),
		Actors:        x.listActorsLocked(),
		PolicyWindows: clonePolicyWindows(x.policyWindows),
		Metrics:       x.systemMetricsLocked(),
	}
	if profile, ok := x.latency.profile(); ok {
		snapshot.Latency = &profile
	}
	return snapshot
}

func (x *Index) listThreadsLocked() []ThreadSummary {
	threads := make([]ThreadSummary, 0, len(x.threads))
	for _, thread := range x.threads {
		threads = append(threads, *thread)
	}
	sort.Slice(threads, func(i, j int) bool {
		if threads[i].LastIndex != threads[j].LastIndex {
			return threads[i].LastIndex > threads[j].LastIndex
		}
		return threads[i].ThreadID < threads[j].ThreadID
	})
	return threads
}

func (x *Index) listActorsLocked() []ActorSummary {
	actors := make([]ActorSummary, 0, len(x.actors))
	for _, actor := range x.actors {
		actors = append(actors, *actor)
	}
	sort.Slice(actors, func(i, j int) bool {
		if actors[i].TurnsTotal != actors[j].TurnsTotal {
			return actors[i].TurnsTotal > actors[j].TurnsTotal
		}
		return actors[i].Actor < actors[j].Actor
	})
	return actors
}

func (x *Index) systemMetricsLocked() SystemMetrics {
	metrics := SystemMetrics{
		EventCount:        x.eventCount,
		ThreadCount:       len(x.threads),
		ActorCount:        len(x.actors),
		PolicyWindowCount: len(x.policyWindows),
		TopIntentTypes:    topCounts(x.intentTypeCounts, topCountLimit),
		TopReasonCodes:    topCounts(x.reasonCodeCounts, topCountLimit),
	}
	for _, thread := range x.threads {
		metrics.TurnCount += thread.TurnsTotal
		metrics.DenyTotal += thread.DenyTotal
		metrics.AllowTotal += thread.AllowTotal
	}
	if metrics.TurnCount > 0 {
		metrics.DenyRate = float64(metrics.DenyTotal) / float64(metrics.TurnCount)
	}
	if profile, ok := x.latency.profile(); ok {
		metrics.Latency = LatencyMetrics{
			P50:         &profile.P50,
			P95:         &profile.P95,
			P99:         &profile.P99,
			SampleCount: profile.SampleCount,
		}
	}
	return metrics
}

func (x *Index) upsertTurn(observed event.ObservedEvent) {
	key := observed.TurnKey()
	turn, ok := x.turns[key]
	if !ok {
		turn = &TurnSummary{
			ThreadID:     observed.ThreadID,
			TurnID:       observed.TurnID,
			ParentTurnID: clonePointer(observed.ParentTurnID),
			FirstIndex:   observed.Index,
			LastIndex:    observed.Index,
			Kinds:        []event.Kind{},
			ReasonCodes:  []string{},
		}
		x.turns[key] = turn
	}
	turn.FirstIndex = spanStart(turn.FirstIndex, observed.Index)
	turn.LastIndex = max(turn.LastIndex, observed.Index)
	turn.addKind(observed.Kind)

	switch observed.Kind {
	case event.KindDecision:
		if decision := observed.Payload.Decision(); decision == event.DecisionAllow || decision == event.DecisionDeny {
			turn.DecisionResult = &decision
		}
		if codes, ok := observed.Payload.ReasonCodes(); ok {
			turn.ReasonCodes = codes
			for _, code := range codes {
				x.reasonCodeCounts[code]++
			}
		}
	case event.KindExecution:
		turn.HasExecution = true
		if latency, ok := observed.Payload.LatencyMS(); ok {
			turn.LatencyMS = &latency
		}
		if model, ok := observed.Payload.ModelID(); ok {
			turn.ModelID = &model
		}
		if provider, ok := observed.Payload.ProviderID(); ok {
			turn.ProviderID = &provider
		}
		if observed.Payload.IsErrorStatus() {
			turn.HasErrors = true
		}
	}
}

func (x *Index) upsertThread(observed event.ObservedEvent) {
	thread, ok := x.threads[observed.ThreadID]
	if !ok {
		thread = &ThreadSummary{
			ThreadID:   observed.ThreadID,
			FirstIndex: observed.Index,
			LastIndex:  observed.Index,
		}
		x.threads[observed.ThreadID] = thread
	}
	thread.FirstIndex = spanStart(thread.FirstIndex, observed.Index)
	thread.LastIndex = max(thread.LastIndex, observed.Index)

	switch observed.Kind {
	case event.KindIntent:
		thread.TurnsTotal++
		x.intentTypeCounts[observed.IntentType]++
	case event.KindDecision:
		switch observed.Payload.Decision() {
		case event.DecisionDeny:
			thread.DenyTotal++
		case event.DecisionAllow:
			thread.AllowTotal++
		}
	case event.KindExecution:
		if observed.Payload.IsErrorStatus() {
			thread.ExecutionErrorTotal++
		}
	}
}

func (x *Index) upsertActor(observed event.ObservedEvent) {
	if observed.Actor == "" {
		return
	}
	actor, ok := x.actors[observed.Actor]
	if !ok {
		actor = &ActorSummary{Actor: observed.Actor}
		x.actors[observed.Actor] = actor
	}

	switch observed.Kind {
	case event.KindIntent:
		actor.TurnsTotal++
	case event.KindDecision:
		switch observed.Payload.Decision() {
		case event.DecisionDeny:
			actor.DenyTotal++
		case event.DecisionAllow:
			actor.AllowTotal++
		}
	case event.KindExecution:
		if observed.Payload.IsErrorStatus() {
			actor.ErrorsTotal++
		}
	}
}

func (x *Index) upsertPolicy(observed event.ObservedEvent) {
	if observed.Kind != event.KindDecision {
		return
	}
	policyID := observed.Payload.PolicyID()
	if policyID == "" {
		return
	}
	policyVersion := observed.Payload.PolicyVersion()

	if count := len(x.policyWindows); count > 0 {
		open := x.policyWindows[count-1]
		if samePolicy(open, policyID, policyVersion) {
			return
		}
		closedAt := observed.Index
		open.ToIndex = &closedAt
		x.policyWindows[count-1] = open
	}
	x.policyWindows = append(x.policyWindows, PolicyWindow{
		PolicyID:      policyID,
		PolicyVersion: policyVersion,
		FromIndex:     observed.Index,
	})
}

func (x *Index) upsertLatency(observed event.ObservedEvent) {
	if observed.Kind != event.KindExecution {
		return
	}
	latency, ok := observed.Payload.LatencyMS()
	if !ok || latency < 0 {
		return
	}
	x.latency.add(latency)
}

// spanStart keeps the smallest index seen, replacing a missing (negative)
// start with the current index.
func spanStart(current, index int64) int64 {
	if current >= 0 {
		return min(current, index)
	}
	return index
}

func topCounts(counts map[string]int, limit int) []CountEntry {
	entries := make([]CountEntry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, CountEntry{Name: name, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// latencyRing keeps the most recent MaxLatencySamples values.
type latencyRing struct {
	samples []float64
	next    int
}

func (r *latencyRing) add(value float64) {
	if len(r.samples) < MaxLatencySamples {
		r.samples = append(r.samples, value)
		return
	}
	r.samples[r.next] = value
	r.next = (r.next + 1) % MaxLatencySamples
}

func (r *latencyRing) profile() (LatencyProfile, bool) {
	n := len(r.samples)
	if n == 0 {
		return LatencyProfile{}, false
	}
	sorted := append([]float64(nil), r.samples...)
	sort.Float64s(sorted)
	return LatencyProfile{
		P50:         sorted[n*50/100],
		P95:         sorted[min(n-1, n*95/100)],
		P99:         sorted[min(n-1, n*99/100)],
		SampleCount: n,
	}, true
}
