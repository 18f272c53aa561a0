package signal

import (
	"fmt"
	"sort"

	"github.com/davidahmann/observer/core/projection"
)

const (
	LatencyP95WarnMS          = 5000
	LatencyP95CriticalMS      = 15000
	DenyRateWarnThreshold     = 0.50
	DenyRateCriticalThreshold = 0.80
	ErrorClusterThreshold     = 3
	MinTurnsForRateSignal     = 5
	PolicyWindowThreshold     = 3
)

// Engine is stateless: the same snapshot always yields the same signals in
// the same order.
type Engine struct{}

func (Engine) Evaluate(snapshot projection.Snapshot) []Signal {
	signals := []Signal{}
	signals = append(signals, checkSystemLatency(snapshot)...)
	signals = append(signals, checkThreadDenyRates(snapshot)...)
	signals = append(signals, checkErrorClusters(snapshot)...)
	signals = append(signals, checkPolicyChanges(snapshot)...)

	sort.SliceStable(signals, func(i, j int) bool {
		if signals[i].Severity != signals[j].Severity {
			return signals[i].Severity < signals[j].Severity
		}
		if signals[i].Scope != signals[j].Scope {
			return signals[i].Scope < signals[j].Scope
		}
		return signals[i].ID < signals[j].ID
	})
	return signals
}

// CountBySeverity returns a count for every severity, including zeros.
func CountBySeverity(signals []Signal) map[string]int {
	counts := map[string]int{}
	for _, severity := range Severities() {
		counts[severity.String()] = 0
	}
	for _, item := range signals {
		counts[item.Severity.String()]++
	}
	return counts
}

func checkSystemLatency(snapshot projection.Snapshot) []Signal {
	latency := snapshot.Latency
	if latency == nil {
		return nil
	}
	evidence := map[string]any{
		"p50":          latency.P50,
		"p95":          latency.P95,
		"p99":          latency.P99,
		"sample_count": latency.SampleCount,
	}
	switch {
	case latency.P95 >= LatencyP95CriticalMS:
		return []Signal{{
			ID:       "system.latency.p95.critical",
			Severity: SeverityCritical,
			Scope:    "system",
			Key:      "latency_p95",
			Title:    "Latency P95 critical",
			Detail:   fmt.Sprintf("P95 latency is %.0fms (threshold: %dms)", latency.P95, LatencyP95CriticalMS),
			AtIndex:  -1,
			Evidence: evidence,
		}}
	case latency.P95 >= LatencyP95WarnMS:
		return []Signal{{
			ID:       "system.latency.p95.elevated",
			Severity: SeverityWarn,
			Scope:    "system",
			Key:      "latency_p95",
			Title:    "Latency P95 elevated",
			Detail:   fmt.Sprintf("P95 latency is %.0fms (threshold: %dms)", latency.P95, LatencyP95WarnMS),
			AtIndex:  -1,
			Evidence: evidence,
		}}
	}
	return nil
}

func checkThreadDenyRates(snapshot projection.Snapshot) []Signal {
	signals := []Signal{}
	for _, thread := range snapshot.Threads {
		if thread.TurnsTotal < MinTurnsForRateSignal {
			continue
		}
		denyRate := float64(thread.DenyTotal) / float64(thread.TurnsTotal)
		evidence := map[string]any{
			"deny_total":  thread.DenyTotal,
			"turns_total": thread.TurnsTotal,
			"deny_rate":   denyRate,
		}
		detail := fmt.Sprintf("Deny rate %.0f%% over %d turns", denyRate*100, thread.TurnsTotal)
		switch {
		case denyRate >= DenyRateCriticalThreshold:
			signals = append(signals, Signal{
				ID:       fmt.Sprintf("thread.%s.deny_rate.critical", thread.ThreadID),
				Severity: SeverityCritical,
				Scope:    "thread",
				Key:      thread.ThreadID,
				Title:    "Deny rate critical",
				Detail:   detail,
				AtIndex:  thread.LastIndex,
				Evidence: evidence,
			})
		case denyRate >= DenyRateWarnThreshold:
			signals = append(signals, Signal{
				ID:       fmt.Sprintf("thread.%s.deny_rate.elevated", thread.ThreadID),
				Severity: SeverityWarn,
				Scope:    "thread",
				Key:      thread.ThreadID,
				Title:    "Deny rate elevated",
				Detail:   detail,
				AtIndex:  thread.LastIndex,
				Evidence: evidence,
			})
		}
	}
	return signals
}

func checkErrorClusters(snapshot projection.Snapshot) []Signal {
	signals := []Signal{}
	for _, thread := range snapshot.Threads {
		if thread.ExecutionErrorTotal < ErrorClusterThreshold {
			continue
		}
		signals = append(signals, Signal{
			ID:       fmt.Sprintf("thread.%s.error_cluster", thread.ThreadID),
			Severity: SeverityWarn,
			Scope:    "thread",
			Key:      thread.ThreadID,
			Title:    "Execution error cluster",
			Detail:   fmt.Sprintf("%d execution errors in thread", thread.ExecutionErrorTotal),
			AtIndex:  thread.LastIndex,
			Evidence: map[string]any{
				"error_count": thread.ExecutionErrorTotal,
				"turns_total": thread.TurnsTotal,
			},
		})
	}
	return signals
}

func checkPolicyChanges(snapshot projection.Snapshot) []Signal {
	windows := snapshot.PolicyWindows
	if len(windows) <= PolicyWindowThreshold {
		return nil
	}
	return []Signal{{
		ID:       "system.policy.frequent_changes",
		Severity: SeverityInfo,
		Scope:    "system",
		Key:      "policy_changes",
		Title:    "Frequent policy changes",
		Detail:   fmt.Sprintf("%d policy versions observed", len(windows)),
		AtIndex:  windows[len(windows)-1].FromIndex,
		Evidence: map[string]any{"window_count": len(windows)},
	}}
}
