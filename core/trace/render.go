package trace

import (
	"fmt"
	"sort"
	"strings"
)

// ExplainLines renders one line per event, preceded by a trace_diagnostics
// line when traceDiagnostics is non-empty.
func ExplainLines(events []ObservationEvent, traceDiagnostics []string) []string {
	lines := make([]string, 0, len(events)+1)
	if len(traceDiagnostics) > 0 {
		lines = append(lines, traceDiagnosticsLine(traceDiagnostics))
	}
	for _, event := range events {
		lines = append(lines, eventLine(event))
	}
	return lines
}

// DiffLines is ExplainLines restricted to events whose digest differs from
// the reference.
func DiffLines(events []ObservationEvent, traceDiagnostics []string) []string {
	lines := []string{}
	if len(traceDiagnostics) > 0 {
		lines = append(lines, traceDiagnosticsLine(traceDiagnostics))
	}
	for _, event := range events {
		if event.HasDiagnostic(DiagReferenceDigestMismatch) {
			lines = append(lines, eventLine(event))
		}
	}
	return lines
}

func SummaryLines(events []ObservationEvent) []string {
	sourceCounts := map[string]int{}
	artifactCounts := map[string]int{}
	for _, event := range events {
		sourceCounts[event.Source]++
		artifactCounts[event.Artifact]++
	}

	lines := []string{fmt.Sprintf("total_events=%d", len(events))}
	for _, source := range sortedKeys(sourceCounts) {
		lines = append(lines, fmt.Sprintf("source=%s count=%d", source, sourceCounts[source]))
	}
	for _, artifact := range sortedKeys(artifactCounts) {
		lines = append(lines, fmt.Sprintf("artifact=%s count=%d", artifact, artifactCounts[artifact]))
	}
	return lines
}

func traceDiagnosticsLine(traceDiagnostics []string) string {
	return "trace_diagnostics=[" + strings.Join(traceDiagnostics, ",") + "]"
}

func eventLine(event ObservationEvent) string {
	return fmt.Sprintf(
		"event_id=%d source=%s artifact=%s canon_len=%d digest=%s diagnostics=[%s]",
		event.EventID,
		event.Source,
		event.Artifact,
		event.CanonLen,
		event.Digest,
		strings.Join(event.Diagnostics, ","),
	)
}

func sortedKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
