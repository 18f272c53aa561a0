// Package trace implements the verification path: reading and writing
// newline-delimited observation traces, content identity checks and the
// frozen integrity diagnostics vocabulary.
package trace

import (
	"github.com/davidahmann/observer/core/canon"
	"github.com/davidahmann/observer/core/digest"
)

// ObservationEvent is one trace record. Values are treated as immutable:
// diagnostics are added through WithDiagnostics, which returns a copy.
type ObservationEvent struct {
	EventID     int64    `json:"event_id"`
	Source      string   `json:"source"`
	Artifact    string   `json:"artifact"`
	Payload     any      `json:"payload"`
	CanonLen    int64    `json:"canon_len"`
	Digest      string   `json:"digest"`
	Diagnostics []string `json:"diagnostics"`
}

// NewObservationEvent computes canon_len and digest for payload and starts
// with no diagnostics.
func NewObservationEvent(eventID int64, source, artifact string, payload any) (ObservationEvent, error) {
	encoded, err := canon.Canonicalize(payload)
	if err != nil {
		return ObservationEvent{}, err
	}
	return ObservationEvent{
		EventID:     eventID,
		Source:      source,
		Artifact:    artifact,
		Payload:     payload,
		CanonLen:    int64(len(encoded)),
		Digest:      digest.Label(encoded),
		Diagnostics: []string{},
	}, nil
}

// WithDiagnostics returns a copy carrying the existing tags followed by extra.
// Payload, CanonLen and Digest are shared unchanged.
func (e ObservationEvent) WithDiagnostics(extra ...string) ObservationEvent {
	combined := make([]string, 0, len(e.Diagnostics)+len(extra))
	combined = append(combined, e.Diagnostics...)
	combined = append(combined, extra...)
	updated := e
	updated.Diagnostics = combined
	return updated
}

func (e ObservationEvent) HasDiagnostic(tag string) bool {
	for _, existing := range e.Diagnostics {
		if existing == tag {
			return true
		}
	}
	return false
}
