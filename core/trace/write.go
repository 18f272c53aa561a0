package trace

import (
	"fmt"
	"io"

	"github.com/davidahmann/observer/core/canon"
	coreerrors "github.com/davidahmann/observer/core/errors"
)

// EncodeEvent returns the canonical form of all seven event fields.
func EncodeEvent(event ObservationEvent) ([]byte, error) {
	diagnostics := event.Diagnostics
	if diagnostics == nil {
		diagnostics = []string{}
	}
	return canon.Canonicalize(map[string]any{
		"event_id":    event.EventID,
		"source":      event.Source,
		"artifact":    event.Artifact,
		"payload":     event.Payload,
		"canon_len":   event.CanonLen,
		"digest":      event.Digest,
		"diagnostics": diagnostics,
	})
}

// WriteEvents writes one canonical line per event. Encoding failures are
// reported before anything for that event reaches writer.
func WriteEvents(events []ObservationEvent, writer io.Writer) error {
	for _, event := range events {
		encoded, err := EncodeEvent(event)
		if err != nil {
			return fmt.Errorf("event %d: %w", event.EventID, err)
		}
		encoded = append(encoded, '\n')
		if _, err := writer.Write(encoded); err != nil {
			return coreerrors.Wrap(
				fmt.Errorf("write trace: %w", err),
				coreerrors.CategoryIOFailure,
				"trace_write_failed",
				"check the output destination",
				false,
			)
		}
	}
	return nil
}
