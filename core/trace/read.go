package trace

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/davidahmann/observer/core/canon"
	"github.com/davidahmann/observer/core/digest"
	coreerrors "github.com/davidahmann/observer/core/errors"
)

const (
	SnapshotSource   = "dbl-gateway"
	SnapshotArtifact = "gateway_event"

	maxLineBytes = 10 * 1024 * 1024
)

var (
	rawEventKeys   = []string{"artifact", "event_id", "payload", "source"}
	traceEventKeys = []string{"artifact", "canon_len", "diagnostics", "digest", "event_id", "payload", "source"}
)

// ParseError reports a line that is not valid JSON or does not have the
// required event shape.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func parseFailure(line int, format string, args ...any) error {
	return coreerrors.Wrap(
		&ParseError{Line: line, Reason: fmt.Sprintf(format, args...)},
		coreerrors.CategoryInvalidInput,
		"trace_parse_failed",
		"fix the reported line; the same input fails the same way on every run",
		false,
	)
}

// canonFailure keeps the canonicalization error reachable through errors.Is
// while reporting the line it came from.
func canonFailure(line int, err error) error {
	return coreerrors.Wrap(
		fmt.Errorf("line %d: %w", line, err),
		coreerrors.CategoryCanonicalization,
		"canonicalization_failed",
		"payloads must contain only integers, strings, booleans, null, lists and objects",
		false,
	)
}

// ReadEvents parses a newline-delimited trace. In raw mode the first line may
// instead be a gateway snapshot envelope, in which case it must be the only
// non-blank line.
func ReadEvents(reader io.Reader, expectRaw bool) ([]ObservationEvent, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	events := []ObservationEvent{}
	lineNo := 0
	envelopeLine := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if envelopeLine > 0 {
			return nil, parseFailure(lineNo, "unexpected content after snapshot envelope")
		}
		value, err := decodeStrict(line)
		if err != nil {
			return nil, parseFailure(lineNo, "invalid json")
		}
		if expectRaw && lineNo == 1 {
			if envelope, ok := asSnapshotEnvelope(value); ok {
				events, err = projectEnvelopeEvents(envelope, lineNo)
				if err != nil {
					return nil, err
				}
				envelopeLine = lineNo
				continue
			}
		}
		event, err := parseEvent(value, expectRaw, lineNo)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, coreerrors.Wrap(
			fmt.Errorf("read trace: %w", err),
			coreerrors.CategoryIOFailure,
			"trace_read_failed",
			"check that the input is readable and lines are under 10 MiB",
			false,
		)
	}
	return events, nil
}

// ProjectRawItems turns decoded raw-shape objects into events. Positions are
// reported 1-based in place of line numbers.
func ProjectRawItems(items []any) ([]ObservationEvent, error) {
	return parseItems(items, true)
}

// ParseTraceItems is ProjectRawItems for full trace objects, recomputing
// canon_len and digest.
func ParseTraceItems(items []any) ([]ObservationEvent, error) {
	return parseItems(items, false)
}

func parseItems(items []any, expectRaw bool) ([]ObservationEvent, error) {
	events := make([]ObservationEvent, 0, len(items))
	for index, item := range items {
		event, err := parseEvent(item, expectRaw, index+1)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// ProjectSnapshotEnvelope projects a decoded gateway snapshot. A bare list of
// items is accepted as an envelope without paging fields.
func ProjectSnapshotEnvelope(snapshot any) ([]ObservationEvent, error) {
	if items, ok := snapshot.([]any); ok {
		return projectEnvelopeEvents(map[string]any{"events": items}, 1)
	}
	envelope, ok := asSnapshotEnvelope(snapshot)
	if !ok {
		return nil, parseFailure(1, "expected snapshot envelope")
	}
	return projectEnvelopeEvents(envelope, 1)
}

// DecodeJSON decodes a single JSON value keeping numbers as json.Number and
// rejecting trailing content.
func DecodeJSON(data []byte) (any, error) {
	return decodeStrict(data)
}

func decodeStrict(data []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected trailing data")
	}
	return value, nil
}

func asSnapshotEnvelope(value any) (map[string]any, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	if _, ok := obj["events"].([]any); !ok {
		return nil, false
	}
	for _, key := range []string{"offset", "limit"} {
		field, present := obj[key]
		if !present || field == nil {
			continue
		}
		if _, ok := integerLiteral(field); !ok {
			return nil, false
		}
	}
	return obj, true
}

func projectEnvelopeEvents(envelope map[string]any, lineNo int) ([]ObservationEvent, error) {
	items, _ := envelope["events"].([]any)
	events := make([]ObservationEvent, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, parseFailure(lineNo, "snapshot events must be objects")
		}
		index, ok := integerLiteral(obj["index"])
		if !ok {
			return nil, parseFailure(lineNo, "snapshot event index must be int")
		}
		event, err := parseEvent(map[string]any{
			"event_id": json.Number(strconv.FormatInt(index, 10)),
			"source":   SnapshotSource,
			"artifact": SnapshotArtifact,
			"payload":  obj,
		}, true, lineNo)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func parseEvent(value any, expectRaw bool, lineNo int) (ObservationEvent, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return ObservationEvent{}, parseFailure(lineNo, "expected object")
	}
	if expectRaw {
		if !hasExactKeys(obj, rawEventKeys) {
			return ObservationEvent{}, parseFailure(lineNo, "expected raw event fields")
		}
	} else if !hasExactKeys(obj, traceEventKeys) {
		return ObservationEvent{}, parseFailure(lineNo, "expected trace event fields")
	}
	if err := checkShape(obj, expectRaw); err != nil {
		return ObservationEvent{}, parseFailure(lineNo, "%s", err.Error())
	}

	eventID, ok := integerLiteral(obj["event_id"])
	if !ok {
		return ObservationEvent{}, parseFailure(lineNo, "event_id must be int")
	}
	source, ok := obj["source"].(string)
	if !ok {
		return ObservationEvent{}, parseFailure(lineNo, "source must be str")
	}
	artifact, ok := obj["artifact"].(string)
	if !ok {
		return ObservationEvent{}, parseFailure(lineNo, "artifact must be str")
	}
	payload := obj["payload"]

	encoded, err := canon.Canonicalize(payload)
	if err != nil {
		return ObservationEvent{}, canonFailure(lineNo, err)
	}
	observedLen := int64(len(encoded))
	observedDigest := digest.Label(encoded)

	if expectRaw {
		return ObservationEvent{
			EventID:     eventID,
			Source:      source,
			Artifact:    artifact,
			Payload:     payload,
			CanonLen:    observedLen,
			Digest:      observedDigest,
			Diagnostics: []string{},
		}, nil
	}

	canonLen, ok := integerLiteral(obj["canon_len"])
	if !ok {
		return ObservationEvent{}, parseFailure(lineNo, "canon_len must be int")
	}
	declaredDigest, ok := obj["digest"].(string)
	if !ok {
		return ObservationEvent{}, parseFailure(lineNo, "digest must be str")
	}
	rawDiagnostics, ok := obj["diagnostics"].([]any)
	if !ok {
		return ObservationEvent{}, parseFailure(lineNo, "diagnostics must be list")
	}
	diagnostics := make([]string, 0, len(rawDiagnostics)+2)
	for _, item := range rawDiagnostics {
		tag, ok := item.(string)
		if !ok {
			return ObservationEvent{}, parseFailure(lineNo, "diagnostics must be list of str")
		}
		diagnostics = append(diagnostics, tag)
	}
	if canonLen != observedLen {
		diagnostics = append(diagnostics, DiagCanonLenMismatch)
	}
	if declaredDigest != observedDigest {
		diagnostics = append(diagnostics, DiagDigestMismatch)
	}
	return ObservationEvent{
		EventID:     eventID,
		Source:      source,
		Artifact:    artifact,
		Payload:     payload,
		CanonLen:    canonLen,
		Digest:      declaredDigest,
		Diagnostics: diagnostics,
	}, nil
}

func hasExactKeys(obj map[string]any, keys []string) bool {
	if len(obj) != len(keys) {
		return false
	}
	for _, key := range keys {
		if _, ok := obj[key]; !ok {
			return false
		}
	}
	return true
}

// integerLiteral accepts only JSON integer literals that fit in int64.
// Booleans, fractions and exponent forms are refused.
func integerLiteral(value any) (int64, bool) {
	switch typed := value.(type) {
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
	case int:
		return int64(typed), true
	case int64:
		return typed, true
	default:
		return 0, false
	}
}
