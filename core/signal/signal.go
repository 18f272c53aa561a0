// Package signal derives non-authoritative attention markers from projection
// snapshots. Signals describe what was observed; they are never decisions.
package signal

import (
	"encoding/json"
	"fmt"
)

// Severity is ordered Info < Warn < Critical.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	parsed, err := ParseSeverity(text)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseSeverity(text string) (Severity, error) {
	switch text {
	case "info":
		return SeverityInfo, nil
	case "warn":
		return SeverityWarn, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", text)
	}
}

// Severities lists every severity in ascending order.
func Severities() []Severity {
	return []Severity{SeverityInfo, SeverityWarn, SeverityCritical}
}

type Signal struct {
	ID       string         `json:"id"`
	Severity Severity       `json:"severity"`
	Scope    string         `json:"scope"`
	Key      string         `json:"key"`
	Title    string         `json:"title"`
	Detail   string         `json:"detail"`
	AtIndex  int64          `json:"at_index"`
	Evidence map[string]any `json:"evidence"`
}
