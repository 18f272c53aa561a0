package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"
)

const (
	FormatLine = "line"
	FormatJSON = "json"
)

// RenderEvent renders one gateway event without a trailing newline. The json
// format is compact, key-sorted and ASCII-only.
func RenderEvent(gatewayEvent map[string]any, format string) (string, error) {
	switch format {
	case FormatJSON:
		encoded, err := compactASCII(gatewayEvent)
		if err != nil {
			return "", err
		}
		return encoded, nil
	case FormatLine, "":
		payload, err := compactASCII(gatewayEvent["payload"])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(
			"index=%d kind=%s lane=%s actor=%s intent_type=%s stream_id=%s correlation_id=%s digest=%s payload=%s",
			intOrMissing(gatewayEvent["index"]),
			stringOrEmpty(gatewayEvent["kind"]),
			stringOrEmpty(gatewayEvent["lane"]),
			stringOrEmpty(gatewayEvent["actor"]),
			stringOrEmpty(gatewayEvent["intent_type"]),
			stringOrEmpty(gatewayEvent["stream_id"]),
			stringOrEmpty(gatewayEvent["correlation_id"]),
			stringOrEmpty(gatewayEvent["digest"]),
			payload,
		), nil
	default:
		return "", fmt.Errorf("unsupported gateway output format %q", format)
	}
}

func compactASCII(value any) (string, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return "", fmt.Errorf("encode gateway event: %w", err)
	}
	encoded := strings.TrimSuffix(buffer.String(), "\n")

	var builder strings.Builder
	builder.Grow(len(encoded))
	for _, r := range encoded {
		// encoding/json already escaped C0 controls; DEL is left to us.
		if r >= 0x20 && r <= 0x7e {
			builder.WriteRune(r)
			continue
		}
		if r > 0xffff {
			high, low := utf16.EncodeRune(r)
			fmt.Fprintf(&builder, `\u%04x\u%04x`, high, low)
			continue
		}
		fmt.Fprintf(&builder, `\u%04x`, r)
	}
	return builder.String(), nil
}

func intOrMissing(value any) int64 {
	switch typed := value.(type) {
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return -1
		}
		return parsed
	case int:
		return int64(typed)
	case int64:
		return typed
	default:
		return -1
	}
}

func stringOrEmpty(value any) string {
	text, _ := value.(string)
	return text
}
