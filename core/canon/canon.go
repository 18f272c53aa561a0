// Package canon serializes the restricted JSON value space used for content
// addressing. Output is byte-stable: sorted keys, no whitespace, ASCII only.
package canon

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrCanonicalization matches every *CanonicalizationError via errors.Is.
var ErrCanonicalization = errors.New("canonicalization failed")

type CanonicalizationError struct {
	Path   string
	Reason string
}

func (e *CanonicalizationError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *CanonicalizationError) Is(target error) bool {
	return target == ErrCanonicalization
}

const (
	reasonFloat       = "float is not allowed in canonical payloads"
	reasonMapKey      = "object keys must be strings"
	reasonUnsupported = "payload contains non-JSON-safe value"
)

// Canonicalize validates value and returns its canonical bytes. Nothing is
// returned on failure.
func Canonicalize(value any) ([]byte, error) {
	var builder strings.Builder
	if err := encode(&builder, value, "$"); err != nil {
		return nil, err
	}
	return []byte(builder.String()), nil
}

func CanonicalLength(value any) (int, error) {
	encoded, err := Canonicalize(value)
	if err != nil {
		return 0, err
	}
	return len(encoded), nil
}

func encode(builder *strings.Builder, value any, path string) error {
	switch typed := value.(type) {
	case nil:
		builder.WriteString("null")
		return nil
	case bool:
		if typed {
			builder.WriteString("true")
		} else {
			builder.WriteString("false")
		}
		return nil
	case string:
		writeString(builder, typed)
		return nil
	case json.Number:
		return writeNumber(builder, typed, path)
	case int:
		builder.WriteString(strconv.FormatInt(int64(typed), 10))
		return nil
	case int64:
		builder.WriteString(strconv.FormatInt(typed, 10))
		return nil
	case float32, float64:
		return &CanonicalizationError{Path: path, Reason: reasonFloat}
	case *big.Int:
		if typed == nil {
			builder.WriteString("null")
			return nil
		}
		builder.WriteString(typed.String())
		return nil
	case []any:
		builder.WriteByte('[')
		for index, item := range typed {
			if index > 0 {
				builder.WriteByte(',')
			}
			if err := encode(builder, item, path+"["+strconv.Itoa(index)+"]"); err != nil {
				return err
			}
		}
		builder.WriteByte(']')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		builder.WriteByte('{')
		for index, key := range keys {
			if index > 0 {
				builder.WriteByte(',')
			}
			writeString(builder, key)
			builder.WriteByte(':')
			if err := encode(builder, typed[key], path+"."+key); err != nil {
				return err
			}
		}
		builder.WriteByte('}')
		return nil
	}
	return encodeReflect(builder, reflect.ValueOf(value), path)
}

// encodeReflect covers typed Go values (other integer widths, typed slices and
// string-keyed maps) that callers build directly instead of decoding JSON.
func encodeReflect(builder *strings.Builder, value reflect.Value, path string) error {
	switch value.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		builder.WriteString(strconv.FormatInt(value.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		builder.WriteString(strconv.FormatUint(value.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		return &CanonicalizationError{Path: path, Reason: reasonFloat}
	case reflect.Bool:
		return encode(builder, value.Bool(), path)
	case reflect.String:
		writeString(builder, value.String())
		return nil
	case reflect.Pointer, reflect.Interface:
		if value.IsNil() {
			builder.WriteString("null")
			return nil
		}
		return encode(builder, value.Elem().Interface(), path)
	case reflect.Slice:
		if value.IsNil() {
			builder.WriteString("null")
			return nil
		}
		fallthrough
	case reflect.Array:
		builder.WriteByte('[')
		for index := 0; index < value.Len(); index++ {
			if index > 0 {
				builder.WriteByte(',')
			}
			if err := encode(builder, value.Index(index).Interface(), path+"["+strconv.Itoa(index)+"]"); err != nil {
				return err
			}
		}
		builder.WriteByte(']')
		return nil
	case reflect.Map:
		if value.Type().Key().Kind() != reflect.String {
			return &CanonicalizationError{Path: path, Reason: reasonMapKey}
		}
		if value.IsNil() {
			builder.WriteString("null")
			return nil
		}
		entries := make(map[string]any, value.Len())
		iterator := value.MapRange()
		for iterator.Next() {
			entries[iterator.Key().String()] = iterator.Value().Interface()
		}
		return encode(builder, entries, path)
	}
	return &CanonicalizationError{Path: path, Reason: reasonUnsupported}
}

func writeNumber(builder *strings.Builder, number json.Number, path string) error {
	text := number.String()
	if strings.ContainsAny(text, ".eE") {
		return &CanonicalizationError{Path: path, Reason: reasonFloat}
	}
	parsed, ok := new(big.Int).SetString(text, 10)
	if !ok {
		return &CanonicalizationError{Path: path, Reason: reasonUnsupported}
	}
	builder.WriteString(parsed.String())
	return nil
}

const hexDigits = "0123456789abcdef"

func writeString(builder *strings.Builder, value string) {
	builder.WriteByte('"')
	for index := 0; index < len(value); {
		r, size := utf8.DecodeRuneInString(value[index:])
		index += size
		switch r {
		case '"':
			builder.WriteString(`\"`)
		case '\\':
			builder.WriteString(`\\`)
		case '\n':
			builder.WriteString(`\n`)
		case '\r':
			builder.WriteString(`\r`)
		case '\t':
			builder.WriteString(`\t`)
		case '\b':
			builder.WriteString(`\b`)
		case '\f':
			builder.WriteString(`\f`)
		default:
			if r >= 0x20 && r <= 0x7e {
				builder.WriteByte(byte(r))
				continue
			}
			if r > 0xffff {
				high, low := utf16.EncodeRune(r)
				writeUnicodeEscape(builder, high)
				writeUnicodeEscape(builder, low)
				continue
			}
			writeUnicodeEscape(builder, r)
		}
	}
	builder.WriteByte('"')
}

func writeUnicodeEscape(builder *strings.Builder, r rune) {
	builder.WriteString(`\u`)
	builder.WriteByte(hexDigits[(r>>12)&0xf])
	builder.WriteByte(hexDigits[(r>>8)&0xf])
	builder.WriteByte(hexDigits[(r>>4)&0xf])
	builder.WriteByte(hexDigits[r&0xf])
}
