package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

const Algorithm = "sha256"

// Hex returns the lowercase sha256 hex digest of data.
func Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Label returns the algorithm-labeled digest ("sha256:<hex>") of data.
func Label(data []byte) string {
	return Algorithm + ":" + Hex(data)
}

// JCSBytes returns the RFC 8785 form of an arbitrary JSON-marshalable value.
// Unlike the strict codec it accepts floats.
func JCSBytes(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize json: %w", err)
	}
	return canonical, nil
}

// JCS fingerprints value through its RFC 8785 form.
func JCS(value any) (string, error) {
	canonical, err := JCSBytes(value)
	if err != nil {
		return "", err
	}
	return Label(canonical), nil
}
