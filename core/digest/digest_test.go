package digest

import (
	"strings"
	"testing"
)

func TestLabelIsStable(t *testing.T) {
	first := Label([]byte(`{"a":1}`))
	second := Label([]byte(`{"a":1}`))
	if first != second {
		t.Fatalf("expected stable digest")
	}
	if !strings.HasPrefix(first, "sha256:") || len(first) != len("sha256:")+64 {
		t.Fatalf("unexpected digest label: %s", first)
	}
	if strings.ToLower(first) != first {
		t.Fatalf("expected lowercase hex: %s", first)
	}
}

func TestLabelKnownVector(t *testing.T) {
	if got := Label(nil); got != "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Fatalf("unexpected empty input digest: %s", got)
	}
}

func TestJCSStableAcrossKeyOrder(t *testing.T) {
	a, err := JCS(map[string]any{"deny_rate": 0.5, "turns": 4})
	if err != nil {
		t.Fatalf("jcs digest: %v", err)
	}
	b, err := JCS(map[string]any{"turns": 4, "deny_rate": 0.5})
	if err != nil {
		t.Fatalf("jcs digest: %v", err)
	}
	if a != b {
		t.Fatalf("expected same digest for equivalent values")
	}
}

func TestJCSRejectsUnmarshalable(t *testing.T) {
	if _, err := JCS(map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestJCSBytesSortsAndNormalizesNumbers(t *testing.T) {
	got, err := JCSBytes(map[string]any{"b": 1.50, "a": "x"})
	if err != nil {
		t.Fatalf("jcs bytes: %v", err)
	}
	if string(got) != `{"a":"x","b":1.5}` {
		t.Fatalf("unexpected jcs form: %s", got)
	}
}
