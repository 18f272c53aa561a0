package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/davidahmann/observer/core/canon"
)

func TestWrapRoundTrip(t *testing.T) {
	base := stderrors.New("boom")
	err := Wrap(base, CategoryNetworkTransient, "gateway_unreachable", "check the gateway URL and retry", true)
	if err == nil {
		t.Fatal("expected wrapped error")
	}
	if CategoryOf(err) != CategoryNetworkTransient {
		t.Fatalf("unexpected category: %s", CategoryOf(err))
	}
	if CodeOf(err) != "gateway_unreachable" {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if HintOf(err) != "check the gateway URL and retry" {
		t.Fatalf("unexpected hint: %s", HintOf(err))
	}
	if !RetryableOf(err) {
		t.Fatal("expected retryable true")
	}
	if !stderrors.Is(err, base) {
		t.Fatal("expected wrapped error to preserve cause")
	}
}

func TestClassificationSurvivesFmtWrapping(t *testing.T) {
	inner := Wrap(stderrors.New("bad line"), CategoryInvalidInput, "trace_parse_failed", "", false)
	outer := fmt.Errorf("read trace: %w", inner)
	if CategoryOf(outer) != CategoryInvalidInput {
		t.Fatalf("unexpected category: %s", CategoryOf(outer))
	}
}

func TestCanonicalizationErrorsAreClassified(t *testing.T) {
	_, err := canon.Canonicalize(map[string]any{"x": 1.5})
	if err == nil {
		t.Fatal("expected canonicalization error")
	}
	if CategoryOf(fmt.Errorf("line 1: %w", err)) != CategoryCanonicalization {
		t.Fatalf("expected canonicalization category, got %q", CategoryOf(err))
	}
	if RetryableOf(err) {
		t.Fatal("canonicalization must never be retryable")
	}
}

func TestUnknownErrorDefaults(t *testing.T) {
	err := stderrors.New("plain")
	if CategoryOf(err) != "" {
		t.Fatalf("unexpected category: %s", CategoryOf(err))
	}
	if CodeOf(err) != "" {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if HintOf(err) != "" {
		t.Fatalf("unexpected hint: %s", HintOf(err))
	}
	if RetryableOf(err) {
		t.Fatal("unexpected retryable true")
	}
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	if got := Wrap(nil, CategoryInternalFailure, "internal_failure", "retry later", false); got != nil {
		t.Fatalf("expected nil wrapped error, got=%v", got)
	}
}

func TestClassifiedErrorNilCause(t *testing.T) {
	err := &classifiedError{category: CategoryIOFailure}
	if err.Error() != "unknown error" {
		t.Fatalf("unexpected nil-cause error text: %s", err.Error())
	}
	if err.Unwrap() != nil {
		t.Fatalf("expected unwrap nil for nil cause")
	}
}
