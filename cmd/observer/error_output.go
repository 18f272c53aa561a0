package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	coreerrors "github.com/davidahmann/observer/core/errors"
)

// exitCodeForInputError maps a failure while reading or validating input.
// Shape and parse errors are invalid input; canonicalization failures and
// unreadable input share the canonicalization exit code.
func exitCodeForInputError(err error) int {
	switch coreerrors.CategoryOf(err) {
	case coreerrors.CategoryInvalidInput:
		return exitInvalidInput
	default:
		return exitCanonicalizationErr
	}
}

// isInterrupt reports whether err only reflects the user stopping the
// command.
func isInterrupt(err error) bool {
	return stderrors.Is(err, context.Canceled)
}

func writeError(command string, err error) {
	message := strings.TrimSpace(err.Error())
	fields := []string{}
	if category := coreerrors.CategoryOf(err); category != "" {
		fields = append(fields, "category="+string(category))
	}
	if code := coreerrors.CodeOf(err); code != "" {
		fields = append(fields, "code="+code)
	}
	if coreerrors.RetryableOf(err) {
		fields = append(fields, "retryable=true")
	}
	if len(fields) > 0 {
		message += " (" + strings.Join(fields, " ") + ")"
	}
	fmt.Fprintf(stderr, "observer %s error: %s\n", command, message)
	if hint := coreerrors.HintOf(err); hint != "" {
		fmt.Fprintf(stderr, "hint: %s\n", hint)
	}
}

func usageError(format string, args ...any) error {
	return coreerrors.Wrap(fmt.Errorf(format, args...), coreerrors.CategoryInvalidInput, "usage", "run `observer help` for usage", false)
}
