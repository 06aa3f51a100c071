package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks failures worth retrying, such as network hiccups or
	// external tool timeouts.
	ErrTransient = errors.New("transient failure")
	// ErrPermanent marks failures that will not succeed on retry, such as a
	// source post that no longer exists.
	ErrPermanent = errors.New("permanent failure")
	// ErrConfiguration marks operator mistakes that require a config change.
	ErrConfiguration = errors.New("configuration error")
	// ErrConcurrency marks claim or resolution races lost to another worker.
	ErrConcurrency = errors.New("concurrency conflict")
	// ErrDuplicate marks content rejected by the dedup engine.
	ErrDuplicate = errors.New("duplicate content")
	// ErrValidation marks malformed input or state that fails invariants.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks lookups for items, targets, or tokens that do not exist.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a stage failure should be retried by the
// workflow manager, attempt budget permitting.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrPermanent),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

// Kind returns a short machine-readable label for the error's classification,
// suitable for structured log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrDuplicate):
		return "duplicate"
	case errors.Is(err, ErrConcurrency):
		return "concurrency"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPermanent):
		return "permanent"
	default:
		return "transient"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
