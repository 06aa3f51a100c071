package services_test

import (
	"errors"
	"strings"
	"testing"

	"repost/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("connection reset")
	err := services.Wrap(services.ErrTransient, "fetch", "download", "pulling media", base)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error, got %v", err)
	}
	msg := err.Error()
	for _, part := range []string{"fetch", "download", "pulling media", "connection reset"} {
		if !strings.Contains(msg, part) {
			t.Fatalf("message %q missing %q", msg, part)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "publish", "upload", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("nil marker should default to transient, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", services.Wrap(services.ErrTransient, "s", "op", "", nil), true},
		{"untagged", errors.New("boom"), true},
		{"permanent", services.Wrap(services.ErrPermanent, "s", "op", "", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "s", "op", "", nil), false},
		{"duplicate", services.Wrap(services.ErrDuplicate, "s", "op", "", nil), false},
		{"validation", services.Wrap(services.ErrValidation, "s", "op", "", nil), false},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Errorf("%s: Retryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestKind(t *testing.T) {
	if got := services.Kind(services.Wrap(services.ErrDuplicate, "dedup", "check", "", nil)); got != "duplicate" {
		t.Fatalf("expected duplicate kind, got %q", got)
	}
	if got := services.Kind(errors.New("boom")); got != "transient" {
		t.Fatalf("untagged errors classify transient, got %q", got)
	}
	if got := services.Kind(nil); got != "" {
		t.Fatalf("nil error should have empty kind, got %q", got)
	}
}
