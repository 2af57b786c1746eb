package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"reshelve/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := services.Wrap(services.ErrDaemon, "aria2", "tellStatus", "rpc call failed", cause)
	if !errors.Is(err, services.ErrDaemon) {
		t.Fatalf("wrapped error lost marker: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("wrapped error lost cause: %v", err)
	}
	msg := err.Error()
	for _, part := range []string{"aria2", "tellStatus", "rpc call failed", "connection refused"} {
		if !strings.Contains(msg, part) {
			t.Fatalf("message %q missing %q", msg, part)
		}
	}
}

func TestWrapDefaultsToExternalTool(t *testing.T) {
	t.Parallel()

	err := services.Wrap(nil, "sevenzip", "extract", "exit status 2", nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("nil marker did not default: %v", err)
	}
}

func TestRetryClassification(t *testing.T) {
	t.Parallel()

	stalled := services.Wrap(services.ErrStalled, "download", "poll", "no progress", nil)
	wrapped := fmt.Errorf("attempt 2: %w", stalled)
	if !services.IsRetryable(wrapped) {
		t.Fatal("stall should be retryable")
	}

	preflight := services.Wrap(services.ErrPreflight, "download", "probe", "all mirrors 404", nil)
	if services.IsRetryable(preflight) {
		t.Fatal("preflight failure should not be retryable")
	}
	if !services.IsPreflight(preflight) {
		t.Fatal("IsPreflight missed marker")
	}

	password := services.Wrap(services.ErrPassword, "sevenzip", "extract", "encrypted archive", nil)
	if services.IsRetryable(password) {
		t.Fatal("password failure should not be retryable")
	}
	if !services.IsPassword(password) {
		t.Fatal("IsPassword missed marker")
	}

	if services.IsRetryable(nil) {
		t.Fatal("nil error is not retryable")
	}
}
