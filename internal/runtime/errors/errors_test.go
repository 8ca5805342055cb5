package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"ErrPublisherRequired", ErrPublisherRequired, "docflow: publisher is required"},
		{"ErrSubscriberRequired", ErrSubscriberRequired, "docflow: subscriber is required"},
		{"ErrTopicRequired", ErrTopicRequired, "docflow: topic is required"},
		{"ErrUnknownSpecification", ErrUnknownSpecification, "docflow: unknown specification type"},
		{"ErrNoOutputFormats", ErrNoOutputFormats, "docflow: at least one output format is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestValidationErrorMessage(t *testing.T) {
	err := NewValidationError("introduction.purpose", "is required")
	if got := err.Error(); got != "validation failed: introduction.purpose: is required" {
		t.Fatalf("unexpected message %q", got)
	}

	noField := &ValidationError{Reason: "payload is not valid JSON"}
	if got := noField.Error(); got != "validation failed: payload is not valid JSON" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestRenderErrorMessage(t *testing.T) {
	err := &RenderError{Template: "iso29148_srs", Field: "introduction.scope"}
	want := `render failed: template "iso29148_srs" references missing field "introduction.scope"`
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}

	inner := errors.New("syntax")
	wrapped := &RenderError{Template: "x", Err: inner}
	if !errors.Is(wrapped, inner) {
		t.Fatal("expected RenderError to unwrap its cause")
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"validation", NewValidationError("request_id", "is required"), true},
		{"wrapped validation", fmt.Errorf("decode: %w", NewValidationError("data", "must be an object")), true},
		{"render", &RenderError{Template: "t", Field: "f"}, true},
		{"export", &ExportError{Kind: ExportTimeout, Format: "PDF"}, true},
		{"resource", &ResourceError{Resource: "admission", Err: context.Canceled}, false},
		{"publish", &PublishError{Topic: "out", Attempts: 3, Err: errors.New("down")}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Fatalf("IsPermanent(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryableExport(t *testing.T) {
	if !IsRetryableExport(&ExportError{Kind: ExportTimeout}) {
		t.Fatal("timeouts must be retryable")
	}
	if !IsRetryableExport(fmt.Errorf("wrapped: %w", &ExportError{Kind: ExportProcessFailure})) {
		t.Fatal("process failures must be retryable")
	}
	if IsRetryableExport(NewValidationError("x", "y")) {
		t.Fatal("validation errors are never retryable exports")
	}
}

func TestPublishErrorUnwraps(t *testing.T) {
	cause := errors.New("broker down")
	err := &PublishError{Topic: "results", Attempts: 5, Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected PublishError to unwrap")
	}
	if got := err.Error(); got != `publish to "results" failed after 5 attempt(s): broker down` {
		t.Fatalf("unexpected message %q", got)
	}
}
