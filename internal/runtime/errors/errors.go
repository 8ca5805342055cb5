package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired      = sterrors.New("docflow: document service is required")
	ErrPublisherRequired    = sterrors.New("docflow: publisher is required")
	ErrSubscriberRequired   = sterrors.New("docflow: subscriber is required")
	ErrTopicRequired        = sterrors.New("docflow: topic is required")
	ErrConfigRequired       = sterrors.New("docflow: config is required")
	ErrLoggerRequired       = sterrors.New("docflow: logger is required")
	ErrEngineRequired       = sterrors.New("docflow: template engine is required")
	ErrConverterRequired    = sterrors.New("docflow: document converter is required")
	ErrUnknownSpecification = sterrors.New("docflow: unknown specification type")
	ErrNoOutputFormats      = sterrors.New("docflow: at least one output format is required")
	ErrUnsupportedFormat    = sterrors.New("docflow: unsupported output format")
	ErrTemplateNotFound     = sterrors.New("docflow: template not found")
	ErrMissingField         = sterrors.New("docflow: missing required field")
	ErrSubscriptionClosed   = sterrors.New("docflow: request subscription closed")
)

// ValidationError reports a request envelope or data payload that does not
// satisfy the shape required by its specification type. Field is the dotted
// path of the offending value.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RenderError signals that a template could not be rendered against a
// document model, typically because it references an absent field.
type RenderError struct {
	Template string
	Field    string
	Err      error
}

func (e *RenderError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("render failed: template %q references missing field %q", e.Template, e.Field)
	case e.Err != nil:
		return fmt.Sprintf("render failed: template %q: %v", e.Template, e.Err)
	default:
		return fmt.Sprintf("render failed: template %q", e.Template)
	}
}

func (e *RenderError) Unwrap() error { return e.Err }

// ExportKind distinguishes the ways the external conversion toolchain fails.
type ExportKind string

const (
	ExportTimeout        ExportKind = "timeout"
	ExportProcessFailure ExportKind = "process_failure"
)

// ExportError wraps a failed conversion of canonical text into an output format.
// Both kinds are retryable up to the configured attempt budget.
type ExportError struct {
	Kind   ExportKind
	Format string
	Err    error
}

func (e *ExportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("export %s failed (%s): %v", e.Format, e.Kind, e.Err)
	}
	return fmt.Sprintf("export %s failed (%s)", e.Format, e.Kind)
}

func (e *ExportError) Unwrap() error { return e.Err }

// ResourceError marks a transient condition that kept a request from reaching
// the pipeline at all. The triggering message is nacked so it redelivers.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resource %s unavailable: %v", e.Resource, e.Err)
	}
	return fmt.Sprintf("resource %s unavailable", e.Resource)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// PublishError is returned once response publication exhausted its retries.
type PublishError struct {
	Topic    string
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %q failed after %d attempt(s): %v", e.Topic, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// TransportError covers intake and ack plumbing failures. It is surfaced at
// process level rather than per request.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is caused by the request content itself and
// must be answered with an error response instead of being redelivered.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var (
		validation *ValidationError
		render     *RenderError
		export     *ExportError
	)
	return sterrors.As(err, &validation) || sterrors.As(err, &render) || sterrors.As(err, &export)
}

// IsRetryableExport reports whether err is a conversion failure eligible for
// local retry.
func IsRetryableExport(err error) bool {
	var export *ExportError
	if !sterrors.As(err, &export) {
		return false
	}
	return export.Kind == ExportTimeout || export.Kind == ExportProcessFailure
}
