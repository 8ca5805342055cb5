package runtime

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/docflow/internal/runtime/metadata"
)

// RequestContext describes one pass of a request message through the
// pipeline.
type RequestContext struct {
	// MessageUUID is the transport identifier of the request message.
	MessageUUID string
	// CorrelationID is the correlation identifier carried in metadata.
	CorrelationID string
	// Metadata contains the request message metadata.
	Metadata message.Metadata
	// Context is the context associated with the message.
	Context context.Context
	// StartedAt is when processing began.
	StartedAt time.Time
	// Duration is only set for OnRequestDone and OnRequestError.
	Duration time.Duration
}

// RequestHooks are optional callbacks around request processing. OnRequestDone
// fires for every acknowledged request, including ones answered with an error
// response; OnRequestError fires when the message is going to be nacked.
type RequestHooks struct {
	OnRequestStart func(ctx RequestContext)
	OnRequestDone  func(ctx RequestContext)
	OnRequestError func(ctx RequestContext, err error)
}

// IsZero reports whether no hook is set.
func (h RequestHooks) IsZero() bool {
	return h.OnRequestStart == nil && h.OnRequestDone == nil && h.OnRequestError == nil
}

// Merge combines two RequestHooks. Hooks from other run after those of h.
func (h RequestHooks) Merge(other RequestHooks) RequestHooks {
	return RequestHooks{
		OnRequestStart: chainHooks(h.OnRequestStart, other.OnRequestStart),
		OnRequestDone:  chainHooks(h.OnRequestDone, other.OnRequestDone),
		OnRequestError: chainErrorHooks(h.OnRequestError, other.OnRequestError),
	}
}

func chainHooks(a, b func(RequestContext)) func(RequestContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx RequestContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(RequestContext, error)) func(RequestContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx RequestContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// RequestHooksMiddleware invokes hooks around the wrapped handler.
func RequestHooksMiddleware(hooks RequestHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "request_hooks",
		Builder: func(*Service) (message.HandlerMiddleware, error) {
			if hooks.IsZero() {
				return nil, nil
			}
			return requestHooksMiddleware(hooks), nil
		},
	}
}

func requestHooksMiddleware(hooks RequestHooks) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			reqCtx := RequestContext{
				MessageUUID:   msg.UUID,
				CorrelationID: msg.Metadata.Get(metadatapkg.KeyCorrelationID),
				Metadata:      msg.Metadata,
				Context:       msg.Context(),
				StartedAt:     time.Now(),
			}
			if hooks.OnRequestStart != nil {
				hooks.OnRequestStart(reqCtx)
			}

			msgs, err := h(msg)

			reqCtx.Duration = time.Since(reqCtx.StartedAt)
			if err != nil {
				if hooks.OnRequestError != nil {
					hooks.OnRequestError(reqCtx, err)
				}
			} else if hooks.OnRequestDone != nil {
				hooks.OnRequestDone(reqCtx)
			}
			return msgs, err
		}
	}
}

// LoggingHooks logs request lifecycle events.
func LoggingHooks(logger loggingpkg.ServiceLogger) RequestHooks {
	fields := func(ctx RequestContext) loggingpkg.LogFields {
		return loggingpkg.LogFields{
			"message_uuid":   ctx.MessageUUID,
			"correlation_id": ctx.CorrelationID,
			"duration_ms":    ctx.Duration.Milliseconds(),
		}
	}
	return RequestHooks{
		OnRequestStart: func(ctx RequestContext) {
			logger.Debug("Request started", loggingpkg.LogFields{
				"message_uuid":   ctx.MessageUUID,
				"correlation_id": ctx.CorrelationID,
			})
		},
		OnRequestDone: func(ctx RequestContext) {
			logger.Info("Request acknowledged", fields(ctx))
		},
		OnRequestError: func(ctx RequestContext, err error) {
			logger.Error("Request will be redelivered", err, fields(ctx))
		},
	}
}

// MetricsHooks adapts plain counters to RequestHooks.
func MetricsHooks(onStart, onDone, onError func()) RequestHooks {
	return RequestHooks{
		OnRequestStart: func(RequestContext) {
			if onStart != nil {
				onStart()
			}
		},
		OnRequestDone: func(RequestContext) {
			if onDone != nil {
				onDone()
			}
		},
		OnRequestError: func(RequestContext, error) {
			if onError != nil {
				onError()
			}
		},
	}
}
