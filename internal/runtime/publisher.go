package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v5"

	"github.com/drblury/docflow/internal/runtime/envelope"
	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	idspkg "github.com/drblury/docflow/internal/runtime/ids"
	"github.com/drblury/docflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/docflow/internal/runtime/metadata"
)

// ResponseSchema is stamped into event_message_schema on every response.
const ResponseSchema = "docflow.DocumentResponse"

// PublisherOptions configures a ResponsePublisher. Zero retry settings fall
// back to the configuration defaults.
type PublisherOptions struct {
	Publisher       message.Publisher
	Topic           string
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          loggingpkg.ServiceLogger
	Metrics         *PipelineMetrics
}

// ResponsePublisher serializes response envelopes and hands them to the
// transport, retrying transient failures with exponential backoff.
type ResponsePublisher struct {
	publisher       message.Publisher
	topic           string
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	logger          loggingpkg.ServiceLogger
	metrics         *PipelineMetrics
}

func NewResponsePublisher(opts PublisherOptions) (*ResponsePublisher, error) {
	if opts.Publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if opts.Topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 200 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = loggingpkg.NopLogger()
	}
	return &ResponsePublisher{
		publisher:       opts.Publisher,
		topic:           opts.Topic,
		maxAttempts:     opts.MaxAttempts,
		initialInterval: opts.InitialInterval,
		maxInterval:     opts.MaxInterval,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
	}, nil
}

// Topic returns the destination of published responses.
func (p *ResponsePublisher) Topic() string { return p.topic }

// NewResponseMessage converts resp into a Watermill message carrying the
// standard response metadata on top of md.
func NewResponseMessage(resp envelope.Response, md metadatapkg.Metadata) (*message.Message, error) {
	payload, err := jsoncodec.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response payload: %w", err)
	}

	msg := message.NewMessage(idspkg.NewMessageID(), payload)
	msg.Metadata = metadatapkg.ToWatermill(md)
	msg.Metadata.Set(metadatapkg.KeyRequestID, resp.RequestID)
	msg.Metadata.Set(metadatapkg.KeyStatus, string(resp.Status))
	msg.Metadata.Set(metadatapkg.KeyEventSchema, ResponseSchema)
	return msg, nil
}

// Publish sends resp and returns once the transport accepted it. Exhausting
// the attempt budget yields a *errors.PublishError.
func (p *ResponsePublisher) Publish(ctx context.Context, resp envelope.Response, md metadatapkg.Metadata) error {
	msg, err := NewResponseMessage(resp, md)
	if err != nil {
		return &errspkg.PublishError{Topic: p.topic, Err: err}
	}
	if ctx != nil {
		msg.SetContext(ctx)
	} else {
		ctx = context.Background()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialInterval
	b.MaxInterval = p.maxInterval

	attempts := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, p.publisher.Publish(p.topic, msg)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.metrics.publishRetried()
			p.logger.Error("Publishing response failed, retrying", err, loggingpkg.LogFields{
				"request_id": resp.RequestID,
				"topic":      p.topic,
				"attempt":    attempts,
				"retry_in":   next.String(),
			})
		}),
	)
	if err != nil {
		return &errspkg.PublishError{Topic: p.topic, Attempts: attempts, Err: err}
	}

	p.logger.Debug("Response published", loggingpkg.LogFields{
		"request_id":   resp.RequestID,
		"status":       resp.Status,
		"message_uuid": msg.UUID,
		"topic":        p.topic,
	})
	return nil
}
