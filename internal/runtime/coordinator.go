package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/drblury/docflow/internal/runtime/envelope"
	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/export"
	"github.com/drblury/docflow/internal/runtime/generators"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/docflow/internal/runtime/metadata"
	"github.com/drblury/docflow/internal/runtime/rendering"
)

// Outcome is the acknowledgement decision for a request message.
type Outcome int

const (
	OutcomeAck Outcome = iota
	OutcomeNack
)

func (o Outcome) String() string {
	if o == OutcomeAck {
		return "ack"
	}
	return "nack"
}

// CoordinatorOptions wires a Coordinator. Subscriber is only needed by Run.
// Consumers above one opens that many subscriptions on the request topic,
// which only makes sense for transports whose subscriptions compete for
// messages instead of each receiving a copy.
type CoordinatorOptions struct {
	Subscriber message.Subscriber
	Topic      string
	Consumers  int
	Publisher  *ResponsePublisher
	Registry   *generators.Registry
	Renderer   *rendering.Renderer
	Exporter   *export.Exporter
	Logger     loggingpkg.ServiceLogger

	MaxConcurrent       int
	ExportRetries       int
	ExportRetryInterval time.Duration
	ShutdownGrace       time.Duration

	// Middlewares wrap request processing, the first one outermost.
	Middlewares []message.HandlerMiddleware
	Metrics     *PipelineMetrics
	Stats       *PipelineStats
	Now         func() time.Time
}

// Coordinator consumes document requests, drives each one through build,
// render and export, and publishes exactly one response per acknowledged
// request.
type Coordinator struct {
	subscriber message.Subscriber
	topic      string
	consumers  int
	publisher  *ResponsePublisher
	registry   *generators.Registry
	renderer   *rendering.Renderer
	exporter   *export.Exporter
	logger     loggingpkg.ServiceLogger
	metrics    *PipelineMetrics
	stats      *PipelineStats
	now        func() time.Time

	admission           *semaphore.Weighted
	exportRetries       int
	exportRetryInterval time.Duration
	shutdownGrace       time.Duration

	handler  message.HandlerFunc
	inFlight sync.WaitGroup
}

func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	switch {
	case opts.Publisher == nil:
		return nil, errspkg.ErrPublisherRequired
	case opts.Registry == nil:
		return nil, fmt.Errorf("docflow: generator registry is required")
	case opts.Renderer == nil:
		return nil, errspkg.ErrEngineRequired
	case opts.Exporter == nil:
		return nil, errspkg.ErrConverterRequired
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Consumers <= 0 {
		opts.Consumers = 1
	}
	if opts.ExportRetries < 0 {
		opts.ExportRetries = 0
	}
	if opts.ExportRetryInterval <= 0 {
		opts.ExportRetryInterval = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = loggingpkg.NopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Coordinator{
		subscriber:          opts.Subscriber,
		topic:               opts.Topic,
		consumers:           opts.Consumers,
		publisher:           opts.Publisher,
		registry:            opts.Registry,
		renderer:            opts.Renderer,
		exporter:            opts.Exporter,
		logger:              opts.Logger,
		metrics:             opts.Metrics,
		stats:               opts.Stats,
		now:                 opts.Now,
		admission:           semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		exportRetries:       opts.ExportRetries,
		exportRetryInterval: opts.ExportRetryInterval,
		shutdownGrace:       opts.ShutdownGrace,
	}
	c.handler = chainMiddlewares(c.process, opts.Middlewares)
	return c, nil
}

// Run subscribes to the request topic and processes messages until ctx ends.
// A request stream closed by the broker while ctx is live ends Run with a
// *errors.TransportError once in-flight work has drained.
// Admission blocks the intake loop once MaxConcurrent requests are in
// flight. After ctx ends no new message is taken; in-flight requests get the
// shutdown grace period before their work is cancelled and they are nacked.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.subscriber == nil {
		return errspkg.ErrSubscriberRequired
	}
	if c.topic == "" {
		return errspkg.ErrTopicRequired
	}

	messages, err := c.subscribe(ctx)
	if err != nil {
		return &errspkg.TransportError{Op: "subscribe", Err: err}
	}

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	c.logger.Info("Coordinator started", loggingpkg.LogFields{"topic": c.topic})

	var runErr error
intake:
	for {
		select {
		case <-ctx.Done():
			break intake
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() == nil {
					runErr = &errspkg.TransportError{Op: "receive", Err: errspkg.ErrSubscriptionClosed}
					c.logger.Error("Request subscription closed unexpectedly", runErr, loggingpkg.LogFields{"topic": c.topic})
				}
				break intake
			}
			if err := c.admission.Acquire(ctx, 1); err != nil {
				msg.Nack()
				break intake
			}
			c.inFlight.Add(1)
			go func(msg *message.Message) {
				defer c.inFlight.Done()
				defer c.admission.Release(1)
				c.dispatch(workCtx, msg)
			}(msg)
		}
	}

	c.drain(cancelWork)
	c.logger.Info("Coordinator stopped", loggingpkg.LogFields{"topic": c.topic})
	return runErr
}

// subscribe opens c.consumers subscriptions and merges them into one stream.
// A message taken from a subscription but not yet handed to the intake loop
// when ctx ends is nacked.
func (c *Coordinator) subscribe(ctx context.Context) (<-chan *message.Message, error) {
	if c.consumers <= 1 {
		return c.subscriber.Subscribe(ctx, c.topic)
	}

	merged := make(chan *message.Message)
	var wg sync.WaitGroup
	for i := 0; i < c.consumers; i++ {
		src, err := c.subscriber.Subscribe(ctx, c.topic)
		if err != nil {
			return nil, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range src {
				select {
				case merged <- msg:
				case <-ctx.Done():
					msg.Nack()
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(merged)
	}()
	return merged, nil
}

func (c *Coordinator) drain(cancelWork context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		c.inFlight.Wait()
		close(done)
	}()

	if c.shutdownGrace > 0 {
		timer := time.NewTimer(c.shutdownGrace)
		defer timer.Stop()
		select {
		case <-done:
			return
		case <-timer.C:
			c.logger.Info("Shutdown grace period elapsed, cancelling in-flight requests", nil)
		}
	}
	cancelWork()
	<-done
}

func (c *Coordinator) dispatch(ctx context.Context, msg *message.Message) {
	if c.Handle(ctx, msg) == OutcomeAck {
		msg.Ack()
		return
	}
	msg.Nack()
}

type requestResultKey struct{}

// requestResult is filled in by process so Handle can report how the request
// ended without widening the HandlerFunc signature.
type requestResult struct {
	specificationType string
	status            string
	cause             error
}

// Handle runs one request message through the middleware chain and the
// pipeline and decides whether it is acknowledged. It never panics.
func (c *Coordinator) Handle(ctx context.Context, msg *message.Message) (outcome Outcome) {
	started := c.now()
	result := &requestResult{}
	msg.SetContext(context.WithValue(ctx, requestResultKey{}, result))

	c.stats.onRequestStart()
	c.metrics.requestStarted()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while handling message %s: %v", msg.UUID, r)
			outcome = OutcomeNack
		}
		status := result.status
		if outcome == OutcomeNack {
			status = ResultNacked
			c.logger.Error("Request nacked", err, loggingpkg.LogFields{
				"message_uuid":       msg.UUID,
				"correlation_id":     msg.Metadata.Get(metadatapkg.KeyCorrelationID),
				"specification_type": result.specificationType,
			})
		}
		cause := err
		if cause == nil {
			cause = result.cause
		}
		elapsed := c.now().Sub(started)
		c.stats.onRequestFinish(status, elapsed, cause)
		c.metrics.requestFinished(result.specificationType, status, elapsed)
	}()

	if _, err = c.handler(msg); err != nil {
		return OutcomeNack
	}
	return OutcomeAck
}

// process is the innermost handler. A nil error means the message may be
// acknowledged: either a success response or an error response has been
// handed to the transport.
func (c *Coordinator) process(msg *message.Message) ([]*message.Message, error) {
	ctx := msg.Context()
	result, _ := ctx.Value(requestResultKey{}).(*requestResult)
	if result == nil {
		result = &requestResult{}
	}

	outMetadata := metadatapkg.Carry(msg.Metadata, metadatapkg.KeyCorrelationID)
	log := c.logger.With(loggingpkg.LogFields{
		"message_uuid":   msg.UUID,
		"correlation_id": msg.Metadata.Get(metadatapkg.KeyCorrelationID),
	})

	req, err := envelope.Decode(msg.Payload, c.now().UTC())
	if err != nil {
		requestID := envelope.RecoverRequestID(msg.Payload)
		log.Info("Rejecting undecodable request", loggingpkg.LogFields{"request_id": requestID, "error": err.Error()})
		result.status = ResultError
		result.cause = err
		return nil, c.publisher.Publish(ctx, envelope.Failure(requestID, err, c.now().UTC()), outMetadata)
	}

	result.specificationType = req.SpecificationType
	log = log.With(loggingpkg.LogFields{
		"request_id":         req.RequestID,
		"specification_type": req.SpecificationType,
	})
	log.Info("Processing document request", loggingpkg.LogFields{"output_formats": req.OutputFormats})

	docs, err := c.generate(ctx, req)
	switch {
	case err == nil:
	case errspkg.IsPermanent(err):
		log.Info("Document request failed permanently", loggingpkg.LogFields{"error": err.Error()})
		result.status = ResultError
		result.cause = err
		return nil, c.publisher.Publish(ctx, envelope.Failure(req.RequestID, err, c.now().UTC()), outMetadata)
	default:
		return nil, err
	}

	if err := c.publisher.Publish(ctx, envelope.Success(req.RequestID, docs, c.now().UTC()), outMetadata); err != nil {
		return nil, err
	}
	result.status = ResultSuccess
	log.Info("Document request completed", loggingpkg.LogFields{"documents": len(docs)})
	return nil, nil
}

// generate builds, renders and exports the documents of req. The returned
// documents follow the order of req.OutputFormats.
func (c *Coordinator) generate(ctx context.Context, req envelope.Request) ([]envelope.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &errspkg.ResourceError{Resource: "work context", Err: err}
	}

	model, err := c.registry.Build(req.SpecificationType, req.Data, req.Metadata)
	if err != nil {
		return nil, err
	}
	text, err := c.renderer.Render(model)
	if err != nil {
		return nil, err
	}
	return c.exportAll(ctx, text, req.OutputFormats, model.Metadata())
}

// exportAll fans out one export per format. The first failure cancels the
// rest and no partial document set is returned.
func (c *Coordinator) exportAll(ctx context.Context, text rendering.CanonicalText, formats []envelope.Format, md envelope.Metadata) ([]envelope.Document, error) {
	docs := make([]envelope.Document, len(formats))
	g, gctx := errgroup.WithContext(ctx)
	for i, format := range formats {
		g.Go(func() error {
			doc, err := c.exportWithRetry(gctx, text, format, md)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil && !errspkg.IsPermanent(err) {
			return nil, &errspkg.ResourceError{Resource: "work context", Err: err}
		}
		return nil, err
	}
	return docs, nil
}

func (c *Coordinator) exportWithRetry(ctx context.Context, text rendering.CanonicalText, format envelope.Format, md envelope.Metadata) (envelope.Document, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ExportDocument")
	span.SetAttributes(attribute.String("document.format", format.String()))
	defer span.End()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.exportRetryInterval
	b.MaxInterval = 4 * c.exportRetryInterval

	started := time.Now()
	doc, err := backoff.Retry(ctx, func() (envelope.Document, error) {
		doc, err := c.exporter.Export(ctx, text, format, md)
		if err != nil && !errspkg.IsRetryableExport(err) {
			return doc, backoff.Permanent(err)
		}
		return doc, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.exportRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.metrics.exportRetried(format.String())
			c.logger.Info("Export failed, retrying", loggingpkg.LogFields{
				"format":   format.String(),
				"error":    err.Error(),
				"retry_in": next.String(),
			})
		}),
	)
	c.metrics.exportFinished(format.String(), err, time.Since(started))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return envelope.Document{}, err
	}
	span.SetAttributes(attribute.Int("document.size_bytes", doc.SizeBytes))
	return doc, nil
}

// MaxInFlight reports the highest concurrency observed by the coordinator.
func (c *Coordinator) MaxInFlight() uint64 {
	return c.stats.MaxInFlight()
}
