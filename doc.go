// Package docflow is an asynchronous document generation service built on
// Watermill. It consumes generation requests from a message broker, validates
// the structured data against the requested specification type, renders it
// through a template into canonical Markdown and exports it to Markdown, HTML
// or PDF. Every acknowledged request yields exactly one response on the
// response topic, carrying either all requested documents or an error.
//
// A minimal setup loads a Config, creates a Service and calls Start; see
// cmd/docflow for the binary and examples/local for an in-process round trip.
//
// # Transports
//
// The broker is selected by Config.PubSubSystem:
//   - channel: in-memory Go channels for tests and local development
//   - kafka: consumer groups that split partitions between instances
//   - rabbitmq: durable AMQP queues named after the service
//   - aws: SNS topics fanned out to per-service SQS queues
//   - nats: JetStream with a durable queue group per service
//   - http: requests POSTed to an embedded server, responses POSTed onward
//   - io: request envelopes read as JSON lines from a file or stdin,
//     responses appended to a file or stdout
//
// # Specification Types
//
// Ten variants ship with the service, covering ISO/IEC/IEEE 29148, IEEE 830,
// MIL-STD-498 and three report types. ServiceDependencies.Specifications
// registers more, each with its own data rules and template.
//
// # Delivery
//
// Validation, render and export failures are answered with an error response
// and the request is acknowledged. Resource, cancellation and publish failures
// nack the request so the broker redelivers it. PDF conversion is retried
// locally and bounded by its own concurrency limit.
//
// # Middleware
//
// The default middleware chain injects correlation IDs, logs payloads at
// debug level, opens an OpenTelemetry span, records Watermill Prometheus
// metrics and recovers panics. RequestHooks add callbacks around every
// request.
//
// # Observability
//
// With MetricsEnabled, Prometheus metrics are served on MetricsPort under
// /metrics. With StatusEnabled, a JSON processing snapshot is served on
// StatusPort under /api/status.
package docflow
