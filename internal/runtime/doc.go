/*
Package runtime hosts the document generation pipeline of docflow.

# Architecture Overview

A Service consumes document requests from a Watermill subscriber, turns each
one into one or more rendered documents and publishes exactly one response
per acknowledged request. Processing runs in four stages:

  - generators: the specification type selects a Variant whose rules
    validate the request data and produce a DocumentModel
  - rendering: a template Engine renders the model into canonical Markdown
    with YAML front matter
  - export: the canonical text is converted into every requested format,
    PDF through an external converter behind its own permit pool
  - publishing: the ResponsePublisher serializes the envelope and hands it to
    the transport with exponential backoff

# Package Structure

## Core Service (service.go)

The Service struct wires the transport, the pipeline collaborators, the
middleware chain and the side HTTP endpoints. The Coordinator is built in
Start, so middlewares registered after NewService are still applied.

## Coordinator (coordinator.go)

The Coordinator owns intake, admission and acknowledgement:
  - admission is a weighted semaphore sized by MaxConcurrentMessages
  - formats of one request are exported in parallel with an errgroup
  - validation, render and export failures are answered with an error
    response and acknowledged
  - cancellation, resource and publish failures nack the message
  - after shutdown starts, in-flight requests get ShutdownGracePeriod

## Middleware (middleware.go, hooks.go)

Middlewares wrap request processing, the first registration outermost:
  - CorrelationID: ensures message traceability
  - LogMessages: debug logging of message payloads
  - Tracer: OpenTelemetry span per request
  - Metrics: Watermill Prometheus handler metrics
  - Recoverer: converts panics into nacks
  - RequestHooks: user callbacks around each request

## Stats & Monitoring (stats.go, metrics.go, status.go)

PipelineStats backs the JSON status endpoint with counters, latency
percentiles, throughput, an error breakdown and resource usage.
PipelineMetrics exports the same signals to Prometheus.

# Sub-packages

  - config/: service configuration, YAML loading and environment overrides
  - envelope/: request decoding, output formats and response envelopes
  - errors/: sentinel errors and the typed failure taxonomy
  - export/: format exporter, HTML conversion and the pandoc converter
  - generators/: specification variants, data rules and the registry
  - ids/: ULID generation for message IDs
  - jsoncodec/: JSON marshaling utilities
  - logging/: logger interface and adapters
  - metadata/: message metadata utilities
  - rendering/: template engine and canonical text rendering
  - transport/: selects the broker transport named by the configuration
*/
package runtime
