package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/drblury/docflow/internal/runtime/envelope"
	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/export"
	"github.com/drblury/docflow/internal/runtime/generators"
	"github.com/drblury/docflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
	"github.com/drblury/docflow/internal/runtime/rendering"
)

const (
	testRequestTopic  = "document.requests"
	testResponseTopic = "document.responses"
)

var testNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

// recordingPublisher keeps every published message. The first failFirst
// calls fail with err.
type recordingPublisher struct {
	mu        sync.Mutex
	messages  []*message.Message
	topics    []string
	failFirst int
	calls     int
	err       error
	closed    bool
}

func (p *recordingPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil && (p.failFirst <= 0 || p.calls <= p.failFirst) {
		return p.err
	}
	for _, msg := range messages {
		p.topics = append(p.topics, topic)
		p.messages = append(p.messages, msg)
	}
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *recordingPublisher) Messages() []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message(nil), p.messages...)
}

func (p *recordingPublisher) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Responses decodes every published payload.
func (p *recordingPublisher) Responses(t *testing.T) []envelope.Response {
	t.Helper()
	var out []envelope.Response
	for _, msg := range p.Messages() {
		var resp envelope.Response
		require.NoError(t, jsoncodec.Unmarshal(msg.Payload, &resp))
		out = append(out, resp)
	}
	return out
}

// queueSubscriber hands out one channel per Subscribe call that the test
// feeds through Send. Unlike real transports it does not wait for acks.
type queueSubscriber struct {
	mu       sync.Mutex
	ch       chan *message.Message
	closed   bool
	subCount int
}

func newQueueSubscriber() *queueSubscriber {
	return &queueSubscriber{ch: make(chan *message.Message, 128)}
}

func (s *queueSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subCount++
	return s.ch, nil
}

func (s *queueSubscriber) Send(msgs ...*message.Message) {
	for _, msg := range msgs {
		s.ch <- msg
	}
}

func (s *queueSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// fakeEngine renders a fixed layout that includes the purpose when present.
type fakeEngine struct {
	err   error
	calls atomic.Int64
}

func (e *fakeEngine) Render(templateID string, ctx map[string]any) (string, error) {
	e.calls.Add(1)
	if e.err != nil {
		return "", e.err
	}
	body := fmt.Sprintf("# %s\n", templateID)
	if intro, ok := ctx["introduction"].(map[string]any); ok {
		body += fmt.Sprintf("\n## Purpose\n\n%v\n", intro["purpose"])
	}
	return body, nil
}

// fakeConverter produces a fake PDF after delay, failing the first failFirst
// calls with err (every call when failFirst is zero and err is set).
type fakeConverter struct {
	delay     time.Duration
	err       error
	failFirst int64

	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func (c *fakeConverter) Convert(ctx context.Context, conv export.Conversion) ([]byte, error) {
	n := c.calls.Add(1)
	cur := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		prev := c.maxInFlight.Load()
		if cur <= prev || c.maxInFlight.CompareAndSwap(prev, cur) {
			break
		}
	}

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, &errspkg.ResourceError{Resource: "conversion", Err: ctx.Err()}
		}
	}
	if c.err != nil && (c.failFirst == 0 || n <= c.failFirst) {
		return nil, c.err
	}
	return []byte("%PDF-1.7 " + conv.Metadata.Title), nil
}

type coordinatorFixture struct {
	coordinator *Coordinator
	subscriber  *queueSubscriber
	publisher   *recordingPublisher
	engine      *fakeEngine
	converter   *fakeConverter
	stats       *PipelineStats
}

type fixtureOption func(*CoordinatorOptions, *coordinatorFixture)

func withMaxConcurrent(n int) fixtureOption {
	return func(o *CoordinatorOptions, _ *coordinatorFixture) { o.MaxConcurrent = n }
}

func withMiddlewares(mws ...message.HandlerMiddleware) fixtureOption {
	return func(o *CoordinatorOptions, _ *coordinatorFixture) { o.Middlewares = mws }
}

func withShutdownGrace(d time.Duration) fixtureOption {
	return func(o *CoordinatorOptions, _ *coordinatorFixture) { o.ShutdownGrace = d }
}

func withExportRetries(n int) fixtureOption {
	return func(o *CoordinatorOptions, _ *coordinatorFixture) { o.ExportRetries = n }
}

func withMetrics(m *PipelineMetrics) fixtureOption {
	return func(o *CoordinatorOptions, _ *coordinatorFixture) { o.Metrics = m }
}

// withEmbeddedTemplates renders through the pongo2 engine and the bundled
// templates instead of fakeEngine.
func withEmbeddedTemplates(t *testing.T) fixtureOption {
	t.Helper()
	engine, err := rendering.NewPongo2Engine("")
	require.NoError(t, err)
	renderer, err := rendering.NewRenderer(engine)
	require.NoError(t, err)
	return func(o *CoordinatorOptions, _ *coordinatorFixture) { o.Renderer = renderer }
}

func newCoordinatorFixture(t *testing.T, pub *recordingPublisher, conv *fakeConverter, opts ...fixtureOption) *coordinatorFixture {
	t.Helper()
	if pub == nil {
		pub = &recordingPublisher{}
	}
	if conv == nil {
		conv = &fakeConverter{}
	}
	f := &coordinatorFixture{
		subscriber: newQueueSubscriber(),
		publisher:  pub,
		engine:     &fakeEngine{},
		converter:  conv,
	}

	registry, err := generators.NewDefaultRegistry()
	require.NoError(t, err)
	renderer, err := rendering.NewRenderer(f.engine)
	require.NoError(t, err)
	exporter, err := export.NewExporter(export.Options{Converter: conv, PDFConcurrency: 2, PDFTimeout: time.Second})
	require.NoError(t, err)
	responses, err := NewResponsePublisher(PublisherOptions{
		Publisher:       pub,
		Topic:           testResponseTopic,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
	require.NoError(t, err)

	co := CoordinatorOptions{
		Subscriber:          f.subscriber,
		Topic:               testRequestTopic,
		Publisher:           responses,
		Registry:            registry,
		Renderer:            renderer,
		Exporter:            exporter,
		Logger:              loggingpkg.NopLogger(),
		MaxConcurrent:       4,
		ExportRetries:       2,
		ExportRetryInterval: time.Millisecond,
		Now:                 func() time.Time { return testNow },
	}
	for _, opt := range opts {
		opt(&co, f)
	}
	f.stats = newPipelineStats(co.MaxConcurrent, 2, defaultErrorClassifier, exporter.InFlightPDF)
	co.Stats = f.stats

	f.coordinator, err = NewCoordinator(co)
	require.NoError(t, err)
	return f
}

// run starts the coordinator and returns a stop function that cancels it and
// waits for Run to return.
func (f *coordinatorFixture) run(t *testing.T) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.coordinator.Run(ctx) }()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case err := <-done:
				require.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("coordinator did not stop")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

func srsData() map[string]any {
	return map[string]any{
		"introduction": map[string]any{
			"purpose": "Describe the flight control software",
			"scope":   "All flight phases",
		},
		"requirements": []any{
			map[string]any{"id": "REQ-1", "statement": "The system shall maintain altitude."},
		},
	}
}

func requestPayload(t *testing.T, requestID, specType string, formats ...string) []byte {
	t.Helper()
	return requestPayloadWithData(t, requestID, specType, srsData(), formats...)
}

func requestPayloadWithData(t *testing.T, requestID, specType string, data map[string]any, formats ...string) []byte {
	t.Helper()
	payload, err := jsoncodec.Marshal(map[string]any{
		"request_id":         requestID,
		"specification_type": specType,
		"output_formats":     formats,
		"data":               data,
		"metadata": map[string]any{
			"title":          "Flight Control",
			"version":        "1.2",
			"author":         "Avionics Team",
			"generated_date": "2026-01-02",
		},
	})
	require.NoError(t, err)
	return payload
}

func requestMessage(t *testing.T, requestID, specType string, formats ...string) *message.Message {
	t.Helper()
	return message.NewMessage("msg-"+requestID, requestPayload(t, requestID, specType, formats...))
}

// waitAcked waits for the message to be acked or nacked and reports which.
func waitAcked(t *testing.T, msg *message.Message) bool {
	t.Helper()
	select {
	case <-msg.Acked():
		return true
	case <-msg.Nacked():
		return false
	case <-time.After(5 * time.Second):
		t.Fatalf("message %s was neither acked nor nacked", msg.UUID)
		return false
	}
}

var errToolchain = &errspkg.ExportError{
	Kind:   errspkg.ExportProcessFailure,
	Format: string(envelope.FormatPDF),
	Err:    errors.New("pandoc not available: executable file not found in $PATH"),
}
