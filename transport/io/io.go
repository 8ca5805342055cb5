// Package io provides a file-based transport for local and batch runs.
// Each line of the input is one request envelope; responses are appended to
// the output as JSON lines carrying the topic, metadata and payload.
package io

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/docflow/internal/runtime/jsoncodec"
	"github.com/drblury/docflow/transport"
)

// TransportName is the pubsub_system value selecting this transport.
const TransportName = "io"

// Stdio selects stdin for input or stdout for output.
const Stdio = "-"

// MaxLineSize bounds a single request line.
const MaxLineSize = 16 << 20

// PollInterval is how long the subscriber waits at end of input before
// looking for appended lines.
var PollInterval = 100 * time.Millisecond

// Stdin and Stdout back the Stdio paths.
var (
	Stdin  io.Reader = os.Stdin
	Stdout io.Writer = os.Stdout
)

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(path string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return NewPublisher(path, logger), nil
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(path string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return NewSubscriber(path, logger), nil
}

func init() {
	Register()
}

// Register adds the IO transport to the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.IOCapabilities)
}

// Build creates an IO transport reading cfg.GetIOInputPath and writing
// cfg.GetIOOutputPath.
func Build(_ context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	publisher, err := PublisherFactory(cfg.GetIOOutputPath(), logger)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(cfg.GetIOInputPath(), logger)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

// Record is one line written by the Publisher.
type Record struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Payload  json.RawMessage   `json:"payload"`
}

// Publisher appends messages to a file, or to Stdout for the Stdio path.
type Publisher struct {
	path   string
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	closed bool
}

func NewPublisher(path string, logger watermill.LoggerAdapter) *Publisher {
	if path == "" {
		path = Stdio
	}
	return &Publisher{path: path, logger: logger}
}

// Publish writes one line per message. Payloads must be JSON documents.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("io publisher is closed")
	}

	lines := make([]byte, 0, 512*len(messages))
	for _, msg := range messages {
		if !json.Valid(msg.Payload) {
			return fmt.Errorf("message %s: payload is not a JSON document", msg.UUID)
		}
		b, err := jsoncodec.Marshal(Record{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  json.RawMessage(msg.Payload),
		})
		if err != nil {
			return fmt.Errorf("encode message %s: %w", msg.UUID, err)
		}
		lines = append(lines, b...)
		lines = append(lines, '\n')
	}

	if p.path == Stdio {
		_, err := Stdout.Write(lines)
		return err
	}

	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(lines); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Subscriber delivers each input line as a message and waits for it to be
// acked or nacked before reading the next. At end of input it keeps polling
// for appended lines until the context is cancelled or the subscriber closed.
type Subscriber struct {
	path   string
	logger watermill.LoggerAdapter

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewSubscriber(path string, logger watermill.LoggerAdapter) *Subscriber {
	if path == "" {
		path = Stdio
	}
	return &Subscriber{path: path, logger: logger, closing: make(chan struct{})}
}

// Subscribe ignores the topic: every line of the input is a request.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	select {
	case <-s.closing:
		return nil, errors.New("io subscriber is closed")
	default:
	}

	in, closeInput, err := s.open()
	if err != nil {
		return nil, err
	}

	out := make(chan *message.Message)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(out)
		defer closeInput()
		s.consume(ctx, in, out, topic)
	}()
	return out, nil
}

func (s *Subscriber) open() (io.Reader, func(), error) {
	if s.path == Stdio {
		return Stdin, func() {}, nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("open io input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func (s *Subscriber) consume(ctx context.Context, in io.Reader, out chan<- *message.Message, topic string) {
	reader := bufio.NewReader(in)
	var pending []byte
	skipping := false
	for {
		chunk, err := reader.ReadSlice('\n')
		if !skipping {
			pending = append(pending, chunk...)
		}
		if len(pending) > MaxLineSize {
			s.logger.Error("Request line too long, skipping", nil, watermill.LogFields{"topic": topic, "size": len(pending)})
			pending = nil
			skipping = true
		}

		switch {
		case err == nil:
			line := trimLine(pending)
			pending = nil
			if skipping {
				skipping = false
				continue
			}
			if len(line) == 0 {
				continue
			}
			if !s.deliver(ctx, out, line, topic) {
				return
			}
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if !s.wait(ctx) {
				return
			}
		default:
			s.logger.Error("Failed to read io input", err, watermill.LogFields{"topic": topic})
			return
		}
	}
}

func (s *Subscriber) deliver(ctx context.Context, out chan<- *message.Message, line []byte, topic string) bool {
	msg := message.NewMessage(watermill.NewULID(), line)
	msg.SetContext(ctx)

	select {
	case out <- msg:
	case <-ctx.Done():
		return false
	case <-s.closing:
		return false
	}

	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		s.logger.Info("Request line nacked, skipping", watermill.LogFields{"uuid": msg.UUID, "topic": topic})
	case <-ctx.Done():
		return false
	case <-s.closing:
		return false
	}
	return true
}

func (s *Subscriber) wait(ctx context.Context) bool {
	timer := time.NewTimer(PollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.closing:
		return false
	}
}

// Close stops every subscription. File subscriptions are waited for; a read
// blocked on stdin cannot be interrupted, so stdin subscriptions are not.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })
	if s.path != Stdio {
		s.wg.Wait()
	}
	return nil
}

func trimLine(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
