package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	configpkg "github.com/drblury/docflow/internal/runtime/config"
	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/export"
	"github.com/drblury/docflow/internal/runtime/generators"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
	"github.com/drblury/docflow/internal/runtime/rendering"
	transportpkg "github.com/drblury/docflow/internal/runtime/transport"
	brokers "github.com/drblury/docflow/transport"
)

// MetricsPath is where Prometheus metrics are served when enabled.
const MetricsPath = "/metrics"

const httpShutdownTimeout = 5 * time.Second

// ServiceDependencies holds the optional collaborators of a Service. Zero
// fields fall back to the production implementations.
type ServiceDependencies struct {
	// Specifications are registered next to the built-in variants.
	Specifications []generators.Variant
	// Engine replaces the pongo2 engine loading TemplatesPath.
	Engine rendering.Engine
	// Converter replaces the pandoc PDF converter.
	Converter                 export.Converter
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory
	ErrorClassifier           ErrorClassifier
	Hooks                     RequestHooks
	// MetricsRegisterer receives every collector when metrics are enabled.
	// It defaults to the Prometheus default registry.
	MetricsRegisterer prometheus.Registerer
	// MetricsGatherer backs the metrics endpoint. When nil the registerer is
	// used if it is also a Gatherer.
	MetricsGatherer prometheus.Gatherer
	Clock           func() time.Time
}

// Service wires the transport, the document pipeline and the HTTP side
// endpoints into one runnable unit.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher    message.Publisher
	subscriber   message.Subscriber
	capabilities brokers.Capabilities

	registry  *generators.Registry
	renderer  *rendering.Renderer
	exporter  *export.Exporter
	responses *ResponsePublisher

	middlewares   []message.HandlerMiddleware
	middlewaresMu sync.Mutex

	metrics        *PipelineMetrics
	metricsBuilder *metrics.PrometheusMetricsBuilder
	gatherer       prometheus.Gatherer
	stats          *PipelineStats

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex

	clock     func() time.Time
	started   atomic.Bool
	startedAt time.Time
}

// NewService constructs a Service for the supplied configuration. Register
// extra middlewares and HTTP handlers on the returned Service before calling
// Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	cfg := conf.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info("Creating document service", loggingpkg.LogFields{
		"pubsub_system": cfg.PubSubSystem,
		"config":        cfg.String(),
	})

	s := &Service{
		Conf:   &cfg,
		Logger: log,
		clock:  deps.Clock,
	}
	if s.clock == nil {
		s.clock = time.Now
	}

	if err := s.buildPipeline(deps); err != nil {
		return nil, err
	}
	if err := s.buildTransport(ctx, deps); err != nil {
		return nil, err
	}

	classifier := deps.ErrorClassifier
	if classifier == nil {
		classifier = defaultErrorClassifier
	}
	s.stats = newPipelineStats(cfg.MaxConcurrentMessages, cfg.PDFConcurrencyLimit, classifier, s.exporter.InFlightPDF)

	responses, err := NewResponsePublisher(PublisherOptions{
		Publisher:       s.publisher,
		Topic:           cfg.ResponseTopic,
		MaxAttempts:     cfg.PublishMaxAttempts,
		InitialInterval: cfg.PublishInitialInterval,
		MaxInterval:     cfg.PublishMaxInterval,
		Logger:          log,
		Metrics:         s.metrics,
	})
	if err != nil {
		s.closeTransport()
		return nil, err
	}
	s.responses = responses

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		s.closeTransport()
		return nil, err
	}
	return s, nil
}

func (s *Service) buildPipeline(deps ServiceDependencies) error {
	registry, err := generators.NewDefaultRegistry(deps.Specifications...)
	if err != nil {
		return err
	}
	s.registry = registry

	engine := deps.Engine
	if engine == nil {
		pongo, err := rendering.NewPongo2Engine(s.Conf.TemplatesPath)
		if err != nil {
			return err
		}
		engine = pongo
	}
	if s.renderer, err = rendering.NewRenderer(engine); err != nil {
		return err
	}

	converter := deps.Converter
	if converter == nil {
		converter = export.NewPandocConverter(s.Conf.PandocPath, s.Conf.PDFEngine)
	}
	s.exporter, err = export.NewExporter(export.Options{
		Converter:      converter,
		PDFConcurrency: s.Conf.PDFConcurrencyLimit,
		PDFTimeout:     s.Conf.PDFTimeout,
	})
	return err
}

func (s *Service) buildTransport(ctx context.Context, deps ServiceDependencies) error {
	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	t, err := factory.Build(ctx, s.Conf, loggingpkg.NewWatermillAdapter(s.Logger))
	if err != nil {
		return &errspkg.TransportError{Op: "build", Err: err}
	}
	s.publisher = t.Publisher
	s.subscriber = t.Subscriber
	s.capabilities = t.Capabilities
	if s.capabilities.Name == "" {
		s.capabilities = brokers.Capabilities{Name: s.Conf.PubSubSystem}
	}

	if !s.Conf.MetricsEnabled {
		return nil
	}

	registerer := deps.MetricsRegisterer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	s.gatherer = deps.MetricsGatherer
	if s.gatherer == nil {
		if g, ok := registerer.(prometheus.Gatherer); ok {
			s.gatherer = g
		} else {
			s.gatherer = prometheus.DefaultGatherer
		}
	}

	builder := metrics.NewPrometheusMetricsBuilder(registerer, metricsNamespace, s.Conf.PubSubSystem)
	s.metricsBuilder = &builder
	publisher, err := builder.DecoratePublisher(s.publisher)
	if err != nil {
		s.closeTransport()
		return fmt.Errorf("decorate publisher with metrics: %w", err)
	}
	subscriber, err := builder.DecorateSubscriber(s.subscriber)
	if err != nil {
		s.closeTransport()
		return fmt.Errorf("decorate subscriber with metrics: %w", err)
	}
	s.publisher, s.subscriber = publisher, subscriber

	s.metrics = NewPipelineMetrics(registerer, s.exporter.InFlightPDF)
	if err := s.metrics.Register(); err != nil {
		s.closeTransport()
		return err
	}
	return nil
}

// Start serves the side endpoints and consumes requests until ctx is
// cancelled, then drains in-flight work. A Service can only be started once.
func (s *Service) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("docflow: service already started")
	}
	s.startedAt = s.clock()

	coordinator, err := s.newCoordinator()
	if err != nil {
		return err
	}

	s.registerStatusEndpoint()
	s.registerMetricsEndpoint()
	servers, err := s.startHTTPServers()
	if err != nil {
		return err
	}
	defer s.shutdownHTTPServers(servers)

	s.Logger.Info("Starting document service", loggingpkg.LogFields{
		"transport":       s.capabilities.Name,
		"request_topic":   s.Conf.RequestSubscription,
		"response_topic":  s.Conf.ResponseTopic,
		"max_concurrency": s.Conf.MaxConcurrentMessages,
		"specifications":  s.registry.Types(),
	})
	return coordinator.Run(ctx)
}

// Close releases the transport. Call it after Start returned.
func (s *Service) Close() error {
	var errs []error
	if s.subscriber != nil {
		if err := s.subscriber.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) closeTransport() {
	if err := s.Close(); err != nil {
		s.Logger.Error("Failed to close transport", err, nil)
	}
}

func (s *Service) newCoordinator() (*Coordinator, error) {
	s.middlewaresMu.Lock()
	middlewares := append([]message.HandlerMiddleware(nil), s.middlewares...)
	s.middlewaresMu.Unlock()

	return NewCoordinator(CoordinatorOptions{
		Subscriber:          s.subscriber,
		Topic:               s.Conf.RequestSubscription,
		Consumers:           s.capabilities.Consumers(s.Conf.MaxConcurrentMessages),
		Publisher:           s.responses,
		Registry:            s.registry,
		Renderer:            s.renderer,
		Exporter:            s.exporter,
		Logger:              s.Logger,
		MaxConcurrent:       s.Conf.MaxConcurrentMessages,
		ExportRetries:       s.Conf.PDFMaxRetries,
		ExportRetryInterval: s.Conf.PDFRetryInterval,
		ShutdownGrace:       s.Conf.ShutdownGracePeriod,
		Middlewares:         middlewares,
		Metrics:             s.metrics,
		Stats:               s.stats,
		Now:                 s.clock,
	})
}

// Capabilities reports what the configured transport supports.
func (s *Service) Capabilities() brokers.Capabilities {
	return s.capabilities
}

// Specifications lists the registered specification types.
func (s *Service) Specifications() []string {
	return s.registry.Types()
}

func (s *Service) registerMetricsEndpoint() {
	if !s.Conf.MetricsEnabled || s.Conf.MetricsPort == 0 || s.gatherer == nil {
		return
	}
	s.RegisterHTTPHandler(s.Conf.MetricsPort, MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// RegisterHTTPHandler mounts handler on pattern of the server listening on
// port. Handlers must be registered before Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() ([]*http.Server, error) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	servers := make([]*http.Server, 0, len(s.httpServers))
	for port, mux := range s.httpServers {
		addr := ":" + strconv.Itoa(port)
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			s.shutdownHTTPServers(servers)
			return nil, fmt.Errorf("listen on %s: %w", addr, err)
		}
		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, server)

		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func() {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server stopped", err, loggingpkg.LogFields{"address": addr})
			}
		}()
	}
	return servers, nil
}

func (s *Service) shutdownHTTPServers(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			s.Logger.Error("Failed to stop HTTP server", err, loggingpkg.LogFields{"address": server.Addr})
		}
	}
}
