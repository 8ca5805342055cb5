package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "docflow"

// PipelineMetrics exposes request, export and publish counters to Prometheus.
// A nil *PipelineMetrics records nothing.
type PipelineMetrics struct {
	mu sync.Mutex

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	exportsTotal     *prometheus.CounterVec
	exportDuration   *prometheus.HistogramVec
	exportRetries    *prometheus.CounterVec
	publishRetries   prometheus.Counter
	inFlightRequests prometheus.Gauge
	inFlightPDF      prometheus.GaugeFunc

	registerer prometheus.Registerer
	registered bool
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewPipelineMetrics creates the collectors. pdfInFlight feeds the
// in_flight_pdf_conversions gauge and may be nil.
func NewPipelineMetrics(registerer prometheus.Registerer, pdfInFlight func() int64) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if pdfInFlight == nil {
		pdfInFlight = func() int64 { return 0 }
	}

	durationBuckets := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
	return &PipelineMetrics{
		registerer:      registerer,
		requestsTotal:   newCounterVec("requests_total", "Document requests by specification type and result", []string{"specification_type", "status"}),
		requestDuration: newHistogramVec("request_duration_seconds", "Time from intake to acknowledgement of a document request", durationBuckets, []string{"specification_type"}),
		exportsTotal:    newCounterVec("exports_total", "Format exports by format and result", []string{"format", "result"}),
		exportDuration:  newHistogramVec("export_duration_seconds", "Duration of a single format export including retries", durationBuckets, []string{"format"}),
		exportRetries:   newCounterVec("export_retries_total", "Export attempts repeated after a conversion failure", []string{"format"}),
		publishRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "publish_retries_total",
			Help:      "Response publications repeated after a transport failure",
		}),
		inFlightRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "in_flight_requests",
			Help:      "Requests currently holding an admission permit",
		}),
		inFlightPDF: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "in_flight_pdf_conversions",
			Help:      "PDF conversions currently holding a PDF permit",
		}, func() float64 { return float64(pdfInFlight()) }),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *PipelineMetrics) Register() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.requestsTotal,
		m.requestDuration,
		m.exportsTotal,
		m.exportDuration,
		m.exportRetries,
		m.publishRetries,
		m.inFlightRequests,
		m.inFlightPDF,
	}
	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *PipelineMetrics) requestStarted() {
	if m == nil {
		return
	}
	m.inFlightRequests.Inc()
}

func (m *PipelineMetrics) requestFinished(specType, result string, d time.Duration) {
	if m == nil {
		return
	}
	if specType == "" {
		specType = "unknown"
	}
	m.inFlightRequests.Dec()
	m.requestsTotal.WithLabelValues(specType, result).Inc()
	m.requestDuration.WithLabelValues(specType).Observe(d.Seconds())
}

func (m *PipelineMetrics) exportFinished(format string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	m.exportsTotal.WithLabelValues(format, result).Inc()
	m.exportDuration.WithLabelValues(format).Observe(d.Seconds())
}

func (m *PipelineMetrics) exportRetried(format string) {
	if m == nil {
		return
	}
	m.exportRetries.WithLabelValues(format).Inc()
}

func (m *PipelineMetrics) publishRetried() {
	if m == nil {
		return
	}
	m.publishRetries.Inc()
}
