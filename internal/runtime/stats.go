package runtime

import (
	"context"
	"errors"
	"math"
	"runtime"
	"runtime/metrics"
	"sort"
	"sync"
	"time"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// Request results as reported by PipelineStats and the requests_total metric.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNacked  = "nacked"
)

// ErrorCategory buckets request failures for the status snapshot.
type ErrorCategory string

const (
	ErrorCategoryNone       ErrorCategory = "none"
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryRender     ErrorCategory = "render"
	ErrorCategoryExport     ErrorCategory = "export"
	ErrorCategoryResource   ErrorCategory = "resource"
	ErrorCategoryPublish    ErrorCategory = "publish"
	ErrorCategoryOther      ErrorCategory = "other"
)

// ErrorClassifier maps a request failure onto an ErrorCategory.
type ErrorClassifier func(error) ErrorCategory

// RequestCounters counts requests by how they left the pipeline.
type RequestCounters struct {
	Received  uint64 `json:"received"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Nacked    uint64 `json:"nacked"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS       float64 `json:"current_rps"`
	WindowSeconds    float64 `json:"window_seconds"`
	RequestsInWindow uint64  `json:"requests_in_window"`
}

type ErrorBreakdown struct {
	Validation uint64 `json:"validation"`
	Render     uint64 `json:"render"`
	Export     uint64 `json:"export"`
	Resource   uint64 `json:"resource"`
	Publish    uint64 `json:"publish"`
	Other      uint64 `json:"other"`
	LastError  string `json:"last_error,omitempty"`
}

type ResourceUsage struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	Goroutines  int     `json:"goroutines"`
}

// BacklogMetrics describes admission pressure. Capacity is the admission
// limit, MaxInFlight the highest concurrency observed so far.
type BacklogMetrics struct {
	InFlight    uint64 `json:"in_flight"`
	MaxInFlight uint64 `json:"max_in_flight"`
	Capacity    uint64 `json:"capacity"`
	PDFInFlight int64  `json:"pdf_in_flight"`
	PDFCapacity uint64 `json:"pdf_capacity"`
}

// StatsSnapshot is a point-in-time copy of PipelineStats.
type StatsSnapshot struct {
	Requests        RequestCounters   `json:"requests"`
	LastProcessedAt time.Time         `json:"last_processed_at"`
	Latency         LatencyMetrics    `json:"latency"`
	Throughput      ThroughputMetrics `json:"throughput"`
	Errors          ErrorBreakdown    `json:"errors"`
	Backlog         BacklogMetrics    `json:"backlog"`
	Resource        ResourceUsage     `json:"resource"`
}

// PipelineStats aggregates in-process request statistics for the status
// endpoint. All methods are safe for concurrent use and nil receivers.
type PipelineStats struct {
	mu sync.Mutex

	requests        RequestCounters
	totalTime       int64
	lastProcessedAt time.Time
	errors          ErrorBreakdown
	backlog         BacklogMetrics

	latency    *latencyWindow
	throughput *throughputWindow
	sampler    *resourceSampler
	classifier ErrorClassifier
	pdfSource  func() int64
}

func newPipelineStats(capacity, pdfCapacity int, classifier ErrorClassifier, pdfSource func() int64) *PipelineStats {
	if classifier == nil {
		classifier = defaultErrorClassifier
	}
	return &PipelineStats{
		latency:    newLatencyWindow(latencySampleSize),
		throughput: newThroughputWindow(throughputWindowSize),
		sampler:    newResourceSampler(),
		classifier: classifier,
		pdfSource:  pdfSource,
		backlog: BacklogMetrics{
			Capacity:    uint64(max(capacity, 0)),
			PDFCapacity: uint64(max(pdfCapacity, 0)),
		},
	}
}

func (p *PipelineStats) onRequestStart() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests.Received++
	p.backlog.InFlight++
	if p.backlog.InFlight > p.backlog.MaxInFlight {
		p.backlog.MaxInFlight = p.backlog.InFlight
	}
}

func (p *PipelineStats) onRequestFinish(result string, duration time.Duration, err error) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.backlog.InFlight > 0 {
		p.backlog.InFlight--
	}
	switch result {
	case ResultSuccess:
		p.requests.Succeeded++
	case ResultError:
		p.requests.Failed++
	default:
		p.requests.Nacked++
	}
	p.totalTime += int64(duration)
	p.lastProcessedAt = time.Now().UTC()

	p.latency.Add(duration)
	p.throughput.Add(time.Now())
	if err != nil {
		p.errors.Record(p.classifier(err), err)
	}
}

// Snapshot copies the current statistics.
func (p *PipelineStats) Snapshot() StatsSnapshot {
	if p == nil {
		return StatsSnapshot{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := StatsSnapshot{
		Requests:        p.requests,
		LastProcessedAt: p.lastProcessedAt,
		Latency:         p.latency.Snapshot(),
		Errors:          p.errors,
		Backlog:         p.backlog,
		Resource:        p.sampler.Snapshot(),
	}
	finished := p.requests.Succeeded + p.requests.Failed + p.requests.Nacked
	if finished > 0 {
		snap.Latency.AverageNs = p.totalTime / int64(finished)
	}
	tp := p.throughput.Snapshot(time.Now())
	snap.Throughput = ThroughputMetrics{
		CurrentRPS:       tp.CurrentRPS,
		WindowSeconds:    tp.WindowSeconds,
		RequestsInWindow: uint64(tp.Count),
	}
	if p.pdfSource != nil {
		snap.Backlog.PDFInFlight = p.pdfSource()
	}
	return snap
}

// MaxInFlight reports the highest number of requests processed at once.
func (p *PipelineStats) MaxInFlight() uint64 {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backlog.MaxInFlight
}

func (e *ErrorBreakdown) Record(category ErrorCategory, err error) {
	switch category {
	case ErrorCategoryNone:
		if err == nil {
			return
		}
		e.Other++
	case ErrorCategoryValidation:
		e.Validation++
	case ErrorCategoryRender:
		e.Render++
	case ErrorCategoryExport:
		e.Export++
	case ErrorCategoryResource:
		e.Resource++
	case ErrorCategoryPublish:
		e.Publish++
	default:
		e.Other++
	}
	if err != nil {
		e.LastError = err.Error()
	}
}

func defaultErrorClassifier(err error) ErrorCategory {
	var (
		validation *errspkg.ValidationError
		render     *errspkg.RenderError
		export     *errspkg.ExportError
		resource   *errspkg.ResourceError
		publish    *errspkg.PublishError
	)
	switch {
	case err == nil:
		return ErrorCategoryNone
	case errors.As(err, &validation):
		return ErrorCategoryValidation
	case errors.As(err, &render):
		return ErrorCategoryRender
	case errors.As(err, &export):
		return ErrorCategoryExport
	case errors.As(err, &publish):
		return ErrorCategoryPublish
	case errors.As(err, &resource), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorCategoryResource
	default:
		return ErrorCategoryOther
	}
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	if lw == nil || len(lw.samples) == 0 {
		return
	}
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	var out LatencyMetrics
	if lw == nil {
		return out
	}
	out.LastNs = lw.last
	if lw.filled == 0 {
		return out
	}
	samples := make([]int64, lw.filled)
	for i := 0; i < lw.filled; i++ {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })

	var sum int64
	for _, v := range samples {
		sum += v
	}
	out.SampleSize = lw.filled
	out.AverageNs = sum / int64(len(samples))
	out.P50Ns = percentile(samples, 0.50)
	out.P95Ns = percentile(samples, 0.95)
	out.P99Ns = percentile(samples, 0.99)
	return out
}

// percentile interpolates linearly between the two closest ranks of a
// sorted sample set.
func percentile(samples []int64, quantile float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if quantile <= 0 {
		return samples[0]
	}
	if quantile >= 1 {
		return samples[len(samples)-1]
	}
	pos := quantile * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{
		horizon: horizon,
		samples: make([]time.Time, 0, 64),
	}
}

func (tw *throughputWindow) Add(now time.Time) {
	if tw == nil {
		return
	}
	tw.samples = append(tw.samples, now)
	tw.cleanup(now)
}

func (tw *throughputWindow) cleanup(now time.Time) {
	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		copy(tw.samples, tw.samples[idx:])
		tw.samples = tw.samples[:len(tw.samples)-idx]
	}
}

func (tw *throughputWindow) Snapshot(now time.Time) throughputSnapshot {
	if tw == nil {
		return throughputSnapshot{}
	}
	tw.cleanup(now)
	if len(tw.samples) == 0 {
		return throughputSnapshot{}
	}
	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	count := len(tw.samples)
	return throughputSnapshot{
		Count:         count,
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(count) / span.Seconds(),
	}
}

// resourceSampler reads coarse process CPU and memory usage. CPU percent is
// computed against the previous sample, so the first reading reports zero.
type resourceSampler struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	numCPU         float64
}

func newResourceSampler() *resourceSampler {
	return &resourceSampler{
		samples: []metrics.Sample{{Name: "/cpu/classes/user:cpu-seconds"}},
		numCPU:  float64(runtime.NumCPU()),
	}
}

func (r *resourceSampler) Snapshot() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		r.samples = []metrics.Sample{{Name: "/cpu/classes/user:cpu-seconds"}}
	}
	metrics.Read(r.samples)
	sample := r.samples[0]
	haveCPU := sample.Value.Kind() == metrics.KindFloat64

	now := time.Now()
	var cpuPercent float64
	if haveCPU {
		cpuSeconds := sample.Value.Float64()
		if !r.lastSample.IsZero() {
			deltaWall := now.Sub(r.lastSample).Seconds()
			if deltaWall > 0 && r.numCPU > 0 {
				cpuPercent = ((cpuSeconds - r.lastCPUSeconds) / deltaWall) / r.numCPU * 100
			}
		}
		r.lastCPUSeconds = cpuSeconds
	}
	r.lastSample = now

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return ResourceUsage{
		CPUPercent:  cpuPercent,
		MemoryBytes: mem.Alloc,
		Goroutines:  runtime.NumGoroutine(),
	}
}
