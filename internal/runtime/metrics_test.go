package runtime

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/docflow/internal/runtime/generators"
)

func TestPipelineMetricsRegisterIsIdempotent(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPipelineMetrics(registry, func() int64 { return 3 })
	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	// A second set with the same names reuses the existing registration.
	require.NoError(t, NewPipelineMetrics(registry, nil).Register())

	assert.Equal(t, 3.0, testutil.ToFloat64(m.inFlightPDF))
	count, err := testutil.GatherAndCount(registry, "docflow_in_flight_pdf_conversions")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPipelineMetricsNilReceiver(t *testing.T) {
	var m *PipelineMetrics
	assert.NotPanics(t, func() {
		require.NoError(t, m.Register())
		m.requestStarted()
		m.requestFinished("x", ResultSuccess, time.Second)
		m.exportFinished("PDF", nil, time.Second)
		m.exportRetried("PDF")
		m.publishRetried()
	})
}

func TestPipelineMetricsRecordRequests(t *testing.T) {
	m := NewPipelineMetrics(prometheus.NewRegistry(), nil)
	require.NoError(t, m.Register())

	m.requestStarted()
	m.requestStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.inFlightRequests))

	m.requestFinished("ieee830_srs", ResultSuccess, 50*time.Millisecond)
	m.requestFinished("", ResultNacked, time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlightRequests))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("ieee830_srs", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("unknown", ResultNacked)))

	m.exportFinished("PDF", errors.New("timeout"), time.Second)
	m.exportFinished("HTML", nil, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exportsTotal.WithLabelValues("PDF", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exportsTotal.WithLabelValues("HTML", ResultSuccess)))
}

func TestCoordinatorRecordsExportRetries(t *testing.T) {
	m := NewPipelineMetrics(prometheus.NewRegistry(), nil)
	require.NoError(t, m.Register())

	conv := &fakeConverter{err: errToolchain, failFirst: 2}
	f := newCoordinatorFixture(t, nil, conv, withExportRetries(2), withMetrics(m))
	f.run(t)

	msg := requestMessage(t, "req-metrics", generators.ISO29148SoftwareRequirements, "pdf")
	f.subscriber.Send(msg)
	require.True(t, waitAcked(t, msg))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.exportRetries.WithLabelValues("PDF")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exportsTotal.WithLabelValues("PDF", ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues(generators.ISO29148SoftwareRequirements, ResultSuccess)))
}
