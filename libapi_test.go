package docflow

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceExportRejectsMissingConfig(t *testing.T) {
	_, err := NewService(nil, NopLogger(), context.Background(), ServiceDependencies{})
	if !errors.Is(err, ErrConfigRequired) {
		t.Fatalf("expected config required error, got %v", err)
	}
}

func TestConfigExports(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "channel", cfg.PubSubSystem)
	require.NoError(t, ValidateConfig(&cfg))
	require.Error(t, ValidateConfig(nil))
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if _, err := MarshalIndent(payload, "", "  "); err != nil {
		t.Fatalf("marshal indent alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestMetadataExport(t *testing.T) {
	md := NewMetadata(MetadataKeyCorrelationID, "value")
	if md[MetadataKeyCorrelationID] != "value" {
		t.Fatalf("expected metadata to contain key, got %#v", md)
	}
}

func TestFormatExports(t *testing.T) {
	f, ok := ParseFormat("pdf")
	require.True(t, ok)
	assert.Equal(t, FormatPDF, f)
	assert.Equal(t, "application/pdf", f.MIMEType())

	_, ok = ParseFormat("docx")
	assert.False(t, ok)
}

func TestBuiltinVariantsExport(t *testing.T) {
	var types []string
	for _, v := range BuiltinVariants() {
		types = append(types, v.Type)
	}
	assert.Len(t, types, 10)
	assert.Contains(t, types, ISO29148SoftwareRequirements)
	assert.Contains(t, types, TestExecutionReport)
}

func TestErrorExports(t *testing.T) {
	assert.True(t, IsPermanent(&ValidationError{Field: "data", Reason: "is required"}))
	assert.True(t, IsPermanent(&ExportError{Format: "PDF"}))
	assert.False(t, IsPermanent(&PublishError{Topic: "t"}))
	assert.False(t, IsPermanent(&ResourceError{Resource: "permit"}))
}

func TestTransportRegistryExports(t *testing.T) {
	caps := GetCapabilities("kafka")
	assert.True(t, caps.SupportsCompetingConsumers)
	assert.True(t, DefaultTransportRegistry.Has("channel"))
}

func TestLoggerExports(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewJSONServiceLogger(&buf, "debug")
	require.NoError(t, err)
	logger.Info("boot", LogFields{"component": "test"})
	assert.Contains(t, buf.String(), `"component":"test"`)

	_, err = NewJSONServiceLogger(nil, "info")
	require.Error(t, err)
}
