package export

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/drblury/docflow/internal/runtime/envelope"
	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/rendering"
)

// Options configures an Exporter.
type Options struct {
	Converter      Converter
	PDFConcurrency int
	PDFTimeout     time.Duration
}

// Exporter produces output documents from canonical text. PDF conversions
// share a dedicated permit pool so they never starve Markdown or HTML.
type Exporter struct {
	converter  Converter
	pdfPermits *semaphore.Weighted
	pdfTimeout time.Duration

	pdfInFlight atomic.Int64
}

func NewExporter(opts Options) (*Exporter, error) {
	if opts.Converter == nil {
		return nil, errspkg.ErrConverterRequired
	}
	if opts.PDFConcurrency <= 0 {
		opts.PDFConcurrency = 1
	}
	return &Exporter{
		converter:  opts.Converter,
		pdfPermits: semaphore.NewWeighted(int64(opts.PDFConcurrency)),
		pdfTimeout: opts.PDFTimeout,
	}, nil
}

// Export renders text into format. It holds no state shared between calls
// other than the PDF permit pool, so formats of one request run in parallel.
func (e *Exporter) Export(ctx context.Context, text rendering.CanonicalText, format envelope.Format, md envelope.Metadata) (envelope.Document, error) {
	var (
		content []byte
		err     error
	)
	switch format {
	case envelope.FormatMarkdown:
		content = []byte(text)
	case envelope.FormatHTML:
		content, err = ToHTML(text, md)
		if err != nil {
			err = &errspkg.ExportError{Kind: errspkg.ExportProcessFailure, Format: string(format), Err: err}
		}
	case envelope.FormatPDF:
		content, err = e.exportPDF(ctx, text, md)
	default:
		err = fmt.Errorf("%w: %q", errspkg.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return envelope.Document{}, err
	}
	return envelope.NewDocument(format, Filename(md, format), content), nil
}

func (e *Exporter) exportPDF(ctx context.Context, text rendering.CanonicalText, md envelope.Metadata) ([]byte, error) {
	if err := e.pdfPermits.Acquire(ctx, 1); err != nil {
		return nil, &errspkg.ResourceError{Resource: "pdf permit", Err: err}
	}
	defer e.pdfPermits.Release(1)

	e.pdfInFlight.Add(1)
	defer e.pdfInFlight.Add(-1)

	return e.converter.Convert(ctx, Conversion{
		Text:     string(text),
		Format:   envelope.FormatPDF,
		Metadata: md,
		Timeout:  e.pdfTimeout,
	})
}

// InFlightPDF reports conversions currently holding a PDF permit.
func (e *Exporter) InFlightPDF() int64 {
	return e.pdfInFlight.Load()
}
