package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/drblury/docflow/internal/runtime/envelope"
	errspkg "github.com/drblury/docflow/internal/runtime/errors"
)

// Conversion is one call into the external document toolchain.
type Conversion struct {
	Text     string
	Format   envelope.Format
	Metadata envelope.Metadata
	Timeout  time.Duration
}

// Converter turns canonical text into a binary format. Implementations
// report *errors.ExportError for toolchain failures and *errors.ResourceError
// when the call could not be attempted.
type Converter interface {
	Convert(ctx context.Context, c Conversion) ([]byte, error)
}

// PandocConverter shells out to pandoc. Each call works in its own
// temporary directory.
type PandocConverter struct {
	// Path is the pandoc executable, resolved through PATH when relative.
	Path string
	// PDFEngine is passed as --pdf-engine.
	PDFEngine string
	// TempDir is the parent of per-call workspaces; empty uses os.TempDir.
	TempDir string
}

func NewPandocConverter(path, pdfEngine string) *PandocConverter {
	if path == "" {
		path = "pandoc"
	}
	if pdfEngine == "" {
		pdfEngine = "xelatex"
	}
	return &PandocConverter{Path: path, PDFEngine: pdfEngine}
}

const maxStderr = 2048

func (p *PandocConverter) Convert(ctx context.Context, c Conversion) ([]byte, error) {
	if c.Format != envelope.FormatPDF {
		return nil, fmt.Errorf("%w: pandoc converter handles PDF, got %s", errspkg.ErrUnsupportedFormat, c.Format)
	}

	workdir, err := os.MkdirTemp(p.TempDir, "docflow-pandoc-*")
	if err != nil {
		return nil, &errspkg.ResourceError{Resource: "workspace", Err: err}
	}
	defer os.RemoveAll(workdir)

	input := filepath.Join(workdir, "document.md")
	output := filepath.Join(workdir, "document.pdf")
	if err := os.WriteFile(input, []byte(c.Text), 0o600); err != nil {
		return nil, &errspkg.ResourceError{Resource: "workspace", Err: err}
	}

	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, p.Path, p.args(input, output, c.Metadata)...)
	cmd.Dir = workdir
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	switch {
	case ctx.Err() != nil:
		// Cancelled by the caller, typically at shutdown.
		return nil, &errspkg.ResourceError{Resource: "conversion", Err: ctx.Err()}
	case runCtx.Err() != nil:
		return nil, &errspkg.ExportError{
			Kind:   errspkg.ExportTimeout,
			Format: string(c.Format),
			Err:    fmt.Errorf("pandoc exceeded %s", c.Timeout),
		}
	case runErr != nil:
		return nil, &errspkg.ExportError{
			Kind:   errspkg.ExportProcessFailure,
			Format: string(c.Format),
			Err:    describeFailure(runErr, stderr.String()),
		}
	}

	pdf, err := os.ReadFile(output)
	if err != nil {
		return nil, &errspkg.ExportError{
			Kind:   errspkg.ExportProcessFailure,
			Format: string(c.Format),
			Err:    fmt.Errorf("pandoc produced no output: %w", err),
		}
	}
	return pdf, nil
}

func (p *PandocConverter) args(input, output string, md envelope.Metadata) []string {
	args := []string{
		input,
		"-o", output,
		"--from=markdown+yaml_metadata_block+hard_line_breaks",
		"--pdf-engine=" + p.PDFEngine,
		"--toc",
		"--toc-depth=3",
		"--number-sections",
		"-V", "geometry:margin=1in",
		"-V", "fontsize=11pt",
		"-V", "documentclass=article",
		"-V", "date=" + md.GeneratedDate.Format("January 02, 2006"),
	}
	if md.Classification != "" {
		c := latexEscaper.Replace(md.Classification)
		args = append(args, "-V", fmt.Sprintf(`header-includes=\markboth{%s}{%s}`, c, c))
	}
	return args
}

// Title and author reach LaTeX through the YAML front matter, which pandoc
// escapes itself. Raw -V values do not get that treatment.
var latexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`~`, `\textasciitilde{}`,
	`^`, `\textasciicircum{}`,
)

func describeFailure(err error, stderr string) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("pandoc not available: %w", err)
	}
	stderr = strings.TrimSpace(stderr)
	if len(stderr) > maxStderr {
		stderr = stderr[:maxStderr] + "..."
	}
	if stderr == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, stderr)
}
