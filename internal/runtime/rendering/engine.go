package rendering

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
)

// TemplateExt is appended to template ids when resolving files.
const TemplateExt = ".md"

//go:embed templates/*.md
var embedded embed.FS

// Engine substitutes a context into a named template.
type Engine interface {
	Render(templateID string, context map[string]any) (string, error)
}

// MissingFieldError is returned by engines when a template marks a reference
// as required and the context does not hold it.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("required field %q is missing", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return errspkg.ErrMissingField }

// Pongo2Engine renders Django-syntax templates. Templates are parsed once
// and cached; execution is safe for concurrent use.
type Pongo2Engine struct {
	mu        sync.RWMutex
	set       *pongo2.TemplateSet
	templates map[string]*pongo2.Template
}

var registerFilters sync.Once

// NewPongo2Engine loads templates from dir, falling back to the embedded
// templates for ids dir does not provide. An empty dir uses only the
// embedded set.
func NewPongo2Engine(dir string) (*Pongo2Engine, error) {
	var loaders []pongo2.TemplateLoader
	if dir != "" {
		loader, err := pongo2.NewLocalFileSystemLoader(dir)
		if err != nil {
			return nil, fmt.Errorf("rendering: create local loader: %w", err)
		}
		loaders = append(loaders, loader)
	}
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		return nil, fmt.Errorf("rendering: open embedded templates: %w", err)
	}
	loaders = append(loaders, pongo2.NewFSLoader(sub))

	registerFilters.Do(registerDefaultFilters)

	return &Pongo2Engine{
		set:       pongo2.NewSet("docflow", loaders...),
		templates: make(map[string]*pongo2.Template),
	}, nil
}

// Render executes the template named templateID + TemplateExt.
func (e *Pongo2Engine) Render(templateID string, context map[string]any) (string, error) {
	tmpl, err := e.template(templateID + TemplateExt)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteWriter(identifierContext(context), &buf); err != nil {
		if field, ok := missingField(err); ok {
			return "", &MissingFieldError{Field: field}
		}
		return "", fmt.Errorf("execute template %q: %w", templateID, err)
	}
	return buf.String(), nil
}

func (e *Pongo2Engine) template(path string) (*pongo2.Template, error) {
	e.mu.RLock()
	if tmpl, ok := e.templates[path]; ok {
		e.mu.RUnlock()
		return tmpl, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if tmpl, ok := e.templates[path]; ok {
		return tmpl, nil
	}

	tmpl, err := e.set.FromFile(path)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", errspkg.ErrTemplateNotFound, path)
		}
		return nil, fmt.Errorf("load template %q: %w", path, err)
	}
	e.templates[path] = tmpl
	return tmpl, nil
}

// identifierContext drops root keys pongo2 refuses as identifiers, such as
// data keys containing dashes.
func identifierContext(in map[string]any) pongo2.Context {
	out := make(pongo2.Context, len(in))
	for k, v := range in {
		if isIdentifier(k) {
			out[k] = v
		}
	}
	return out
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func isNotFound(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var perr *pongo2.Error
	if errors.As(err, &perr) && perr.OrigError != nil {
		if errors.Is(perr.OrigError, fs.ErrNotExist) {
			return true
		}
		if notFoundMessage(perr.OrigError.Error()) {
			return true
		}
	}
	return notFoundMessage(err.Error())
}

// pongo2 reports unresolvable templates with plain string errors.
func notFoundMessage(msg string) bool {
	return strings.Contains(msg, "unable to resolve template") ||
		strings.Contains(msg, "no such file") ||
		strings.Contains(msg, "file does not exist")
}

func missingField(err error) (string, bool) {
	var mf *MissingFieldError
	if errors.As(err, &mf) {
		return mf.Field, true
	}
	var perr *pongo2.Error
	if errors.As(err, &perr) && perr.OrigError != nil && errors.As(perr.OrigError, &mf) {
		return mf.Field, true
	}
	return "", false
}

func registerDefaultFilters() {
	if !pongo2.FilterExists("required") {
		_ = pongo2.RegisterFilter("required", filterRequired)
	}
	if !pongo2.FilterExists("mdcell") {
		_ = pongo2.RegisterFilter("mdcell", filterMarkdownCell)
	}
}

// filterRequired fails rendering when its input is absent or blank. The
// parameter names the field for the resulting error.
func filterRequired(in *pongo2.Value, param *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if in == nil || in.IsNil() || (in.IsString() && strings.TrimSpace(in.String()) == "") {
		field := "value"
		if param != nil && !param.IsNil() && param.String() != "" {
			field = param.String()
		}
		return nil, &pongo2.Error{Sender: "filter:required", OrigError: &MissingFieldError{Field: field}}
	}
	return in, nil
}

// filterMarkdownCell makes a value safe to place inside a Markdown table cell.
// Floats print in their shortest form so JSON integers stay integers.
func filterMarkdownCell(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	if in == nil || in.IsNil() {
		return pongo2.AsValue(""), nil
	}
	s := in.String()
	if in.IsFloat() {
		s = strconv.FormatFloat(in.Float(), 'f', -1, 64)
	}
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return pongo2.AsValue(s), nil
}
