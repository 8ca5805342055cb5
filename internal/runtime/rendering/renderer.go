package rendering

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/drblury/docflow/internal/runtime/envelope"
	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/generators"
)

const frontMatterDelim = "---"

// CanonicalText is the Markdown document every output format derives from. It
// starts with a YAML front matter block.
type CanonicalText string

func (t CanonicalText) String() string { return string(t) }

// Body returns the text without its front matter block.
func (t CanonicalText) Body() string {
	_, body := SplitFrontMatter(string(t))
	return body
}

type frontMatter struct {
	Title          string `yaml:"title"`
	Author         string `yaml:"author"`
	Version        string `yaml:"version"`
	Project        string `yaml:"project"`
	Organization   string `yaml:"organization"`
	Classification string `yaml:"classification,omitempty"`
	Distribution   string `yaml:"distribution,omitempty"`
	Date           string `yaml:"date"`
}

// Renderer turns document models into canonical text through an Engine.
type Renderer struct {
	engine Engine
}

func NewRenderer(engine Engine) (*Renderer, error) {
	if engine == nil {
		return nil, errspkg.ErrEngineRequired
	}
	return &Renderer{engine: engine}, nil
}

// Render substitutes model into its variant's template. Output depends only
// on the model, so equal models render to byte-identical text. Every failure
// is a permanent *errors.RenderError.
func (r *Renderer) Render(model generators.DocumentModel) (CanonicalText, error) {
	templateID := model.TemplateID()
	body, err := r.engine.Render(templateID, model.Context())
	if err != nil {
		var missing *MissingFieldError
		if errors.As(err, &missing) {
			return "", &errspkg.RenderError{Template: templateID, Field: missing.Field, Err: err}
		}
		return "", &errspkg.RenderError{Template: templateID, Err: err}
	}

	header, err := renderFrontMatter(model.Metadata())
	if err != nil {
		return "", &errspkg.RenderError{Template: templateID, Err: err}
	}

	var sb strings.Builder
	sb.Grow(len(header) + len(body) + 1)
	sb.WriteString(header)
	sb.WriteString("\n")
	sb.WriteString(strings.TrimLeft(body, "\n"))
	if !strings.HasSuffix(body, "\n") {
		sb.WriteString("\n")
	}
	return CanonicalText(sb.String()), nil
}

func renderFrontMatter(md envelope.Metadata) (string, error) {
	fm := frontMatter{
		Title:          md.Title,
		Author:         md.Author,
		Version:        md.Version,
		Project:        md.ProjectName,
		Organization:   md.Organization,
		Classification: md.Classification,
		Distribution:   md.DistributionStatement,
		Date:           generators.FormatDate(md.GeneratedDate),
	}
	raw, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("encode front matter: %w", err)
	}
	return frontMatterDelim + "\n" + string(raw) + frontMatterDelim + "\n", nil
}

// SplitFrontMatter separates a leading YAML block delimited by --- lines from
// the rest of text. Text without such a block is returned unchanged as body.
func SplitFrontMatter(text string) (front, body string) {
	if !strings.HasPrefix(text, frontMatterDelim+"\n") {
		return "", text
	}
	rest := text[len(frontMatterDelim)+1:]
	end := strings.Index(rest, "\n"+frontMatterDelim+"\n")
	if end < 0 {
		return "", text
	}
	front = rest[:end+1]
	body = strings.TrimLeft(rest[end+len(frontMatterDelim)+2:], "\n")
	return front, body
}
