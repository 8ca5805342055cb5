package export

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/drblury/docflow/internal/runtime/envelope"
	"github.com/drblury/docflow/internal/runtime/rendering"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="generator" content="docflow">{% if author %}
<meta name="author" content="{{ author }}">{% endif %}
<title>{{ title }}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; max-width: 60rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; color: #1f2328; }
table { border-collapse: collapse; margin: 1rem 0; }
th, td { border: 1px solid #d0d7de; padding: 0.35rem 0.7rem; text-align: left; vertical-align: top; }
code, pre { background: #f6f8fa; }
pre { padding: 0.75rem; overflow-x: auto; }
.classification { text-align: center; font-weight: bold; letter-spacing: 0.05em; }
</style>
</head>
<body>
{% if classification %}<div class="classification">{{ classification }}</div>
{% endif %}<main>
{{ body|safe }}</main>
{% if classification %}<div class="classification">{{ classification }}</div>
{% endif %}</body>
</html>
`

var (
	htmlOnce   sync.Once
	markdown   goldmark.Markdown
	sanitizer  *bluemonday.Policy
	htmlPage   *pongo2.Template
	htmlSetErr error
)

func htmlTools() (goldmark.Markdown, *bluemonday.Policy, *pongo2.Template, error) {
	htmlOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		)
		sanitizer = bluemonday.UGCPolicy()
		htmlPage, htmlSetErr = pongo2.FromString(pageTemplate)
	})
	return markdown, sanitizer, htmlPage, htmlSetErr
}

// ToHTML converts canonical text into a standalone, sanitized HTML5 page.
// The front matter block is dropped; its title names the page.
func ToHTML(text rendering.CanonicalText, md envelope.Metadata) ([]byte, error) {
	md2html, policy, page, err := htmlTools()
	if err != nil {
		return nil, fmt.Errorf("html page template: %w", err)
	}

	var body bytes.Buffer
	if err := md2html.Convert([]byte(text.Body()), &body); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	clean := policy.SanitizeBytes(body.Bytes())

	title := md.Title
	if title == "" {
		title = DefaultStem
	}
	var out bytes.Buffer
	err = page.ExecuteWriter(pongo2.Context{
		"title":          title,
		"author":         md.Author,
		"classification": md.Classification,
		"body":           string(clean),
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("render html page: %w", err)
	}
	return out.Bytes(), nil
}
