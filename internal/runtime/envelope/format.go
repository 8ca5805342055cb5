package envelope

import "strings"

// Format is an output representation a request may ask for.
type Format string

const (
	FormatMarkdown Format = "Markdown"
	FormatHTML     Format = "HTML"
	FormatPDF      Format = "PDF"
)

// Formats lists every supported output format.
var Formats = []Format{FormatMarkdown, FormatHTML, FormatPDF}

var formatInfo = map[Format]struct {
	ext  string
	mime string
}{
	FormatMarkdown: {ext: "md", mime: "text/markdown"},
	FormatHTML:     {ext: "html", mime: "text/html"},
	FormatPDF:      {ext: "pdf", mime: "application/pdf"},
}

// ParseFormat matches name case-insensitively against the supported formats.
func ParseFormat(name string) (Format, bool) {
	for _, f := range Formats {
		if strings.EqualFold(strings.TrimSpace(name), string(f)) {
			return f, true
		}
	}
	return "", false
}

// Extension returns the filename extension without the dot.
func (f Format) Extension() string { return formatInfo[f].ext }

// MIMEType returns the fixed media type for f.
func (f Format) MIMEType() string { return formatInfo[f].mime }

func (f Format) String() string { return string(f) }
