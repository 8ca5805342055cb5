package export

import (
	"strings"
	"unicode"

	"github.com/gosimple/slug"

	"github.com/drblury/docflow/internal/runtime/envelope"
)

// DefaultStem names documents whose title yields an empty slug.
const DefaultStem = "document"

const maxStemLength = 96

// Filename derives slug(title)_v{version}.{ext}. The version suffix is
// omitted when version is blank.
func Filename(md envelope.Metadata, format envelope.Format) string {
	stem := Slug(md.Title)
	if stem == "" {
		stem = DefaultStem
	}
	if v := sanitizeVersion(md.Version); v != "" {
		stem += "_v" + v
	}
	return stem + "." + format.Extension()
}

func init() {
	slug.MaxLength = maxStemLength
}

// Slug transliterates s to ASCII, lowercases it and joins the words with
// dashes. Long titles are cut at a word boundary.
func Slug(s string) string {
	return slug.Make(s)
}

func sanitizeVersion(v string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(v) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), ".-")
}
