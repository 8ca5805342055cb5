package envelope

import (
	"fmt"
	"strings"
	"time"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/jsoncodec"
)

// UnknownRequestID is echoed when a payload is too broken to recover its id.
const UnknownRequestID = "unknown"

// Metadata describes the document being produced. Only Title, Version and
// GeneratedDate influence filenames and timestamps; the rest is rendered.
type Metadata struct {
	Title                 string    `json:"title"`
	ProjectName           string    `json:"project_name"`
	Version               string    `json:"version"`
	Author                string    `json:"author"`
	Organization          string    `json:"organization"`
	Classification        string    `json:"classification,omitempty"`
	DistributionStatement string    `json:"distribution_statement,omitempty"`
	GeneratedDate         time.Time `json:"generated_date"`
}

// Request is a decoded and validated generation request.
type Request struct {
	RequestID         string
	SpecificationType string
	OutputFormats     []Format
	Data              map[string]any
	Metadata          Metadata
}

type rawMetadata struct {
	Title                 string `json:"title"`
	ProjectName           string `json:"project_name"`
	Version               string `json:"version"`
	Author                string `json:"author"`
	Organization          string `json:"organization"`
	Classification        string `json:"classification"`
	DistributionStatement string `json:"distribution_statement"`
	GeneratedDate         string `json:"generated_date"`
}

type rawRequest struct {
	RequestID         string       `json:"request_id"`
	SpecificationType string       `json:"specification_type"`
	OutputFormats     []string     `json:"output_formats"`
	Data              any          `json:"data"`
	Metadata          *rawMetadata `json:"metadata"`
}

var dateLayouts = []string{time.RFC3339Nano, time.DateTime, time.DateOnly}

// Decode parses payload into a Request. Every failure is a
// *errors.ValidationError naming the offending field. now supplies the
// generation date when the request omits one.
func Decode(payload []byte, now time.Time) (Request, error) {
	var raw rawRequest
	if err := jsoncodec.Unmarshal(payload, &raw); err != nil {
		return Request{}, &errspkg.ValidationError{Reason: "payload is not a valid request document", Err: err}
	}

	req := Request{
		RequestID:         strings.TrimSpace(raw.RequestID),
		SpecificationType: strings.TrimSpace(raw.SpecificationType),
	}
	if req.RequestID == "" {
		return Request{}, errspkg.NewValidationError("request_id", "is required")
	}
	if req.SpecificationType == "" {
		return Request{}, errspkg.NewValidationError("specification_type", "is required")
	}

	formats, err := normalizeFormats(raw.OutputFormats)
	if err != nil {
		return Request{}, err
	}
	req.OutputFormats = formats

	switch data := raw.Data.(type) {
	case map[string]any:
		req.Data = data
	case nil:
		return Request{}, errspkg.NewValidationError("data", "is required")
	default:
		return Request{}, errspkg.NewValidationError("data", "must be a JSON object")
	}

	md, err := decodeMetadata(raw.Metadata, now)
	if err != nil {
		return Request{}, err
	}
	req.Metadata = md
	return req, nil
}

// normalizeFormats matches names case-insensitively and drops duplicates,
// keeping the first occurrence order.
func normalizeFormats(names []string) ([]Format, error) {
	if len(names) == 0 {
		return nil, &errspkg.ValidationError{Field: "output_formats", Reason: "at least one format is required", Err: errspkg.ErrNoOutputFormats}
	}
	seen := make(map[Format]struct{}, len(names))
	out := make([]Format, 0, len(names))
	for i, name := range names {
		f, ok := ParseFormat(name)
		if !ok {
			return nil, &errspkg.ValidationError{
				Field:  fmt.Sprintf("output_formats[%d]", i),
				Reason: fmt.Sprintf("unsupported format %q", name),
				Err:    errspkg.ErrUnsupportedFormat,
			}
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

func decodeMetadata(raw *rawMetadata, now time.Time) (Metadata, error) {
	if raw == nil {
		return Metadata{GeneratedDate: now.UTC()}, nil
	}
	md := Metadata{
		Title:                 strings.TrimSpace(raw.Title),
		ProjectName:           raw.ProjectName,
		Version:               strings.TrimSpace(raw.Version),
		Author:                raw.Author,
		Organization:          raw.Organization,
		Classification:        raw.Classification,
		DistributionStatement: raw.DistributionStatement,
		GeneratedDate:         now.UTC(),
	}
	if raw.GeneratedDate == "" {
		return md, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw.GeneratedDate); err == nil {
			md.GeneratedDate = t.UTC()
			return md, nil
		}
	}
	return Metadata{}, errspkg.NewValidationError("metadata.generated_date", "must be an RFC 3339 timestamp or YYYY-MM-DD date")
}

// RecoverRequestID pulls request_id out of a payload that failed to decode.
func RecoverRequestID(payload []byte) string {
	if id, ok := jsoncodec.LookupString(payload, "request_id"); ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	return UnknownRequestID
}
