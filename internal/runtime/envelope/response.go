package envelope

import "time"

// Status of a generation response.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Document is one rendered artifact. Content is carried base64 encoded.
type Document struct {
	Format    Format `json:"format"`
	Content   []byte `json:"content_base64"`
	Filename  string `json:"filename"`
	MIMEType  string `json:"mime_type"`
	SizeBytes int    `json:"size_bytes"`
}

// NewDocument derives the MIME type and size from format and content.
func NewDocument(format Format, filename string, content []byte) Document {
	return Document{
		Format:    format,
		Content:   content,
		Filename:  filename,
		MIMEType:  format.MIMEType(),
		SizeBytes: len(content),
	}
}

// Response answers exactly one request. Documents is never null on the wire
// and Error is null unless Status is StatusError.
type Response struct {
	RequestID   string     `json:"request_id"`
	Status      Status     `json:"status"`
	Documents   []Document `json:"documents"`
	Error       *string    `json:"error"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// Success builds a success response carrying docs in the given order.
func Success(requestID string, docs []Document, at time.Time) Response {
	if docs == nil {
		docs = []Document{}
	}
	return Response{
		RequestID:   requestID,
		Status:      StatusSuccess,
		Documents:   docs,
		GeneratedAt: at.UTC(),
	}
}

// Failure builds an error response with an empty document list.
func Failure(requestID string, cause error, at time.Time) Response {
	msg := "document generation failed"
	if cause != nil {
		msg = cause.Error()
	}
	if requestID == "" {
		requestID = UnknownRequestID
	}
	return Response{
		RequestID:   requestID,
		Status:      StatusError,
		Documents:   []Document{},
		Error:       &msg,
		GeneratedAt: at.UTC(),
	}
}
