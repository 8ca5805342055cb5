package generators

import (
	"time"

	"github.com/mohae/deepcopy"

	"github.com/drblury/docflow/internal/runtime/envelope"
)

const dateLayout = "2006-01-02"

// DocumentModel is the validated, immutable input of one rendering. It owns a
// private copy of the request data.
type DocumentModel struct {
	variant  Variant
	data     map[string]any
	metadata envelope.Metadata
}

func newDocumentModel(v Variant, data map[string]any, md envelope.Metadata) DocumentModel {
	return DocumentModel{
		variant:  v,
		data:     copyMap(data),
		metadata: md,
	}
}

func (m DocumentModel) Variant() Variant            { return m.variant }
func (m DocumentModel) Metadata() envelope.Metadata { return m.metadata }
func (m DocumentModel) SpecificationType() string   { return m.variant.Type }
func (m DocumentModel) TemplateID() string          { return m.variant.TemplateID }

// Data returns a copy of the validated data.
func (m DocumentModel) Data() map[string]any { return copyMap(m.data) }

// Context is the template substitution context: metadata, data and
// specification at the root, plus every top-level data key. The three
// reserved keys win over data keys of the same name. Each call returns fresh
// maps so engines cannot mutate the model.
func (m DocumentModel) Context() map[string]any {
	data := copyMap(m.data)
	ctx := make(map[string]any, len(data)+3)
	for k, v := range data {
		ctx[k] = v
	}
	ctx["data"] = copyMap(m.data)
	ctx["metadata"] = MetadataContext(m.metadata)
	ctx["specification"] = map[string]any{
		"type":  m.variant.Type,
		"title": m.variant.Title,
	}
	return ctx
}

// MetadataContext flattens metadata into template-friendly values.
func MetadataContext(md envelope.Metadata) map[string]any {
	return map[string]any{
		"title":                  md.Title,
		"project_name":           md.ProjectName,
		"version":                md.Version,
		"author":                 md.Author,
		"organization":           md.Organization,
		"classification":         md.Classification,
		"distribution_statement": md.DistributionStatement,
		"generated_date":         FormatDate(md.GeneratedDate),
		"generated_date_long":    md.GeneratedDate.Format("January 02, 2006"),
	}
}

// FormatDate renders t the way templates and front matter show dates.
func FormatDate(t time.Time) string { return t.Format(dateLayout) }

func copyMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return deepcopy.Copy(in).(map[string]any)
}
