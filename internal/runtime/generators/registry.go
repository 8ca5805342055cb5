package generators

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/drblury/docflow/internal/runtime/envelope"
	errspkg "github.com/drblury/docflow/internal/runtime/errors"
)

// Variant describes one supported specification type: how its data is
// validated and which template renders it.
type Variant struct {
	Type       string
	Title      string
	TemplateID string
	Rules      []Rule
}

// Registry maps specification types to variants. It is immutable once built,
// so it is safe for concurrent use without locking.
type Registry struct {
	variants map[string]Variant
	rules    map[string]ruleSet
	types    []string
}

// NewRegistry builds a registry from variants. Empty or duplicate types are
// rejected. A variant without TemplateID renders with the template named
// after its type.
func NewRegistry(variants ...Variant) (*Registry, error) {
	r := &Registry{
		variants: make(map[string]Variant, len(variants)),
		rules:    make(map[string]ruleSet, len(variants)),
	}
	for _, v := range variants {
		v.Type = strings.TrimSpace(v.Type)
		if v.Type == "" {
			return nil, fmt.Errorf("variant type is required")
		}
		if _, dup := r.variants[v.Type]; dup {
			return nil, fmt.Errorf("variant %q registered twice", v.Type)
		}
		if v.TemplateID == "" {
			v.TemplateID = v.Type
		}
		if v.Title == "" {
			v.Title = v.Type
		}
		r.variants[v.Type] = v
		r.rules[v.Type] = compileRules(v.Rules)
		r.types = append(r.types, v.Type)
	}
	sort.Strings(r.types)
	return r, nil
}

// NewDefaultRegistry returns the built-in variants plus extra.
func NewDefaultRegistry(extra ...Variant) (*Registry, error) {
	all := append(BuiltinVariants(), extra...)
	return NewRegistry(all...)
}

// Lookup resolves a specification type.
func (r *Registry) Lookup(specType string) (Variant, error) {
	v, ok := r.variants[specType]
	if !ok {
		return Variant{}, &errspkg.ValidationError{
			Field:  "specification_type",
			Reason: fmt.Sprintf("unknown specification type %q", specType),
			Err:    errspkg.ErrUnknownSpecification,
		}
	}
	return v, nil
}

// Types lists the registered specification types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, len(r.types))
	copy(out, r.types)
	return out
}

// Variants returns every registered variant ordered by type.
func (r *Registry) Variants() []Variant {
	out := make([]Variant, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, r.variants[t])
	}
	return out
}

// Build validates data against the variant's rules and snapshots it together
// with metadata into a DocumentModel.
func (r *Registry) Build(specType string, data map[string]any, md envelope.Metadata) (DocumentModel, error) {
	v, err := r.Lookup(specType)
	if err != nil {
		return DocumentModel{}, err
	}
	if data == nil {
		return DocumentModel{}, errspkg.NewValidationError("data", "is required")
	}
	if err := r.rules[v.Type].validate(data); err != nil {
		return DocumentModel{}, err
	}
	if md.GeneratedDate.IsZero() {
		md.GeneratedDate = time.Now().UTC()
	}
	return newDocumentModel(v, data, md), nil
}
