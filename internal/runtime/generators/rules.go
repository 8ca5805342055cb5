package generators

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/jsoncodec"
)

// Kind is the JSON shape a field rule requires.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Rule requires the value at the dotted Path to exist with the given Kind.
// Array rules additionally enforce MinItems and apply Items to every element,
// which must then be an object.
type Rule struct {
	Path     string
	Kind     Kind
	MinItems int
	Items    []Rule
}

// String requires a non-blank string at path.
func String(path string) Rule { return Rule{Path: path, Kind: KindString} }

// Number requires a JSON number at path.
func Number(path string) Rule { return Rule{Path: path, Kind: KindNumber} }

// Bool requires a JSON boolean at path.
func Bool(path string) Rule { return Rule{Path: path, Kind: KindBool} }

// Object requires a JSON object at path.
func Object(path string) Rule { return Rule{Path: path, Kind: KindObject} }

// Array requires a list of at least min elements at path.
func Array(path string, min int, items ...Rule) Rule {
	return Rule{Path: path, Kind: KindArray, MinItems: min, Items: items}
}

// nonBlank rejects strings made only of whitespace.
const nonBlank = `\S`

// Schema returns the OpenAPI schema of a data object satisfying r.
func (r Rule) Schema() *openapi3.Schema {
	root := openapi3.NewObjectSchema()
	addRule(root, r)
	return root
}

// Schema returns the OpenAPI schema of a data object satisfying every rule
// of the variant.
func (v Variant) Schema() *openapi3.Schema {
	root := openapi3.NewObjectSchema()
	for _, r := range v.Rules {
		addRule(root, r)
	}
	return root
}

func addRule(obj *openapi3.Schema, r Rule) {
	segments := strings.Split(r.Path, ".")
	for _, name := range segments[:len(segments)-1] {
		obj = childObject(obj, name)
	}
	name := segments[len(segments)-1]
	obj.WithProperty(name, r.valueSchema())
	requireProperty(obj, name)
}

func childObject(obj *openapi3.Schema, name string) *openapi3.Schema {
	if ref := obj.Properties[name]; ref != nil && ref.Value != nil && ref.Value.Type.Is(openapi3.TypeObject) {
		return ref.Value
	}
	child := openapi3.NewObjectSchema()
	obj.WithProperty(name, child)
	requireProperty(obj, name)
	return child
}

func requireProperty(obj *openapi3.Schema, name string) {
	for _, existing := range obj.Required {
		if existing == name {
			return
		}
	}
	obj.Required = append(obj.Required, name)
}

func (r Rule) valueSchema() *openapi3.Schema {
	switch r.Kind {
	case KindString:
		return openapi3.NewStringSchema().WithPattern(nonBlank)
	case KindNumber:
		return openapi3.NewFloat64Schema()
	case KindBool:
		return openapi3.NewBoolSchema()
	case KindArray:
		s := openapi3.NewArraySchema().WithMinItems(int64(r.MinItems))
		if len(r.Items) > 0 {
			item := openapi3.NewObjectSchema()
			for _, ir := range r.Items {
				addRule(item, ir)
			}
			s.WithItems(item)
		}
		return s
	default:
		return openapi3.NewObjectSchema()
	}
}

// ruleSet checks rules one schema at a time so the first violated rule, in
// declaration order, is the one reported.
type ruleSet []*openapi3.Schema

func compileRules(rules []Rule) ruleSet {
	set := make(ruleSet, 0, len(rules))
	for _, r := range rules {
		set = append(set, r.Schema())
	}
	return set
}

func (s ruleSet) validate(data map[string]any) error {
	if len(s) == 0 {
		return nil
	}
	doc, err := normalize(data)
	if err != nil {
		return errspkg.NewValidationError("data", err.Error())
	}
	for _, schema := range s {
		if err := schema.VisitJSON(doc); err != nil {
			return toValidationError(err)
		}
	}
	return nil
}

// normalize converts data to the plain JSON value types the schema visitor
// understands, e.g. Go ints become float64.
func normalize(data map[string]any) (map[string]any, error) {
	raw, err := jsoncodec.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	var doc map[string]any
	if err := jsoncodec.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	return doc, nil
}

func toValidationError(err error) error {
	var sErr *openapi3.SchemaError
	if !errors.As(err, &sErr) {
		return errspkg.NewValidationError("data", err.Error())
	}
	pointer := sErr.JSONPointer()
	if sErr.SchemaField == "required" {
		if name, ok := missingProperty(sErr.Reason); ok && (len(pointer) == 0 || pointer[len(pointer)-1] != name) {
			pointer = append(pointer, name)
		}
	}
	return errspkg.NewValidationError(dottedPath(pointer), reason(sErr))
}

// missingProperty extracts the name from `property "x" is missing`.
func missingProperty(reason string) (string, bool) {
	start := strings.IndexByte(reason, '"')
	if start < 0 {
		return "", false
	}
	name, err := strconv.QuotedPrefix(reason[start:])
	if err != nil {
		return "", false
	}
	name, err = strconv.Unquote(name)
	return name, err == nil
}

func reason(sErr *openapi3.SchemaError) string {
	switch {
	case sErr.SchemaField == "required" || sErr.Value == nil:
		return "is required"
	case sErr.SchemaField == "minItems":
		return fmt.Sprintf("must contain at least %d item(s)", sErr.Schema.MinItems)
	case sErr.SchemaField == "pattern":
		return "must not be empty"
	case sErr.SchemaField == "type":
		return "must be " + article(expectedType(sErr.Schema))
	default:
		return sErr.Reason
	}
}

func expectedType(s *openapi3.Schema) string {
	if s == nil || s.Type == nil {
		return "value"
	}
	for _, t := range []string{openapi3.TypeString, openapi3.TypeNumber, openapi3.TypeBoolean, openapi3.TypeObject, openapi3.TypeArray} {
		if s.Type.Is(t) {
			return t
		}
	}
	return "value"
}

func article(noun string) string {
	if strings.IndexByte("aeiou", noun[0]) >= 0 {
		return "an " + noun
	}
	return "a " + noun
}

// dottedPath renders ["requirements", "0", "id"] as requirements[0].id.
func dottedPath(pointer []string) string {
	var b strings.Builder
	for _, segment := range pointer {
		if _, err := strconv.Atoi(segment); err == nil {
			b.WriteString("[" + segment + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(segment)
	}
	if b.Len() == 0 {
		return "data"
	}
	return b.String()
}
