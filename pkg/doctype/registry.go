// Package doctype describes which keywords each document type carries and
// how each keyword is maintained.
package doctype

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dartmouth-dltg/aspace-onbase/pkg/keywords"
)

//go:embed default_types.yaml
var defaultTypes []byte

// Field types. Any type starting with EnumPrefix is a controlled value list
// entered by a user.
const (
	FieldGenerated = "generated"
	FieldText      = "text"
	FieldDate      = "date"
	EnumPrefix     = "enum_"
)

// ErrUnknownDocumentType is returned for a document type not in the registry.
var ErrUnknownDocumentType = errors.New("unknown document type")

// Field is one keyword of a document type. Generated fields name the
// generator producing their value; all other fields name the keyword a user
// fills in.
type Field struct {
	Type      string        `yaml:"type"`
	Generator keywords.Name `yaml:"generator,omitempty"`
	Keyword   keywords.Name `yaml:"keyword,omitempty"`
}

// Name returns the keyword the field writes.
func (f Field) Name() keywords.Name {
	if f.Type == FieldGenerated {
		return f.Generator
	}
	return f.Keyword
}

// UserInput reports whether the field is maintained by hand in the store.
func (f Field) UserInput() bool {
	return f.Type == FieldText || strings.HasPrefix(f.Type, EnumPrefix)
}

// Definition is one document type.
type Definition struct {
	SupportedRecords []string `yaml:"supported_records"`
	Fields           []Field  `yaml:"fields"`
}

type file struct {
	DocumentTypes map[string]Definition `yaml:"document_types"`
}

// Registry is an immutable set of document type definitions.
type Registry struct {
	types map[string]Definition
	names []string
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := Parse(defaultTypes)
	if err != nil {
		panic(fmt.Sprintf("doctype: built-in registry is invalid: %v", err))
	}
	return r
}

// Load reads a registry from path. An empty path returns the built-in one.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("doctype: error reading registry: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML registry.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("doctype: error parsing registry: %w", err)
	}
	if len(f.DocumentTypes) == 0 {
		return nil, fmt.Errorf("doctype: registry defines no document types")
	}

	names := make([]string, 0, len(f.DocumentTypes))
	for name := range f.DocumentTypes {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Registry{types: f.DocumentTypes, names: names}, nil
}

// Names returns every document type in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// TypesForRecord returns the document types that may be attached to a record
// of the given kind, such as "accession" or "archival_object".
func (r *Registry) TypesForRecord(kind string) []string {
	var out []string
	for _, name := range r.names {
		for _, supported := range r.types[name].SupportedRecords {
			if supported == kind {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// Fields returns the fields of docType in declaration order.
func (r *Registry) Fields(docType string) ([]Field, error) {
	def, ok := r.types[docType]
	if !ok {
		return nil, fmt.Errorf("doctype: %w: %q", ErrUnknownDocumentType, docType)
	}
	return append([]Field(nil), def.Fields...), nil
}

// Validate checks every definition against the available generators and the
// keyword translator. All problems are reported together.
func (r *Registry) Validate(generators []keywords.Name, t *keywords.Translator) error {
	available := make(map[keywords.Name]struct{}, len(generators))
	for _, g := range generators {
		available[g] = struct{}{}
	}

	var problems []error
	for _, name := range r.names {
		for i, f := range r.types[name].Fields {
			switch {
			case f.Type == FieldGenerated:
				if f.Generator == "" {
					problems = append(problems, fmt.Errorf("%s: field %d has no generator", name, i))
					continue
				}
				if _, ok := available[f.Generator]; !ok {
					problems = append(problems, fmt.Errorf("%s: missing keyword generator %q", name, f.Generator))
					continue
				}
			case f.Type == FieldDate || f.UserInput():
				if f.Keyword == "" {
					problems = append(problems, fmt.Errorf("%s: field %d has no keyword", name, i))
					continue
				}
			default:
				problems = append(problems, fmt.Errorf("%s: field %d has unknown type %q", name, i, f.Type))
				continue
			}
			if _, err := t.Translate(f.Name()); err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", name, err))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("doctype: invalid registry: %w", errors.Join(problems...))
	}
	return nil
}

// DateKeys returns the wire type names of the date fields of docType.
func (r *Registry) DateKeys(docType string, t *keywords.Translator) ([]string, error) {
	return r.typeNames(docType, t, func(f Field) bool { return f.Type == FieldDate })
}

// UserInputKeys returns the wire type names of the hand-maintained fields of
// docType.
func (r *Registry) UserInputKeys(docType string, t *keywords.Translator) ([]string, error) {
	return r.typeNames(docType, t, Field.UserInput)
}

func (r *Registry) typeNames(docType string, t *keywords.Translator, match func(Field) bool) ([]string, error) {
	fields, err := r.Fields(docType)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range fields {
		if !match(f) {
			continue
		}
		typeName, err := t.Translate(f.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, typeName)
	}
	return out, nil
}

// Keywords builds the pair list of a keyword sync for a document of docType.
// Generated fields take their value from values; fields without a value are
// skipped. Date and hand-maintained fields become watch markers so values
// already in the store are kept.
func (r *Registry) Keywords(docType string, values map[keywords.Name]string, t *keywords.Translator) ([]keywords.Pair, error) {
	fields, err := r.Fields(docType)
	if err != nil {
		return nil, err
	}

	var pairs []keywords.Pair
	for _, f := range fields {
		switch {
		case f.Type == FieldGenerated:
			if v, ok := values[f.Generator]; ok {
				pairs = append(pairs, keywords.P(f.Generator, v))
			}
		case f.Type == FieldDate:
			typeName, err := t.Translate(f.Keyword)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, keywords.P(keywords.PotentialDateKeys, typeName))
			if v, ok := values[f.Keyword]; ok {
				pairs = append(pairs, keywords.P(f.Keyword, v))
			}
		case f.UserInput():
			typeName, err := t.Translate(f.Keyword)
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, keywords.P(keywords.NotGenerated, typeName))
		}
	}
	return pairs, nil
}
