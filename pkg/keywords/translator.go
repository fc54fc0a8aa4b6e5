package keywords

import (
	"errors"
	"fmt"
	"sort"
)

// Translator maps semantic names to wire keyword type names. The table is
// validated once in NewTranslator; lookups never fall through silently.
type Translator struct {
	forward map[Name]string
	reverse map[string]Name
}

// NewTranslator validates table against KnownNames. Every known name must
// map to a distinct, non-empty type name, and the table may not carry names
// this package does not know. All problems are reported together.
func NewTranslator(table map[Name]string) (*Translator, error) {
	var problems []error

	for _, name := range KnownNames {
		if table[name] == "" {
			problems = append(problems, fmt.Errorf("missing keyword type name for %q", string(name)))
		}
	}

	reverse := make(map[string]Name, len(table))
	names := make([]Name, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	for _, name := range names {
		typeName := table[name]
		if name.IsMarker() {
			problems = append(problems, fmt.Errorf("%q is a marker and cannot be translated", string(name)))
			continue
		}
		if !isKnown(name) {
			problems = append(problems, fmt.Errorf("unknown keyword name %q", string(name)))
			continue
		}
		if typeName == "" {
			continue
		}
		if other, ok := reverse[typeName]; ok {
			problems = append(problems, fmt.Errorf("%q and %q both map to %q", string(other), string(name), typeName))
			continue
		}
		reverse[typeName] = name
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("keywords: invalid translation table: %w", errors.Join(problems...))
	}

	forward := make(map[Name]string, len(table))
	for name, typeName := range table {
		forward[name] = typeName
	}
	return &Translator{forward: forward, reverse: reverse}, nil
}

// Translate returns the wire type name for name.
func (t *Translator) Translate(name Name) (string, error) {
	typeName, ok := t.forward[name]
	if !ok {
		return "", &UnknownKeywordNameError{Name: name}
	}
	return typeName, nil
}

// Lookup returns the semantic name for a wire type name, if there is one.
func (t *Translator) Lookup(typeName string) (Name, bool) {
	name, ok := t.reverse[typeName]
	return name, ok
}

// Names returns the translatable names in sorted order.
func (t *Translator) Names() []Name {
	names := make([]Name, 0, len(t.forward))
	for name := range t.forward {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
