package keywords

// Keyword is a single metadata field as the document store represents it.
type Keyword struct {
	TypeName string `json:"keywordTypeName"`
	Value    string `json:"keywordValue"`
}

// Set is an ordered keyword list. A set written to the document store holds
// at most one entry per TypeName.
type Set []Keyword

// Pair is one semantic name/value entry of a generated keyword map. Maps are
// kept as ordered slices because marker names may repeat.
type Pair struct {
	Name  Name
	Value string
}

// P builds a Pair.
func P(name Name, value string) Pair {
	return Pair{Name: name, Value: value}
}

// Select returns the entries whose TypeName is in typeNames, in set order.
func (s Set) Select(typeNames map[string]struct{}) Set {
	var out Set
	for _, k := range s {
		if _, ok := typeNames[k.TypeName]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Without returns the entries whose TypeName is not in typeNames.
func (s Set) Without(typeNames map[string]struct{}) Set {
	var out Set
	for _, k := range s {
		if _, ok := typeNames[k.TypeName]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// TypeNames returns the set of type names present in s.
func (s Set) TypeNames() map[string]struct{} {
	names := make(map[string]struct{}, len(s))
	for _, k := range s {
		names[k.TypeName] = struct{}{}
	}
	return names
}

// Get returns the value of the first entry with the given type name.
func (s Set) Get(typeName string) (string, bool) {
	for _, k := range s {
		if k.TypeName == typeName {
			return k.Value, true
		}
	}
	return "", false
}

// Dedup keeps the first occurrence of every type name.
func (s Set) Dedup() Set {
	seen := make(map[string]struct{}, len(s))
	out := make(Set, 0, len(s))
	for _, k := range s {
		if _, ok := seen[k.TypeName]; ok {
			continue
		}
		seen[k.TypeName] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Concat joins sets in the order given.
func Concat(sets ...Set) Set {
	var n int
	for _, s := range sets {
		n += len(s)
	}
	out := make(Set, 0, n)
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}
