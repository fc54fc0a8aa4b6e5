package keywords

// Codec converts between semantic pairs and the wire keyword list.
type Codec struct {
	translator *Translator
}

// NewCodec creates a Codec backed by t.
func NewCodec(t *Translator) *Codec {
	return &Codec{translator: t}
}

// Translator returns the translation table the codec uses.
func (c *Codec) Translator() *Translator {
	return c.translator
}

// Encode translates every pair. It fails on the first name the table cannot
// resolve, so a caller never writes a partial keyword list.
func (c *Codec) Encode(pairs []Pair) (Set, error) {
	out := make(Set, 0, len(pairs))
	for _, p := range pairs {
		typeName, err := c.translator.Translate(p.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, Keyword{TypeName: typeName, Value: p.Value})
	}
	return out, nil
}

// Decoded is a wire keyword with its semantic name when one exists. Keywords
// entered by hand or by older tooling have no semantic counterpart and keep
// an empty Name.
type Decoded struct {
	Name     Name
	TypeName string
	Value    string
}

// Decode classifies each keyword of s.
func (c *Codec) Decode(s Set) []Decoded {
	out := make([]Decoded, 0, len(s))
	for _, k := range s {
		name, _ := c.translator.Lookup(k.TypeName)
		out = append(out, Decoded{Name: name, TypeName: k.TypeName, Value: k.Value})
	}
	return out
}
