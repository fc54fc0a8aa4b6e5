package keywords

// Category classifies a keyword inside a reconciliation pass.
type Category int

const (
	Generated Category = iota
	UserInput
	Date
	Filename
	Retained
)

func (c Category) String() string {
	switch c {
	case Generated:
		return "generated"
	case UserInput:
		return "user_input"
	case Date:
		return "date"
	case Filename:
		return "filename"
	case Retained:
		return "retained"
	default:
		return "unknown"
	}
}

// plan is a generated pair list split into its categories.
type plan struct {
	generated []Pair
	userInput map[string]struct{}
	dates     map[string]struct{}
}

func split(pairs []Pair) plan {
	p := plan{
		userInput: make(map[string]struct{}),
		dates:     make(map[string]struct{}),
	}
	for _, pair := range pairs {
		switch pair.Name {
		case NotGenerated:
			p.userInput[pair.Value] = struct{}{}
		case PotentialDateKeys:
			p.dates[pair.Value] = struct{}{}
		default:
			p.generated = append(p.generated, pair)
		}
	}
	return p
}

// Reconciliation is the outcome of one merge, kept per category so callers
// and tests can see which rule kept each keyword.
type Reconciliation struct {
	Generated Set
	UserInput Set
	Dates     Set
	Filename  Set
	// Retained holds remote keywords no category claims, such as historical
	// or hand-entered type names. They are written back unchanged.
	Retained Set
	// Suppressed holds fresh values discarded because the store already had
	// an owned value (user input, resolved date, filename) for the type name.
	Suppressed Set
}

// Result concatenates the categories in priority order and drops repeated
// type names, keeping the first.
func (r Reconciliation) Result() Set {
	return Concat(r.Generated, r.UserInput, r.Dates, r.Filename, r.Retained).Dedup()
}

// Categorize returns the category that kept typeName in the result.
func (r Reconciliation) Categorize(typeName string) (Category, bool) {
	for _, c := range []struct {
		set Set
		cat Category
	}{
		{r.Generated, Generated},
		{r.UserInput, UserInput},
		{r.Dates, Date},
		{r.Filename, Filename},
		{r.Retained, Retained},
	} {
		if _, ok := c.set.Get(typeName); ok {
			return c.cat, true
		}
	}
	return 0, false
}

// Reconcile merges freshly generated pairs with the document's remote
// keywords.
//
// Remote values win for watched user-input keywords, already resolved dates
// and the filename; fresh values win for everything else. Remote keywords in
// none of those categories are kept, after all the others.
func (c *Codec) Reconcile(pairs []Pair, remote Set) (Reconciliation, error) {
	filenameType, err := c.translator.Translate(FileName)
	if err != nil {
		return Reconciliation{}, err
	}

	p := split(pairs)

	filename := remote.Select(map[string]struct{}{filenameType: {}})
	userInput := remote.Select(p.userInput)
	dates := remote.Select(p.dates)

	fresh, err := c.Encode(p.generated)
	if err != nil {
		return Reconciliation{}, err
	}

	// Anything the store already owns shadows the fresh value.
	resolved := Concat(userInput, dates, filename).TypeNames()
	generated := fresh.Without(resolved)

	claimed := Concat(generated, userInput, dates, filename).TypeNames()

	return Reconciliation{
		Generated:  generated,
		UserInput:  userInput,
		Dates:      dates,
		Filename:   filename,
		Retained:   remote.Without(claimed),
		Suppressed: fresh.Select(resolved),
	}, nil
}
