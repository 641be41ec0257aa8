package diff

// Severity says whether an Issue is reported to the error or the warning sink.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// Issue is a problem confined to one field. The remaining fields are still
// diffed.
type Issue struct {
	Field    string
	Message  string
	Severity Severity
}

// Metadata restricts KeyedMap rules to the names known for their field, for
// example the attribute names a product type defines. A field without an
// entry is unrestricted.
type Metadata struct {
	KnownNames map[string][]string
}

func (m Metadata) known(field string) (map[string]struct{}, bool) {
	names, ok := m.KnownNames[field]
	if !ok {
		return nil, false
	}
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set, true
}

// Rule compares one field of two objects and applies the actions it emits.
type Rule interface {
	// Field is the dotted attribute name the rule owns.
	Field() string
	// ActionNames lists every action the rule (and its element rules) emits.
	ActionNames() []string
	Diff(current map[string]any, desired map[string]any, meta Metadata) ([]Action, []Issue)
	Apply(target map[string]any, action Action) error
}
