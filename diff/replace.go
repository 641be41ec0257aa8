package diff

import (
	"encoding/json"
	"sort"

	"github.com/crmarques/catalogsync/resource"
)

// Replace sets a scalar or object field with a single action. With Unordered
// set, lists are compared as multisets.
type Replace struct {
	Name      string
	Action    string
	Param     string
	Unordered bool
}

var _ Rule = Replace{}

func (r Replace) Field() string { return r.Name }

func (r Replace) ActionNames() []string { return []string{r.Action} }

func (r Replace) Diff(current map[string]any, desired map[string]any, _ Metadata) ([]Action, []Issue) {
	have := lookup(current, r.Name)
	want := lookup(desired, r.Name)
	if r.equal(have, want) {
		return nil, nil
	}

	params := map[string]any{}
	if resource.Canonical(want) != nil {
		params[r.Param] = resource.DeepCopy(want)
	}
	return []Action{NewAction(r.Action, params)}, nil
}

func (r Replace) Apply(target map[string]any, action Action) error {
	value, _ := action.Param(r.Param)
	assign(target, r.Name, resource.DeepCopy(value))
	return nil
}

func (r Replace) equal(left any, right any) bool {
	if !r.Unordered {
		return resource.Equal(left, right)
	}
	leftItems, leftOK := left.([]any)
	rightItems, rightOK := right.([]any)
	if !leftOK || !rightOK {
		return resource.Equal(left, right)
	}
	return equalStrings(identities(leftItems), identities(rightItems))
}

// identity renders a value's canonical form; encoding/json sorts map keys.
func identity(value any) string {
	encoded, err := json.Marshal(resource.Canonical(value))
	if err != nil {
		return ""
	}
	return string(encoded)
}

func identities(items []any) []string {
	values := make([]string, len(items))
	for idx, item := range items {
		values[idx] = identity(item)
	}
	sort.Strings(values)
	return values
}

func equalStrings(left []string, right []string) bool {
	if len(left) != len(right) {
		return false
	}
	for idx := range left {
		if left[idx] != right[idx] {
			return false
		}
	}
	return true
}
