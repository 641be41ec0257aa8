package diff

import (
	"fmt"
	"sort"

	"github.com/crmarques/catalogsync/resource"
)

// KeyedMap sets and unsets named values. When EntryName is set the field is a
// list of {EntryName, EntryValue} objects (product attributes); otherwise it
// is a plain object and names are diffed in sorted order.
//
// A Metadata entry for the field restricts the names that may be set; draft
// names outside it produce a warning and are skipped.
type KeyedMap struct {
	Name       string
	Action     string
	NameParam  string
	ValueParam string

	EntryName  string
	EntryValue string
}

var _ Rule = KeyedMap{}

func (m KeyedMap) Field() string { return m.Name }

func (m KeyedMap) ActionNames() []string { return []string{m.Action} }

type namedValues struct {
	order  []string
	values map[string]any
}

func (m KeyedMap) entries(value any) namedValues {
	entries := namedValues{values: map[string]any{}}
	if m.EntryName == "" {
		object := asObject(value)
		for name, item := range object {
			entries.order = append(entries.order, name)
			entries.values[name] = item
		}
		sort.Strings(entries.order)
		return entries
	}
	for _, item := range asList(value) {
		name := keyOf(item, m.EntryName)
		if name == "" {
			continue
		}
		if _, dup := entries.values[name]; dup {
			continue
		}
		entries.order = append(entries.order, name)
		entries.values[name] = asObject(item)[m.EntryValue]
	}
	return entries
}

func (m KeyedMap) Diff(current map[string]any, desired map[string]any, meta Metadata) ([]Action, []Issue) {
	have := m.entries(lookup(current, m.Name))
	want := m.entries(lookup(desired, m.Name))
	known, restricted := meta.known(m.Name)

	var actions []Action
	var issues []Issue

	for _, name := range have.order {
		if _, kept := want.values[name]; kept {
			continue
		}
		actions = append(actions, NewAction(m.Action, map[string]any{m.NameParam: name}))
	}

	for _, name := range want.order {
		if restricted {
			if _, ok := known[name]; !ok {
				issues = append(issues, Issue{
					Field:    fmt.Sprintf("%s[%s]", m.Name, name),
					Message:  fmt.Sprintf("%s %q is not defined in the known attribute metadata and was skipped", m.Name, name),
					Severity: SeverityWarning,
				})
				continue
			}
		}
		value := want.values[name]
		previous, present := have.values[name]
		if resource.Canonical(value) == nil {
			if present && resource.Canonical(previous) != nil {
				actions = append(actions, NewAction(m.Action, map[string]any{m.NameParam: name}))
			}
			continue
		}
		if present && resource.Equal(previous, value) {
			continue
		}
		params := map[string]any{m.NameParam: name, m.ValueParam: resource.DeepCopy(value)}
		actions = append(actions, NewAction(m.Action, params))
	}

	return actions, issues
}

func (m KeyedMap) Apply(target map[string]any, action Action) error {
	name, _ := action.Params[m.NameParam].(string)
	if name == "" {
		return nil
	}
	value, set := action.Param(m.ValueParam)

	if m.EntryName == "" {
		object := map[string]any{}
		for key, item := range asObject(lookup(target, m.Name)) {
			object[key] = item
		}
		if set {
			object[name] = resource.DeepCopy(value)
		} else {
			delete(object, name)
		}
		if len(object) == 0 {
			assign(target, m.Name, nil)
			return nil
		}
		assign(target, m.Name, object)
		return nil
	}

	items := asList(lookup(target, m.Name))
	updated := make([]any, 0, len(items)+1)
	replaced := false
	for _, item := range items {
		if keyOf(item, m.EntryName) != name {
			updated = append(updated, item)
			continue
		}
		if set && !replaced {
			updated = append(updated, map[string]any{m.EntryName: name, m.EntryValue: resource.DeepCopy(value)})
			replaced = true
		}
	}
	if set && !replaced {
		updated = append(updated, map[string]any{m.EntryName: name, m.EntryValue: resource.DeepCopy(value)})
	}
	if len(updated) == 0 {
		assign(target, m.Name, nil)
		return nil
	}
	assign(target, m.Name, updated)
	return nil
}
