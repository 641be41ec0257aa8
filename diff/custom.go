package diff

import (
	"sort"

	"github.com/crmarques/catalogsync/resource"
)

// Custom diffs a {type, fields} custom-fields object. A changed type replaces
// the whole object; otherwise fields are set one by one.
type Custom struct {
	Name        string
	TypeAction  string
	FieldAction string
}

var _ Rule = Custom{}

func (c Custom) Field() string { return c.Name }

func (c Custom) ActionNames() []string { return []string{c.TypeAction, c.FieldAction} }

func (c Custom) Diff(current map[string]any, desired map[string]any, _ Metadata) ([]Action, []Issue) {
	have := asObject(lookup(current, c.Name))
	want := asObject(lookup(desired, c.Name))

	if resource.Canonical(want["type"]) == nil {
		if resource.Canonical(have["type"]) == nil {
			return nil, nil
		}
		return []Action{NewAction(c.TypeAction, nil)}, nil
	}

	if !resource.Equal(have["type"], want["type"]) {
		params := map[string]any{"type": resource.DeepCopy(want["type"])}
		if fields := resource.Canonical(want["fields"]); fields != nil {
			params["fields"] = resource.DeepCopy(want["fields"])
		}
		return []Action{NewAction(c.TypeAction, params)}, nil
	}

	haveFields := asObject(have["fields"])
	wantFields := asObject(want["fields"])
	names := make(map[string]struct{}, len(haveFields)+len(wantFields))
	for name := range haveFields {
		names[name] = struct{}{}
	}
	for name := range wantFields {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var actions []Action
	for _, name := range sorted {
		if resource.Equal(haveFields[name], wantFields[name]) {
			continue
		}
		params := map[string]any{"name": name}
		if resource.Canonical(wantFields[name]) != nil {
			params["value"] = resource.DeepCopy(wantFields[name])
		}
		actions = append(actions, NewAction(c.FieldAction, params))
	}
	return actions, nil
}

func (c Custom) Apply(target map[string]any, action Action) error {
	switch action.Name {
	case c.TypeAction:
		customType, ok := action.Param("type")
		if !ok {
			assign(target, c.Name, nil)
			return nil
		}
		custom := map[string]any{"type": resource.DeepCopy(customType)}
		if fields, ok := action.Param("fields"); ok {
			custom["fields"] = resource.DeepCopy(fields)
		}
		assign(target, c.Name, custom)
	case c.FieldAction:
		name, _ := action.Params["name"].(string)
		if name == "" {
			return nil
		}
		custom := asObject(lookup(target, c.Name))
		if custom == nil {
			return nil
		}
		fields := asObject(custom["fields"])
		if fields == nil {
			fields = map[string]any{}
		}
		if value, ok := action.Param("value"); ok {
			fields[name] = resource.DeepCopy(value)
		} else {
			delete(fields, name)
		}
		custom["fields"] = fields
	}
	return nil
}
