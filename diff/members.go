package diff

import "github.com/crmarques/catalogsync/resource"

// Members adds and removes elements of an unordered collection, for example
// the roles of a state or the categories of a product. With Batch set, one
// action carries every added (or removed) member as a list.
type Members struct {
	Name         string
	AddAction    string
	RemoveAction string
	Param        string
	Batch        bool
}

var _ Rule = Members{}

func (m Members) Field() string { return m.Name }

func (m Members) ActionNames() []string { return []string{m.RemoveAction, m.AddAction} }

func (m Members) Diff(current map[string]any, desired map[string]any, _ Metadata) ([]Action, []Issue) {
	have := asList(lookup(current, m.Name))
	want := asList(lookup(desired, m.Name))

	haveSet := identitySet(have)
	wantSet := identitySet(want)

	removed := absentFrom(have, wantSet)
	added := absentFrom(want, haveSet)

	var actions []Action
	actions = append(actions, m.actionsFor(m.RemoveAction, removed)...)
	actions = append(actions, m.actionsFor(m.AddAction, added)...)
	return actions, nil
}

func (m Members) actionsFor(name string, members []any) []Action {
	if len(members) == 0 {
		return nil
	}
	if m.Batch {
		return []Action{NewAction(name, map[string]any{m.Param: resource.DeepCopy(members)})}
	}
	actions := make([]Action, 0, len(members))
	for _, member := range members {
		actions = append(actions, NewAction(name, map[string]any{m.Param: resource.DeepCopy(member)}))
	}
	return actions
}

func (m Members) Apply(target map[string]any, action Action) error {
	value, ok := action.Param(m.Param)
	if !ok {
		return nil
	}
	members := []any{value}
	if m.Batch {
		members = asList(value)
	}

	items := asList(lookup(target, m.Name))
	switch action.Name {
	case m.RemoveAction:
		drop := identitySet(members)
		items = absentFrom(items, drop)
	case m.AddAction:
		present := identitySet(items)
		for _, member := range absentFrom(members, present) {
			items = append(items, resource.DeepCopy(member))
		}
	}
	if len(items) == 0 {
		assign(target, m.Name, nil)
		return nil
	}
	assign(target, m.Name, items)
	return nil
}

func identitySet(items []any) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[identity(item)] = struct{}{}
	}
	return set
}

// absentFrom keeps the items whose identity is not in set, first occurrence
// only, in input order.
func absentFrom(items []any, set map[string]struct{}) []any {
	seen := make(map[string]struct{}, len(items))
	kept := make([]any, 0, len(items))
	for _, item := range items {
		id := identity(item)
		if _, found := set[id]; found {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		kept = append(kept, item)
	}
	return kept
}
