package diff

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/resource"
)

// KeyedList diffs an ordered collection whose elements are identified by
// KeyField (attribute definitions, enum values, assets, line items).
//
// Actions are emitted as removals, then element changes in draft order, then
// additions in draft order, then at most one reorder carrying the full key
// sequence. Element rules see one element at a time; their actions carry the
// element key under ScopeParam. A dotted element rule covers only its own
// leaf: the rest of its root object is still compared.
type KeyedList struct {
	Name     string
	KeyField string

	AddAction     string
	AddParam      string
	PositionParam string

	RemoveAction string
	RemoveParam  string
	// RemoveMany emits one removal action carrying every removed key.
	RemoveMany bool

	ScopeParam string
	Elements   []Rule
	// ReplaceOnChange names element fields no element rule can update. A
	// change to one of them removes the element and adds the draft's version.
	ReplaceOnChange []string

	ReorderAction string
	ReorderParam  string
}

var _ Rule = KeyedList{}

func (l KeyedList) Field() string { return l.Name }

func (l KeyedList) ActionNames() []string {
	names := []string{l.RemoveAction, l.AddAction}
	if l.ReorderAction != "" {
		names = append(names, l.ReorderAction)
	}
	for _, element := range l.Elements {
		names = append(names, element.ActionNames()...)
	}
	return names
}

type keyedElements struct {
	order []string
	byKey map[string]map[string]any
}

func (l KeyedList) index(items []any) (keyedElements, []Issue) {
	indexed := keyedElements{byKey: make(map[string]map[string]any, len(items))}
	var issues []Issue
	for idx, item := range items {
		key := keyOf(item, l.KeyField)
		if key == "" {
			issues = append(issues, Issue{
				Field:    fmt.Sprintf("%s[%d]", l.Name, idx),
				Message:  fmt.Sprintf("element of %s has no %s", l.Name, l.KeyField),
				Severity: SeverityError,
			})
			continue
		}
		if _, dup := indexed.byKey[key]; dup {
			issues = append(issues, Issue{
				Field:    fmt.Sprintf("%s[%s]", l.Name, key),
				Message:  fmt.Sprintf("%s contains duplicate %s %q", l.Name, l.KeyField, key),
				Severity: SeverityError,
			})
			continue
		}
		indexed.order = append(indexed.order, key)
		indexed.byKey[key] = asObject(item)
	}
	return indexed, issues
}

func (l KeyedList) Diff(current map[string]any, desired map[string]any, meta Metadata) ([]Action, []Issue) {
	have, stale := l.index(asList(lookup(current, l.Name)))
	want, issues := l.index(asList(lookup(desired, l.Name)))
	for _, issue := range stale {
		issue.Message = fmt.Sprintf("existing %s; it is left unchanged", issue.Message)
		issue.Severity = SeverityWarning
		issues = append(issues, issue)
	}

	replaced := map[string]struct{}{}
	var changes []Action
	for _, key := range want.order {
		existing, found := have.byKey[key]
		if !found {
			continue
		}
		elementChanges, elementIssues, replace := l.diffElement(key, existing, want.byKey[key], meta)
		if replace {
			replaced[key] = struct{}{}
			continue
		}
		changes = append(changes, elementChanges...)
		issues = append(issues, elementIssues...)
	}

	var removed []string
	kept := keyedElements{byKey: make(map[string]map[string]any, len(have.order))}
	for _, key := range have.order {
		_, wanted := want.byKey[key]
		if _, replace := replaced[key]; !wanted || replace {
			removed = append(removed, key)
			continue
		}
		kept.order = append(kept.order, key)
		kept.byKey[key] = have.byKey[key]
	}

	actions := append(l.removals(removed), changes...)

	sequence := append([]string(nil), kept.order...)
	for position, key := range want.order {
		if _, found := kept.byKey[key]; found {
			continue
		}
		params := map[string]any{l.AddParam: resource.DeepCopy(want.byKey[key])}
		if l.PositionParam != "" {
			params[l.PositionParam] = int64(position)
			sequence = insertAt(sequence, position, key)
		} else {
			sequence = append(sequence, key)
		}
		actions = append(actions, NewAction(l.AddAction, params))
	}

	if l.ReorderAction != "" && !equalStrings(sequence, want.order) {
		order := make([]any, len(want.order))
		for idx, key := range want.order {
			order[idx] = key
		}
		actions = append(actions, NewAction(l.ReorderAction, map[string]any{l.ReorderParam: order}))
	}

	return actions, issues
}

func (l KeyedList) removals(removed []string) []Action {
	if len(removed) == 0 {
		return nil
	}
	if l.RemoveMany {
		keys := make([]any, len(removed))
		for idx, key := range removed {
			keys[idx] = key
		}
		return []Action{NewAction(l.RemoveAction, map[string]any{l.RemoveParam: keys})}
	}
	actions := make([]Action, 0, len(removed))
	for _, key := range removed {
		actions = append(actions, NewAction(l.RemoveAction, map[string]any{l.RemoveParam: key}))
	}
	return actions
}

// diffElement reports replace when a ReplaceOnChange field differs; the
// element's own actions and issues are then discarded.
func (l KeyedList) diffElement(key string, existing map[string]any, desired map[string]any, meta Metadata) ([]Action, []Issue, bool) {
	var actions []Action
	var issues []Issue
	whole := map[string]struct{}{l.KeyField: {}}
	partial := map[string][]string{}

	for _, rule := range l.Elements {
		if root, rest, dotted := strings.Cut(rule.Field(), "."); dotted {
			partial[root] = append(partial[root], rest)
		} else {
			whole[root] = struct{}{}
		}
		changes, ruleIssues := rule.Diff(existing, desired, meta)
		for _, change := range changes {
			actions = append(actions, change.with(l.ScopeParam, key))
		}
		for _, issue := range ruleIssues {
			issue.Field = fmt.Sprintf("%s[%s].%s", l.Name, key, issue.Field)
			issues = append(issues, issue)
		}
	}

	names := make([]string, 0, len(desired))
	for name := range desired {
		if _, ok := whole[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if resource.Equal(residual(existing[name], partial[name]), residual(desired[name], partial[name])) {
			continue
		}
		if slices.Contains(l.ReplaceOnChange, name) {
			return nil, nil, true
		}
		issues = append(issues, Issue{
			Field:    fmt.Sprintf("%s[%s].%s", l.Name, key, name),
			Message:  fmt.Sprintf("field %q of %s %q cannot be updated", name, l.Name, key),
			Severity: SeverityError,
		})
	}
	return actions, issues, false
}

// residual drops the dotted sub-fields other rules own from a copy of value.
// An object left empty counts as absent.
func residual(value any, owned []string) any {
	if len(owned) == 0 {
		return value
	}
	object, _ := resource.DeepCopy(value).(map[string]any)
	if object == nil {
		return value
	}
	for _, field := range owned {
		remove(object, field)
	}
	if len(object) == 0 {
		return nil
	}
	return object
}

func (l KeyedList) Apply(target map[string]any, action Action) error {
	items := asList(lookup(target, l.Name))

	switch action.Name {
	case l.RemoveAction:
		value, _ := action.Param(l.RemoveParam)
		drop := map[string]struct{}{}
		if l.RemoveMany {
			for _, key := range asList(value) {
				if text, ok := key.(string); ok {
					drop[text] = struct{}{}
				}
			}
		} else if text, ok := value.(string); ok {
			drop[text] = struct{}{}
		}
		kept := make([]any, 0, len(items))
		for _, item := range items {
			if _, found := drop[keyOf(item, l.KeyField)]; !found {
				kept = append(kept, item)
			}
		}
		items = kept
	case l.AddAction:
		element, ok := action.Param(l.AddParam)
		if !ok {
			return faults.NewTypedError(faults.ValidationError, fmt.Sprintf("%s requires %q", action.Name, l.AddParam), nil)
		}
		position := len(items)
		if raw, ok := action.Param(l.PositionParam); ok && l.PositionParam != "" {
			if parsed, ok := toInt(raw); ok && parsed >= 0 && parsed < position {
				position = parsed
			}
		}
		items = insertAt(items, position, resource.DeepCopy(element))
	case l.ReorderAction:
		value, _ := action.Param(l.ReorderParam)
		items = l.reorder(items, asList(value))
	default:
		key, _ := action.Params[l.ScopeParam].(string)
		rule := l.elementRule(action.Name)
		if rule == nil {
			return faults.NewTypedError(faults.ValidationError, fmt.Sprintf("unsupported action %q for %s", action.Name, l.Name), nil)
		}
		for _, item := range items {
			if keyOf(item, l.KeyField) != key {
				continue
			}
			element := asObject(item)
			if element == nil {
				break
			}
			if err := rule.Apply(element, action); err != nil {
				return err
			}
			break
		}
	}

	if len(items) == 0 {
		assign(target, l.Name, nil)
		return nil
	}
	assign(target, l.Name, items)
	return nil
}

func (l KeyedList) elementRule(actionName string) Rule {
	for _, rule := range l.Elements {
		for _, name := range rule.ActionNames() {
			if name == actionName {
				return rule
			}
		}
	}
	return nil
}

// reorder arranges items following order; unlisted items keep their relative
// order after the listed ones.
func (l KeyedList) reorder(items []any, order []any) []any {
	byKey := make(map[string]any, len(items))
	for _, item := range items {
		byKey[keyOf(item, l.KeyField)] = item
	}
	placed := make(map[string]struct{}, len(order))
	reordered := make([]any, 0, len(items))
	for _, raw := range order {
		key, _ := raw.(string)
		item, found := byKey[key]
		if !found {
			continue
		}
		if _, dup := placed[key]; dup {
			continue
		}
		placed[key] = struct{}{}
		reordered = append(reordered, item)
	}
	for _, item := range items {
		if _, done := placed[keyOf(item, l.KeyField)]; !done {
			reordered = append(reordered, item)
		}
	}
	return reordered
}

func insertAt[T any](items []T, position int, item T) []T {
	if position < 0 || position >= len(items) {
		return append(items, item)
	}
	items = append(items, item)
	copy(items[position+1:], items[position:])
	items[position] = item
	return items
}

func toInt(value any) (int, bool) {
	switch typed := value.(type) {
	case int:
		return typed, true
	case int64:
		return int(typed), true
	case float64:
		return int(typed), true
	default:
		return 0, false
	}
}
