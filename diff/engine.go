package diff

import (
	"fmt"
	"sort"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/resource"
)

// Engine computes and applies update actions for one resource kind from its
// rule table. Rules run in table order.
type Engine struct {
	rules    []Rule
	roots    map[string]struct{}
	ignored  map[string]struct{}
	byAction map[string]Rule
}

// NewEngine validates that no two rules own the same field or emit the same
// action. Ignored fields are never compared.
func NewEngine(rules []Rule, ignored ...string) (*Engine, error) {
	engine := &Engine{
		rules:    append([]Rule(nil), rules...),
		roots:    make(map[string]struct{}, len(rules)),
		ignored:  make(map[string]struct{}, len(ignored)),
		byAction: map[string]Rule{},
	}
	for _, field := range ignored {
		engine.ignored[field] = struct{}{}
	}

	fields := map[string]struct{}{}
	for _, rule := range rules {
		if _, dup := fields[rule.Field()]; dup {
			return nil, faults.NewTypedError(
				faults.ValidationError,
				fmt.Sprintf("field %q has more than one update rule", rule.Field()),
				nil,
			)
		}
		fields[rule.Field()] = struct{}{}
		engine.roots[rootOf(rule.Field())] = struct{}{}

		for _, name := range rule.ActionNames() {
			if name == "" {
				return nil, faults.NewTypedError(
					faults.ValidationError,
					fmt.Sprintf("rule for field %q has an empty action name", rule.Field()),
					nil,
				)
			}
			if _, dup := engine.byAction[name]; dup {
				return nil, faults.NewTypedError(
					faults.ValidationError,
					fmt.Sprintf("action %q is emitted by more than one rule", name),
					nil,
				)
			}
			engine.byAction[name] = rule
		}
	}
	return engine, nil
}

func MustEngine(rules []Rule, ignored ...string) *Engine {
	engine, err := NewEngine(rules, ignored...)
	if err != nil {
		panic(err)
	}
	return engine
}

// Diff returns the ordered actions that converge existing towards desired,
// and the issues found on individual fields. A draft field without a rule is
// reported only when its value differs from the existing one.
func (e *Engine) Diff(existing map[string]any, desired map[string]any, meta Metadata) ([]Action, []Issue) {
	if e == nil {
		return nil, nil
	}
	if existing == nil {
		existing = map[string]any{}
	}
	if desired == nil {
		desired = map[string]any{}
	}

	var actions []Action
	var issues []Issue
	for _, rule := range e.rules {
		changes, ruleIssues := rule.Diff(existing, desired, meta)
		actions = append(actions, changes...)
		issues = append(issues, ruleIssues...)
	}

	uncovered := make([]string, 0)
	for name := range desired {
		if _, ok := e.roots[name]; ok {
			continue
		}
		if _, ok := e.ignored[name]; ok {
			continue
		}
		uncovered = append(uncovered, name)
	}
	sort.Strings(uncovered)
	for _, name := range uncovered {
		if resource.Equal(existing[name], desired[name]) {
			continue
		}
		issues = append(issues, Issue{
			Field:    name,
			Message:  fmt.Sprintf("no update action is known for field %q", name),
			Severity: SeverityError,
		})
	}

	return actions, issues
}

// Apply returns a copy of payload with actions applied in order.
func (e *Engine) Apply(payload map[string]any, actions []Action) (map[string]any, error) {
	copied, _ := resource.DeepCopy(payload).(map[string]any)
	if copied == nil {
		copied = map[string]any{}
	}
	if e == nil {
		return copied, nil
	}
	for _, action := range actions {
		rule, found := e.byAction[action.Name]
		if !found {
			return nil, faults.NewTypedError(
				faults.ValidationError,
				fmt.Sprintf("unsupported update action %q", action.Name),
				nil,
			)
		}
		if err := rule.Apply(copied, action); err != nil {
			return nil, err
		}
	}
	return copied, nil
}

// Supports reports whether the engine knows the named action.
func (e *Engine) Supports(name string) bool {
	if e == nil {
		return false
	}
	_, ok := e.byAction[name]
	return ok
}

func (e *Engine) ActionNames() []string {
	if e == nil {
		return nil
	}
	names := make([]string, 0, len(e.byAction))
	for name := range e.byAction {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
