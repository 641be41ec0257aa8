package resource

import (
	"fmt"
	"strings"

	"github.com/crmarques/catalogsync/faults"
)

// FieldPath addresses values inside a payload. Segments are separated by
// dots; a segment ending in "[]" visits every element of a list, for example
// "attributes[].type" or "custom.type".
type FieldPath struct {
	raw   string
	steps []pathStep
}

type pathStep struct {
	name string
	each bool
}

func ParseFieldPath(raw string) (FieldPath, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return FieldPath{}, faults.NewTypedError(faults.ValidationError, "field path must not be empty", nil)
	}

	segments := strings.Split(trimmed, ".")
	steps := make([]pathStep, 0, len(segments))
	for _, segment := range segments {
		each := strings.HasSuffix(segment, "[]")
		name := strings.TrimSuffix(segment, "[]")
		if name == "" || strings.ContainsAny(name, "[]") {
			return FieldPath{}, faults.NewTypedError(
				faults.ValidationError,
				fmt.Sprintf("invalid field path %q", raw),
				nil,
			)
		}
		steps = append(steps, pathStep{name: name, each: each})
	}
	return FieldPath{raw: trimmed, steps: steps}, nil
}

func MustFieldPath(raw string) FieldPath {
	path, err := ParseFieldPath(raw)
	if err != nil {
		panic(err)
	}
	return path
}

func (p FieldPath) String() string { return p.raw }

// Root is the first segment name; descriptors use it to tie reference
// fields to diff rules.
func (p FieldPath) Root() string {
	if len(p.steps) == 0 {
		return ""
	}
	return p.steps[0].name
}

// Visit calls fn for every value addressed by the path. Absent values are
// skipped.
func (p FieldPath) Visit(payload map[string]any, fn func(value any) error) error {
	return visitSteps(payload, p.steps, fn)
}

func visitSteps(current any, steps []pathStep, fn func(value any) error) error {
	if len(steps) == 0 {
		return fn(current)
	}
	object, ok := current.(map[string]any)
	if !ok {
		return nil
	}
	step := steps[0]
	next, found := object[step.name]
	if !found || next == nil {
		return nil
	}
	if !step.each {
		return visitSteps(next, steps[1:], fn)
	}
	items, ok := next.([]any)
	if !ok {
		return nil
	}
	for _, item := range items {
		if err := visitSteps(item, steps[1:], fn); err != nil {
			return err
		}
	}
	return nil
}

// Rewrite returns a copy of payload where every addressed value has been
// replaced by fn's result. Containers on the path are copied; everything else
// is shared with the input.
func (p FieldPath) Rewrite(payload map[string]any, fn func(value any) (any, error)) (map[string]any, error) {
	rewritten, err := rewriteSteps(payload, p.steps, fn)
	if err != nil {
		return nil, err
	}
	object, _ := rewritten.(map[string]any)
	return object, nil
}

func rewriteSteps(current any, steps []pathStep, fn func(value any) (any, error)) (any, error) {
	if len(steps) == 0 {
		return fn(current)
	}
	object, ok := current.(map[string]any)
	if !ok {
		return current, nil
	}
	step := steps[0]
	next, found := object[step.name]
	if !found || next == nil {
		return current, nil
	}

	var replaced any
	if step.each {
		items, ok := next.([]any)
		if !ok {
			return current, nil
		}
		rewrittenItems := make([]any, len(items))
		for idx, item := range items {
			value, err := rewriteSteps(item, steps[1:], fn)
			if err != nil {
				return nil, err
			}
			rewrittenItems[idx] = value
		}
		replaced = rewrittenItems
	} else {
		value, err := rewriteSteps(next, steps[1:], fn)
		if err != nil {
			return nil, err
		}
		replaced = value
	}

	copied := make(map[string]any, len(object))
	for key, value := range object {
		copied[key] = value
	}
	copied[step.name] = replaced
	return copied, nil
}
