// Package hooks turns jq programs from the configuration into reconciler
// hooks. A before-create program receives the draft payload and returns the
// payload to create, or null to skip the create. A before-update program
// receives the update actions and returns the actions to send, or null or an
// empty array to skip the update. Programs can read $kind, $draft and $old.
package hooks

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/logging"
	"github.com/crmarques/catalogsync/reconciler"
	"github.com/crmarques/catalogsync/resource"
)

var variables = []string{"$kind", "$draft", "$old"}

// Program is a compiled jq expression.
type Program struct {
	expression string
	code       *gojq.Code
}

func Compile(expression string) (*Program, error) {
	trimmed := strings.TrimSpace(expression)
	if trimmed == "" {
		return nil, faults.NewTypedError(faults.ValidationError, "hook expression is empty", nil)
	}
	query, err := gojq.Parse(trimmed)
	if err != nil {
		return nil, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("invalid hook expression %q", trimmed), err)
	}
	code, err := gojq.Compile(query, gojq.WithVariables(variables))
	if err != nil {
		return nil, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("invalid hook expression %q", trimmed), err)
	}
	return &Program{expression: trimmed, code: code}, nil
}

func (p *Program) String() string {
	return p.expression
}

// Run evaluates the program and returns its single result. No result is
// reported as nil; several results are an error.
func (p *Program) Run(ctx context.Context, input any, kind resource.Kind, draft *resource.Draft, old *resource.Resource) (any, error) {
	var draftValue, oldValue any
	if draft != nil {
		draftValue = toJQ(draft.Payload)
	}
	if old != nil {
		oldValue = toJQ(old.Payload)
	}

	iterator := p.code.RunWithContext(ctx, toJQ(input), string(kind), draftValue, oldValue)
	var results []any
	for {
		value, ok := iterator.Next()
		if !ok {
			break
		}
		if err, isErr := value.(error); isErr {
			return nil, faults.NewTypedError(faults.ValidationError, fmt.Sprintf("hook %q failed", p.expression), err)
		}
		results = append(results, value)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return resource.Normalize(results[0])
	default:
		return nil, faults.NewTypedError(
			faults.ValidationError,
			fmt.Sprintf("hook %q produced %d results, expected one", p.expression, len(results)),
			nil,
		)
	}
}

type kindHooks struct {
	beforeCreate *Program
	beforeUpdate *Program
}

// Set holds the compiled hooks of every configured kind.
type Set struct {
	kinds map[resource.Kind]kindHooks
}

// New compiles every hook. Hooks are keyed by resource kind.
func New(cfg map[string]config.Hooks) (*Set, error) {
	set := &Set{kinds: make(map[resource.Kind]kindHooks, len(cfg))}
	for _, name := range slices.Sorted(maps.Keys(cfg)) {
		entry := cfg[name]
		kind := resource.Kind(strings.TrimSpace(name))
		var compiled kindHooks
		var err error
		if strings.TrimSpace(entry.BeforeCreate) != "" {
			if compiled.beforeCreate, err = Compile(entry.BeforeCreate); err != nil {
				return nil, fmt.Errorf("hooks.%s.before-create: %w", name, err)
			}
		}
		if strings.TrimSpace(entry.BeforeUpdate) != "" {
			if compiled.beforeUpdate, err = Compile(entry.BeforeUpdate); err != nil {
				return nil, fmt.Errorf("hooks.%s.before-update: %w", name, err)
			}
		}
		set.kinds[kind] = compiled
	}
	return set, nil
}

// BeforeCreate returns the kind's before-create hook, nil when none is set.
func (s *Set) BeforeCreate(kind resource.Kind) reconciler.BeforeCreateHook {
	if s == nil || s.kinds[kind].beforeCreate == nil {
		return nil
	}
	program := s.kinds[kind].beforeCreate
	return func(ctx context.Context, draft *resource.Draft) (*resource.Draft, error) {
		result, err := program.Run(ctx, draft.Payload, kind, draft, nil)
		if err != nil {
			return nil, err
		}
		if result == nil {
			logging.FromContext(ctx).V(logging.DebugLevel).Info("before-create hook skipped draft", "kind", kind, "key", draft.Key())
			return nil, nil
		}
		payload, ok := result.(map[string]any)
		if !ok {
			return nil, faults.NewTypedError(
				faults.ValidationError,
				fmt.Sprintf("before-create hook must return an object or null, got %T", result),
				nil,
			)
		}
		return resource.NewDraft(kind, payload)
	}
}

// BeforeUpdate returns the kind's before-update hook, nil when none is set.
func (s *Set) BeforeUpdate(kind resource.Kind) reconciler.BeforeUpdateHook {
	if s == nil || s.kinds[kind].beforeUpdate == nil {
		return nil
	}
	program := s.kinds[kind].beforeUpdate
	return func(ctx context.Context, actions []diff.Action, draft *resource.Draft, old *resource.Resource) ([]diff.Action, error) {
		input := make([]any, len(actions))
		for idx, action := range actions {
			input[idx] = actionValue(action)
		}
		result, err := program.Run(ctx, input, kind, draft, old)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		items, ok := result.([]any)
		if !ok {
			return nil, faults.NewTypedError(
				faults.ValidationError,
				fmt.Sprintf("before-update hook must return an array of actions or null, got %T", result),
				nil,
			)
		}
		rewritten := make([]diff.Action, 0, len(items))
		for idx, item := range items {
			body, ok := item.(map[string]any)
			if !ok {
				return nil, faults.NewTypedError(
					faults.ValidationError,
					fmt.Sprintf("before-update hook action %d must be an object, got %T", idx, item),
					nil,
				)
			}
			action, err := diff.ActionFromMap(body)
			if err != nil {
				return nil, err
			}
			rewritten = append(rewritten, action)
		}
		return rewritten, nil
	}
}

func actionValue(action diff.Action) map[string]any {
	body := make(map[string]any, len(action.Params)+1)
	for key, value := range action.Params {
		body[key] = value
	}
	body["action"] = action.Name
	return body
}

// toJQ copies a normalized value into the types gojq evaluates: int64 is not
// one of them.
func toJQ(value any) any {
	switch typed := value.(type) {
	case int64:
		return int(typed)
	case map[string]any:
		copied := make(map[string]any, len(typed))
		for key, item := range typed {
			copied[key] = toJQ(item)
		}
		return copied
	case []any:
		copied := make([]any, len(typed))
		for idx, item := range typed {
			copied[idx] = toJQ(item)
		}
		return copied
	default:
		return typed
	}
}
