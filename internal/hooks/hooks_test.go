package hooks

import (
	"context"
	"reflect"
	"testing"

	"github.com/crmarques/catalogsync/config"
	"github.com/crmarques/catalogsync/diff"
	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/resource"
)

func TestBeforeCreateRewritesDraft(t *testing.T) {
	t.Parallel()

	set, err := New(map[string]config.Hooks{
		"category": {BeforeCreate: `.orderHint = (.orderHint // "0.5") | .slug.en = ($kind + "-" + .key)`},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	hook := set.BeforeCreate(resource.KindCategory)
	if hook == nil {
		t.Fatal("expected a before-create hook")
	}

	draft := resource.MustDraft(resource.KindCategory, map[string]any{"key": "shoes", "rank": int64(2)})
	rewritten, err := hook(context.Background(), draft)
	if err != nil {
		t.Fatalf("hook returned error: %v", err)
	}
	want := map[string]any{
		"key":       "shoes",
		"rank":      int64(2),
		"orderHint": "0.5",
		"slug":      map[string]any{"en": "category-shoes"},
	}
	if !reflect.DeepEqual(rewritten.Payload, want) {
		t.Fatalf("unexpected payload %#v", rewritten.Payload)
	}
	if _, found := draft.Payload["orderHint"]; found {
		t.Fatal("expected the original draft to be left untouched")
	}
}

func TestBeforeCreateNullSkips(t *testing.T) {
	t.Parallel()

	set, err := New(map[string]config.Hooks{
		"state": {BeforeCreate: `if .key | startswith("tmp-") then null else . end`},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	hook := set.BeforeCreate(resource.KindState)

	skipped, err := hook(context.Background(), resource.MustDraft(resource.KindState, map[string]any{"key": "tmp-1"}))
	if err != nil || skipped != nil {
		t.Fatalf("expected skip, got %#v, %v", skipped, err)
	}
	kept, err := hook(context.Background(), resource.MustDraft(resource.KindState, map[string]any{"key": "open"}))
	if err != nil || kept == nil || kept.Key() != "open" {
		t.Fatalf("expected draft kept, got %#v, %v", kept, err)
	}
}

func TestBeforeUpdateFiltersActions(t *testing.T) {
	t.Parallel()

	set, err := New(map[string]config.Hooks{
		"product": {BeforeUpdate: `map(select(.action != "changeSlug" or $old.key != "pinned"))`},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	hook := set.BeforeUpdate(resource.KindProduct)
	if hook == nil {
		t.Fatal("expected a before-update hook")
	}

	actions := []diff.Action{
		diff.NewAction("changeSlug", map[string]any{"slug": map[string]any{"en": "new"}}),
		diff.NewAction("setDescription", map[string]any{"description": "d"}),
	}
	draft := resource.MustDraft(resource.KindProduct, map[string]any{"key": "pinned"})
	old := &resource.Resource{Kind: resource.KindProduct, ID: "p-1", Key: "pinned", Version: 4, Payload: map[string]any{"key": "pinned"}}

	rewritten, err := hook(context.Background(), actions, draft, old)
	if err != nil {
		t.Fatalf("hook returned error: %v", err)
	}
	if got := diff.Names(rewritten); !reflect.DeepEqual(got, []string{"setDescription"}) {
		t.Fatalf("unexpected actions %v", got)
	}
	if rewritten[0].Params["description"] != "d" {
		t.Fatalf("unexpected params %#v", rewritten[0].Params)
	}
}

func TestBeforeUpdateRejectsMalformedResults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		expression string
	}{
		{name: "object result", expression: `{action: "x"}`},
		{name: "non-object action", expression: `[1]`},
		{name: "missing action name", expression: `[{}]`},
		{name: "several results", expression: `.[], .[]`},
		{name: "runtime error", expression: `error("boom")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			set, err := New(map[string]config.Hooks{"state": {BeforeUpdate: tt.expression}})
			if err != nil {
				t.Fatalf("New returned error: %v", err)
			}
			actions := []diff.Action{diff.NewAction("setName", map[string]any{"name": "n"})}
			_, err = set.BeforeUpdate(resource.KindState)(context.Background(), actions, nil, nil)
			if !faults.IsCategory(err, faults.ValidationError) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNewRejectsInvalidExpression(t *testing.T) {
	t.Parallel()

	_, err := New(map[string]config.Hooks{"state": {BeforeCreate: `.key |`}})
	if !faults.HasCategory(err, faults.ValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMissingHooksAreNil(t *testing.T) {
	t.Parallel()

	set, err := New(map[string]config.Hooks{"state": {BeforeCreate: "."}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if set.BeforeUpdate(resource.KindState) != nil {
		t.Fatal("expected no before-update hook")
	}
	if set.BeforeCreate(resource.KindProduct) != nil {
		t.Fatal("expected no before-create hook for an unconfigured kind")
	}
	var empty *Set
	if empty.BeforeCreate(resource.KindState) != nil {
		t.Fatal("expected nil set to yield no hooks")
	}
}
