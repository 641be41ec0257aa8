package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/resource"
	"github.com/crmarques/catalogsync/unresolved"
)

var integrationCounter uint64

func TestNewStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	if _, err := NewStore("  "); !faults.IsCategory(err, faults.ValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOpenFailureIsReportedOnEveryCall(t *testing.T) {
	t.Parallel()

	store, err := NewStore("postgres://unused")
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	opens := 0
	store.openDB = func(string, string) (*sql.DB, error) {
		opens++
		return nil, errors.New("dial refused")
	}

	ctx := context.Background()
	if _, err := store.List(ctx, resource.KindState); !faults.IsCategory(err, faults.TransportError) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if err := store.Delete(ctx, resource.KindState, "s1"); !faults.IsCategory(err, faults.TransportError) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if opens != 1 {
		t.Fatalf("expected a single open attempt, got %d", opens)
	}
}

func TestHelpers(t *testing.T) {
	t.Parallel()

	if got := quoteIdentifier(`odd"name`); got != `"odd""name"` {
		t.Fatalf("unexpected quoted identifier %s", got)
	}

	keys := resource.NewKeySet(
		resource.ReferenceKey{Kind: resource.KindState, Key: "b"},
		resource.ReferenceKey{Kind: resource.KindCategory, Key: "a"},
	)
	if got := missingStrings(keys); !reflect.DeepEqual(got, []string{"category:a", "state:b"}) {
		t.Fatalf("unexpected missing keys %v", got)
	}

	serialization := &pq.Error{Code: "40001"}
	if err := storeError("save", serialization); !faults.IsCategory(err, faults.ConflictError) {
		t.Fatalf("expected serialization failures to be conflicts, got %v", err)
	}
	if err := storeError("save", errors.New("boom")); !faults.IsCategory(err, faults.TransportError) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestPostgresIntegrationMergeAndQueries(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("CATALOGSYNC_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("set CATALOGSYNC_TEST_POSTGRES_DSN to run Postgres integration tests")
	}

	store, err := NewStore(dsn)
	if err != nil {
		t.Fatalf("NewStore returned error: %v", err)
	}
	store.tableName = fmt.Sprintf("catalogsync_unresolved_it_%d_%d", time.Now().UnixNano(), atomic.AddUint64(&integrationCounter, 1))
	t.Cleanup(func() {
		if store.db != nil {
			_, _ = store.db.Exec("DROP TABLE IF EXISTS " + quoteIdentifier(store.tableName))
		}
		_ = store.Close()
	})

	ctx := context.Background()
	save := func(owner string, missing ...string) {
		t.Helper()
		keys := resource.NewKeySet()
		for _, key := range missing {
			keys.Add(resource.ReferenceKey{Kind: resource.KindState, Key: key})
		}
		_, err := store.Save(ctx, unresolved.Record{
			Kind:     resource.KindState,
			OwnerKey: owner,
			Missing:  keys,
			Draft:    resource.MustDraft(resource.KindState, map[string]any{"key": owner}),
		})
		if err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
	}
	save("s1", "s2")
	save("s1", "s3")
	save("s4", "s5")

	fetched, err := store.Fetch(ctx, resource.KindState, []string{"s1"})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if got := len(fetched["s1"].Missing); got != 2 {
		t.Fatalf("expected merged missing keys, got %d", got)
	}

	waiting, err := store.WaitingOn(ctx, resource.KindState, resource.NewKeySet(resource.ReferenceKey{Kind: resource.KindState, Key: "s5"}))
	if err != nil {
		t.Fatalf("WaitingOn returned error: %v", err)
	}
	if len(waiting) != 1 || waiting[0].OwnerKey != "s4" {
		t.Fatalf("unexpected waiting records %#v", waiting)
	}

	if err := store.Delete(ctx, resource.KindState, "s1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	listed, err := store.List(ctx, resource.KindState)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one remaining record, got %d", len(listed))
	}
}
