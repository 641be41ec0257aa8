package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/resource"
	"github.com/crmarques/catalogsync/unresolved"
)

var _ unresolved.Store = (*Store)(nil)

const (
	DefaultTableName = "catalogsync_unresolved"
	operationTimeout = 10 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Store keeps deferred drafts in a Postgres table keyed by (kind, owner_key).
// The table is created on first use.
type Store struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, faults.NewTypedError(faults.ValidationError, "postgres unresolved store requires a dsn", nil)
	}
	return &Store{dsn: dsn, tableName: DefaultTableName, openDB: sql.Open}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureReady(ctx context.Context) error {
	s.initOnce.Do(func() {
		db, err := s.openDB("postgres", s.dsn)
		if err != nil {
			s.initErr = storeError("failed to open postgres", err)
			return
		}
		ctx, cancel := context.WithTimeout(ctx, operationTimeout)
		defer cancel()

		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				kind TEXT NOT NULL,
				owner_key TEXT NOT NULL,
				missing_keys TEXT[] NOT NULL,
				document TEXT NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (kind, owner_key)
			)`, quoteIdentifier(s.tableName))
		if _, err := db.ExecContext(ctx, query); err != nil {
			_ = db.Close()
			s.initErr = storeError("failed to create unresolved table", err)
			return
		}
		s.db = db
	})
	return s.initErr
}

// Save merges with the stored row inside a transaction holding the row lock.
func (s *Store) Save(ctx context.Context, record unresolved.Record) (unresolved.Record, error) {
	if err := record.Validate(); err != nil {
		return unresolved.Record{}, err
	}
	if err := s.ensureReady(ctx); err != nil {
		return unresolved.Record{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unresolved.Record{}, storeError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var pending *unresolved.Record
	var document string
	err = tx.QueryRowContext(
		ctx,
		fmt.Sprintf("SELECT document FROM %s WHERE kind = $1 AND owner_key = $2 FOR UPDATE", quoteIdentifier(s.tableName)),
		string(record.Kind),
		record.OwnerKey,
	).Scan(&document)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return unresolved.Record{}, storeError("failed to read unresolved record", err)
	default:
		existing, err := unresolved.DecodeDocument(record.Kind, []byte(document))
		if err != nil {
			return unresolved.Record{}, err
		}
		pending = &existing
	}

	merged := unresolved.Merge(pending, record)
	encoded, err := merged.MarshalDocument()
	if err != nil {
		return unresolved.Record{}, faults.NewTypedError(faults.InternalError, "failed to encode unresolved record", err)
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (kind, owner_key, missing_keys, document, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (kind, owner_key)
		DO UPDATE SET missing_keys = EXCLUDED.missing_keys, document = EXCLUDED.document, updated_at = NOW()`,
		quoteIdentifier(s.tableName)),
		string(merged.Kind),
		merged.OwnerKey,
		pq.Array(missingStrings(merged.Missing)),
		string(encoded),
	)
	if err != nil {
		return unresolved.Record{}, storeError("failed to write unresolved record", err)
	}
	if err := tx.Commit(); err != nil {
		return unresolved.Record{}, storeError("failed to commit unresolved record", err)
	}
	return merged, nil
}

func (s *Store) Fetch(ctx context.Context, kind resource.Kind, ownerKeys []string) (map[string]unresolved.Record, error) {
	found := make(map[string]unresolved.Record, len(ownerKeys))
	if len(ownerKeys) == 0 {
		return found, nil
	}
	records, err := s.query(
		ctx,
		kind,
		fmt.Sprintf("SELECT document FROM %s WHERE kind = $1 AND owner_key = ANY($2)", quoteIdentifier(s.tableName)),
		string(kind),
		pq.Array(ownerKeys),
	)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		found[record.OwnerKey] = record
	}
	return found, nil
}

func (s *Store) Delete(ctx context.Context, kind resource.Kind, ownerKey string) error {
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	_, err := s.db.ExecContext(
		ctx,
		fmt.Sprintf("DELETE FROM %s WHERE kind = $1 AND owner_key = $2", quoteIdentifier(s.tableName)),
		string(kind),
		ownerKey,
	)
	if err != nil {
		return storeError("failed to delete unresolved record", err)
	}
	return nil
}

// WaitingOn uses the array overlap operator on the missing keys column.
func (s *Store) WaitingOn(ctx context.Context, kind resource.Kind, keys resource.KeySet) ([]unresolved.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	return s.query(
		ctx,
		kind,
		fmt.Sprintf("SELECT document FROM %s WHERE kind = $1 AND missing_keys && $2 ORDER BY owner_key", quoteIdentifier(s.tableName)),
		string(kind),
		pq.Array(missingStrings(keys)),
	)
}

func (s *Store) List(ctx context.Context, kind resource.Kind) ([]unresolved.Record, error) {
	return s.query(
		ctx,
		kind,
		fmt.Sprintf("SELECT document FROM %s WHERE kind = $1 ORDER BY owner_key", quoteIdentifier(s.tableName)),
		string(kind),
	)
}

func (s *Store) query(ctx context.Context, kind resource.Kind, query string, args ...any) ([]unresolved.Record, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeError("failed to query unresolved records", err)
	}
	defer rows.Close()

	var records []unresolved.Record
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, storeError("failed to scan unresolved record", err)
		}
		record, err := unresolved.DecodeDocument(kind, []byte(document))
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to iterate unresolved records", err)
	}
	unresolved.SortRecords(records)
	return records, nil
}

func missingStrings(keys resource.KeySet) []string {
	sorted := keys.Sorted()
	values := make([]string, len(sorted))
	for idx, key := range sorted {
		values[idx] = key.String()
	}
	return values
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func storeError(message string, cause error) error {
	var pqErr *pq.Error
	if errors.As(cause, &pqErr) && pqErr.Code.Class() == "40" {
		return faults.NewTypedError(faults.ConflictError, message, cause)
	}
	return faults.NewTypedError(faults.TransportError, message, cause)
}
