package unresolved

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/resource"
)

// Record is a draft deferred because some referenced keys did not exist yet.
type Record struct {
	Kind     resource.Kind
	OwnerKey string
	Missing  resource.KeySet
	Draft    *resource.Draft
}

// Store persists deferred drafts. Implementations must be safe for
// concurrent use; overlapping runs may race on the same owner and the last
// merge wins.
type Store interface {
	// Save upserts the record of an owner, merging with a pending one.
	Save(ctx context.Context, record Record) (Record, error)
	// Fetch reads the pending records of the given owners.
	Fetch(ctx context.Context, kind resource.Kind, ownerKeys []string) (map[string]Record, error)
	Delete(ctx context.Context, kind resource.Kind, ownerKey string) error
	// WaitingOn returns the records of kind missing at least one of keys,
	// ordered by owner key.
	WaitingOn(ctx context.Context, kind resource.Kind, keys resource.KeySet) ([]Record, error)
	// List returns every pending record of kind ordered by owner key.
	List(ctx context.Context, kind resource.Kind) ([]Record, error)
}

// Merge combines a pending record with a new deferral of the same owner:
// missing keys accumulate and the newest draft replaces the stored one.
func Merge(pending *Record, incoming Record) Record {
	merged := Record{
		Kind:     incoming.Kind,
		OwnerKey: incoming.OwnerKey,
		Missing:  resource.NewKeySet(),
		Draft:    incoming.Draft,
	}
	if pending != nil {
		merged.Missing.AddAll(pending.Missing)
		if merged.Draft == nil {
			merged.Draft = pending.Draft
		}
	}
	merged.Missing.AddAll(incoming.Missing)
	return merged
}

// ReadyWith reports whether every missing key of the record is now known.
func (r Record) ReadyWith(known func(resource.ReferenceKey) bool) bool {
	for key := range r.Missing {
		if !known(key) {
			return false
		}
	}
	return true
}

// WaitsOn reports whether the record misses any of keys.
func (r Record) WaitsOn(keys resource.KeySet) bool {
	for key := range r.Missing {
		if keys.Has(key) {
			return true
		}
	}
	return false
}

func (r Record) Validate() error {
	if r.Kind == "" {
		return faults.NewTypedError(faults.ValidationError, "unresolved record kind is required", nil)
	}
	if r.OwnerKey == "" {
		return faults.NewTypedError(faults.ValidationError, "unresolved record owner key is required", nil)
	}
	if r.Draft == nil {
		return faults.NewTypedError(
			faults.ValidationError,
			fmt.Sprintf("unresolved record for %s %q has no draft", r.Kind, r.OwnerKey),
			nil,
		)
	}
	return nil
}

// Document is the persisted value of a record.
type Document struct {
	Key                   string                  `json:"key"`
	MissingReferencedKeys []resource.ReferenceKey `json:"missingReferencedKeys"`
	Draft                 map[string]any          `json:"draft"`
}

func (r Record) Document() Document {
	draft := map[string]any{}
	if r.Draft != nil {
		draft = r.Draft.Payload
	}
	return Document{
		Key:                   r.OwnerKey,
		MissingReferencedKeys: r.Missing.Sorted(),
		Draft:                 draft,
	}
}

func (r Record) MarshalDocument() ([]byte, error) {
	return json.Marshal(r.Document())
}

// DecodeDocument rebuilds a record of kind from its persisted value.
func DecodeDocument(kind resource.Kind, data []byte) (Record, error) {
	var document Document
	if err := json.Unmarshal(data, &document); err != nil {
		return Record{}, faults.NewTypedError(faults.ValidationError, "invalid unresolved record document", err)
	}
	return document.Record(kind)
}

func (d Document) Record(kind resource.Kind) (Record, error) {
	draft, err := resource.NewDraft(kind, d.Draft)
	if err != nil {
		return Record{}, err
	}
	record := Record{
		Kind:     kind,
		OwnerKey: d.Key,
		Missing:  resource.NewKeySet(d.MissingReferencedKeys...),
		Draft:    draft,
	}
	return record, record.Validate()
}

// SortRecords orders records by owner key.
func SortRecords(records []Record) {
	sort.Slice(records, func(i int, j int) bool { return records[i].OwnerKey < records[j].OwnerKey })
}
