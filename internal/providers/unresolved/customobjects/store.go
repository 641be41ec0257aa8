package customobjects

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/crmarques/catalogsync/faults"
	"github.com/crmarques/catalogsync/logging"
	"github.com/crmarques/catalogsync/platform"
	"github.com/crmarques/catalogsync/resource"
	"github.com/crmarques/catalogsync/unresolved"
)

var _ unresolved.Store = (*Store)(nil)

const (
	ContainerPrefix = "catalogsync.unresolved."
	saveAttempts    = 2
)

// Store keeps deferred drafts as custom objects of the target platform, one
// container per kind and one object per owner.
type Store struct {
	Client   platform.Client
	PageSize int
}

func NewStore(client platform.Client) *Store {
	return &Store{Client: client, PageSize: platform.DefaultPageSize}
}

// Container is the custom-object container holding the records of kind.
func Container(kind resource.Kind) string {
	return ContainerPrefix + string(kind)
}

// ObjectKey is the SHA-1 hex digest of the owner key, which keeps object keys
// within the platform's key alphabet whatever the owner key contains.
func ObjectKey(ownerKey string) string {
	digest := sha1.Sum([]byte(ownerKey))
	return hex.EncodeToString(digest[:])
}

// Save merges with the stored record under the object's version. A conflict
// with a concurrent writer re-reads and merges once more.
func (s *Store) Save(ctx context.Context, record unresolved.Record) (unresolved.Record, error) {
	if err := record.Validate(); err != nil {
		return unresolved.Record{}, err
	}

	container := Container(record.Kind)
	key := ObjectKey(record.OwnerKey)

	var lastErr error
	for range saveAttempts {
		objects, err := s.Client.QueryCustomObjects(ctx, container, []string{key})
		if err != nil {
			return unresolved.Record{}, storeError("failed to read unresolved record", err)
		}

		var (
			pending *unresolved.Record
			version int64
		)
		if len(objects) > 0 {
			existing, err := decodeObject(record.Kind, objects[0])
			if err != nil {
				return unresolved.Record{}, err
			}
			pending = &existing
			version = objects[0].Version
		}

		merged := unresolved.Merge(pending, record)
		value, err := encodeRecord(merged)
		if err != nil {
			return unresolved.Record{}, err
		}

		_, err = s.Client.UpsertCustomObject(ctx, platform.CustomObject{
			Container: container,
			Key:       key,
			Value:     value,
			Version:   version,
		})
		if err == nil {
			return merged, nil
		}
		if !faults.IsCategory(err, faults.ConflictError) {
			return unresolved.Record{}, storeError("failed to write unresolved record", err)
		}
		lastErr = err
		logging.FromContext(ctx).V(logging.DebugLevel).Info("unresolved record changed concurrently, merging again", "kind", record.Kind, "key", record.OwnerKey)
	}
	return unresolved.Record{}, faults.NewTypedError(
		faults.ConflictError,
		fmt.Sprintf("unresolved record of %s %q kept changing while saving", record.Kind, record.OwnerKey),
		lastErr,
	)
}

func (s *Store) Fetch(ctx context.Context, kind resource.Kind, ownerKeys []string) (map[string]unresolved.Record, error) {
	found := make(map[string]unresolved.Record, len(ownerKeys))
	if len(ownerKeys) == 0 {
		return found, nil
	}

	hashed := make([]string, 0, len(ownerKeys))
	for _, owner := range ownerKeys {
		hashed = append(hashed, ObjectKey(owner))
	}

	for _, chunk := range platform.Chunk(hashed, s.PageSize) {
		objects, err := s.Client.QueryCustomObjects(ctx, Container(kind), chunk)
		if err != nil {
			return nil, storeError("failed to read unresolved records", err)
		}
		for _, object := range objects {
			record, err := decodeObject(kind, object)
			if err != nil {
				return nil, err
			}
			found[record.OwnerKey] = record
		}
	}
	return found, nil
}

// Delete removes the record of an owner. A missing record is not an error.
func (s *Store) Delete(ctx context.Context, kind resource.Kind, ownerKey string) error {
	err := s.Client.DeleteCustomObject(ctx, Container(kind), ObjectKey(ownerKey))
	if err == nil || faults.IsCategory(err, faults.NotFoundError) {
		return nil
	}
	return storeError("failed to delete unresolved record", err)
}

func (s *Store) WaitingOn(ctx context.Context, kind resource.Kind, keys resource.KeySet) ([]unresolved.Record, error) {
	records, err := s.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	waiting := make([]unresolved.Record, 0, len(records))
	for _, record := range records {
		if record.WaitsOn(keys) {
			waiting = append(waiting, record)
		}
	}
	return waiting, nil
}

func (s *Store) List(ctx context.Context, kind resource.Kind) ([]unresolved.Record, error) {
	objects, err := s.Client.QueryCustomObjects(ctx, Container(kind), nil)
	if err != nil {
		return nil, storeError("failed to list unresolved records", err)
	}

	records := make([]unresolved.Record, 0, len(objects))
	for _, object := range objects {
		record, err := decodeObject(kind, object)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	unresolved.SortRecords(records)
	return records, nil
}

func encodeRecord(record unresolved.Record) (map[string]any, error) {
	data, err := record.MarshalDocument()
	if err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to encode unresolved record", err)
	}
	var value map[string]any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, faults.NewTypedError(faults.InternalError, "failed to encode unresolved record", err)
	}
	return value, nil
}

func decodeObject(kind resource.Kind, object platform.CustomObject) (unresolved.Record, error) {
	data, err := json.Marshal(object.Value)
	if err != nil {
		return unresolved.Record{}, faults.NewTypedError(faults.ValidationError, "invalid unresolved record document", err)
	}
	return unresolved.DecodeDocument(kind, data)
}

func storeError(message string, cause error) error {
	if category := faults.CategoryOf(cause); category != "" {
		return faults.NewTypedError(category, message, cause)
	}
	return faults.NewTypedError(faults.TransportError, message, cause)
}
