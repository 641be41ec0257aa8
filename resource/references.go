package resource

import (
	"fmt"
	"sort"
	"strings"
)

// Reference points at another resource by key or by id.
type Reference struct {
	TypeID Kind
	ID     string
	Key    string
}

// ReferenceKey is a reference that still needs its key resolved to an id.
type ReferenceKey struct {
	Kind Kind   `json:"typeId"`
	Key  string `json:"key"`
}

func (k ReferenceKey) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.Key)
}

// ParseReference recognises {"typeId": ..., "id"|"key": ...} objects.
func ParseReference(value any) (Reference, bool) {
	object, ok := value.(map[string]any)
	if !ok {
		return Reference{}, false
	}
	typeID, ok := object["typeId"].(string)
	if !ok {
		return Reference{}, false
	}
	id, _ := object["id"].(string)
	key, _ := object["key"].(string)
	return Reference{
		TypeID: Kind(strings.TrimSpace(typeID)),
		ID:     strings.TrimSpace(id),
		Key:    strings.TrimSpace(key),
	}, true
}

func (r Reference) IsResolved() bool {
	return r.ID != ""
}

func (r Reference) ReferenceKey() ReferenceKey {
	return ReferenceKey{Kind: r.TypeID, Key: r.Key}
}

// Value renders the reference in platform shape. A reference with an id is
// written without its key.
func (r Reference) Value() map[string]any {
	value := map[string]any{"typeId": string(r.TypeID)}
	if r.ID != "" {
		value["id"] = r.ID
		return value
	}
	value["key"] = r.Key
	return value
}

// KeySet is an insertion-independent set of reference keys.
type KeySet map[ReferenceKey]struct{}

func NewKeySet(keys ...ReferenceKey) KeySet {
	set := make(KeySet, len(keys))
	for _, key := range keys {
		set.Add(key)
	}
	return set
}

func (s KeySet) Add(key ReferenceKey) {
	if strings.TrimSpace(key.Key) == "" {
		return
	}
	s[key] = struct{}{}
}

func (s KeySet) AddAll(other KeySet) {
	for key := range other {
		s[key] = struct{}{}
	}
}

func (s KeySet) Has(key ReferenceKey) bool {
	_, ok := s[key]
	return ok
}

// Sorted returns the keys ordered by kind then key.
func (s KeySet) Sorted() []ReferenceKey {
	keys := make([]ReferenceKey, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i int, j int) bool {
		if keys[i].Kind == keys[j].Kind {
			return keys[i].Key < keys[j].Key
		}
		return keys[i].Kind < keys[j].Kind
	})
	return keys
}

// ByKind groups the set's keys per kind, each group sorted.
func (s KeySet) ByKind() map[Kind][]string {
	grouped := make(map[Kind][]string)
	for _, key := range s.Sorted() {
		grouped[key.Kind] = append(grouped[key.Kind], key.Key)
	}
	return grouped
}
