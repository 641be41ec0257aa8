package diff

import "strings"

// Fields are addressed with dotted names ("type.values"). Intermediate
// values must be objects.

func lookup(object map[string]any, field string) any {
	var current any = object
	for _, segment := range strings.Split(field, ".") {
		typed, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = typed[segment]
	}
	return current
}

func assign(object map[string]any, field string, value any) {
	segments := strings.Split(field, ".")
	current := object
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	last := segments[len(segments)-1]
	if value == nil {
		delete(current, last)
		return
	}
	current[last] = value
}

// remove deletes a dotted field without creating intermediate objects.
func remove(object map[string]any, field string) {
	segments := strings.Split(field, ".")
	current := object
	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, segments[len(segments)-1])
}

func rootOf(field string) string {
	root, _, _ := strings.Cut(field, ".")
	return root
}

func asObject(value any) map[string]any {
	object, _ := value.(map[string]any)
	return object
}

func asList(value any) []any {
	items, _ := value.([]any)
	return items
}

func keyOf(element any, keyField string) string {
	key, _ := asObject(element)[keyField].(string)
	return strings.TrimSpace(key)
}
