package resource

import (
	"fmt"

	"github.com/crmarques/catalogsync/faults"
)

// MaxNestingDepth bounds recursive walks over attribute types and reference
// values. Self-referencing definitions deeper than this are rejected.
const MaxNestingDepth = 32

// AttributeType is the variant tree of a product-type attribute type:
// Scalar | Collection(AttributeType) | Nested(reference to a product type).
type AttributeType interface {
	attributeType()
}

type ScalarType struct {
	Name   string
	Fields map[string]any
}

type CollectionType struct {
	Name    string
	Element AttributeType
}

type NestedType struct {
	Reference Reference
}

func (ScalarType) attributeType()     {}
func (CollectionType) attributeType() {}
func (NestedType) attributeType()     {}

func ParseAttributeType(value any) (AttributeType, error) {
	return parseAttributeType(value, 0)
}

func parseAttributeType(value any, depth int) (AttributeType, error) {
	if depth > MaxNestingDepth {
		return nil, faults.NewTypedError(
			faults.ValidationError,
			fmt.Sprintf("attribute type nesting exceeds %d levels", MaxNestingDepth),
			nil,
		)
	}

	object, ok := value.(map[string]any)
	if !ok {
		return nil, faults.NewTypedError(faults.ValidationError, "attribute type must be an object", nil)
	}
	name, _ := object["name"].(string)

	switch name {
	case "":
		return nil, faults.NewTypedError(faults.ValidationError, "attribute type name is required", nil)
	case "set":
		element, err := parseAttributeType(object["elementType"], depth+1)
		if err != nil {
			return nil, err
		}
		return CollectionType{Name: name, Element: element}, nil
	case "nested":
		ref, ok := ParseReference(object["typeReference"])
		if !ok {
			return nil, faults.NewTypedError(faults.ValidationError, "nested attribute type requires typeReference", nil)
		}
		return NestedType{Reference: ref}, nil
	default:
		fields := make(map[string]any, len(object))
		for key, item := range object {
			if key == "name" {
				continue
			}
			fields[key] = DeepCopy(item)
		}
		return ScalarType{Name: name, Fields: fields}, nil
	}
}

// EncodeAttributeType renders the tree back into platform shape.
func EncodeAttributeType(attributeType AttributeType) map[string]any {
	switch typed := attributeType.(type) {
	case CollectionType:
		return map[string]any{
			"name":        typed.Name,
			"elementType": EncodeAttributeType(typed.Element),
		}
	case NestedType:
		return map[string]any{
			"name":          "nested",
			"typeReference": typed.Reference.Value(),
		}
	case ScalarType:
		encoded := make(map[string]any, len(typed.Fields)+1)
		for key, item := range typed.Fields {
			encoded[key] = DeepCopy(item)
		}
		encoded["name"] = typed.Name
		return encoded
	default:
		return nil
	}
}

// MapNestedReferences rebuilds the tree with every nested reference replaced by
// fn's result. The collection wrapping around each leaf is preserved.
func MapNestedReferences(attributeType AttributeType, fn func(Reference) (Reference, error)) (AttributeType, error) {
	return mapNestedReferences(attributeType, 0, fn)
}

func mapNestedReferences(attributeType AttributeType, depth int, fn func(Reference) (Reference, error)) (AttributeType, error) {
	if depth > MaxNestingDepth {
		return nil, faults.NewTypedError(
			faults.ValidationError,
			fmt.Sprintf("attribute type nesting exceeds %d levels", MaxNestingDepth),
			nil,
		)
	}

	switch typed := attributeType.(type) {
	case CollectionType:
		element, err := mapNestedReferences(typed.Element, depth+1, fn)
		if err != nil {
			return nil, err
		}
		return CollectionType{Name: typed.Name, Element: element}, nil
	case NestedType:
		ref, err := fn(typed.Reference)
		if err != nil {
			return nil, err
		}
		return NestedType{Reference: ref}, nil
	default:
		return attributeType, nil
	}
}

// NestedReferences lists the nested references of a tree.
func NestedReferences(attributeType AttributeType) []Reference {
	var refs []Reference
	_, _ = MapNestedReferences(attributeType, func(ref Reference) (Reference, error) {
		refs = append(refs, ref)
		return ref, nil
	})
	return refs
}

// MapReferences walks an arbitrary value (lists of lists, objects holding
// references) and replaces every reference object with fn's result.
func MapReferences(value any, fn func(Reference) (Reference, error)) (any, error) {
	return mapReferences(value, 0, fn)
}

func mapReferences(value any, depth int, fn func(Reference) (Reference, error)) (any, error) {
	if depth > MaxNestingDepth {
		return nil, faults.NewTypedError(
			faults.ValidationError,
			fmt.Sprintf("reference nesting exceeds %d levels", MaxNestingDepth),
			nil,
		)
	}

	switch typed := value.(type) {
	case map[string]any:
		if ref, ok := ParseReference(typed); ok {
			resolved, err := fn(ref)
			if err != nil {
				return nil, err
			}
			if resolved == ref {
				return typed, nil
			}
			return resolved.Value(), nil
		}
		rebuilt := make(map[string]any, len(typed))
		for key, item := range typed {
			mapped, err := mapReferences(item, depth+1, fn)
			if err != nil {
				return nil, err
			}
			rebuilt[key] = mapped
		}
		return rebuilt, nil
	case []any:
		rebuilt := make([]any, len(typed))
		for idx, item := range typed {
			mapped, err := mapReferences(item, depth+1, fn)
			if err != nil {
				return nil, err
			}
			rebuilt[idx] = mapped
		}
		return rebuilt, nil
	default:
		return value, nil
	}
}
