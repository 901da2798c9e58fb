package pointer

import (
	"strings"

	"github.com/nlstn/go-condfilter/internal/metadata"
)

// PropertyRef describes what a dotted property path ends on.
type PropertyRef struct {
	Path     string
	Kind     metadata.PropertyKind
	Resolved bool
	// Owner is the entity declaring the final segment.
	Owner *metadata.EntityMetadata
	// Property is the metadata of the final segment.
	Property *metadata.PropertyMetadata
	// Through lists the collection properties crossed on the way, in order.
	Through []string
}

// Resolve walks path starting at entity. Navigation segments move the pointer;
// the first non-navigation segment and everything after it are resolved as a
// property path (embedded structs) on the entity reached so far.
func Resolve(model *metadata.Model, entity *metadata.EntityMetadata, path string) PropertyRef {
	ref := PropertyRef{Path: path}

	start, err := NewEntityPointer(entity)
	if err != nil {
		return ref
	}

	segments := strings.Split(strings.TrimSpace(path), metadata.PathSeparator)
	var current Pointer = start

	for i, segment := range segments {
		owner := current.Entity()
		if owner == nil || strings.TrimSpace(segment) == "" {
			return ref
		}

		nextPointer := current.Next(model, segment)
		if IsTerminal(nextPointer) {
			prop, _, err := owner.ResolvePropertyPath(strings.Join(segments[i:], metadata.PathSeparator))
			if err != nil {
				return ref
			}
			ref.Resolved = true
			ref.Owner = owner
			ref.Property = prop
			ref.Kind = prop.Kind()
			return ref
		}

		if collection, ok := nextPointer.(*CollectionPointer); ok {
			ref.Through = append(ref.Through, collection.Property().Name)
		}

		if i == len(segments)-1 {
			ref.Resolved = true
			ref.Owner = owner
			ref.Property = owner.FindNavigationProperty(segment)
			ref.Kind = ref.Property.Kind()
			return ref
		}
		current = nextPointer
	}

	return ref
}
