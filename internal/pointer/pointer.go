// Package pointer provides a navigation cursor over the entity metamodel.
//
// A Pointer is positioned at an entity type. Following a field either lands on
// another entity (a reference or the element type of a collection) or on
// NoPointer, the terminal state. Navigation never fails: unknown fields, scalar
// fields and unregistered targets all degrade to NoPointer, and NoPointer stays
// NoPointer for every further step.
package pointer

import (
	"errors"
	"strings"

	"github.com/nlstn/go-condfilter/internal/metadata"
)

// ErrNilEntity is returned when a pointer is constructed without an entity.
var ErrNilEntity = errors.New("pointer: entity metadata is required")

// Pointer is a position in the metamodel. The set of implementations is closed.
type Pointer interface {
	// Next follows field from the current position. model is used to resolve the
	// navigation target; when nil, the entity's own registry is consulted.
	Next(model *metadata.Model, field string) Pointer
	// Entity returns the entity the pointer is positioned at, or nil for NoPointer.
	Entity() *metadata.EntityMetadata

	pointerNode()
}

// EntityPointer is positioned at a single entity.
type EntityPointer struct {
	entity *metadata.EntityMetadata
}

// NewEntityPointer creates a pointer positioned at entity.
func NewEntityPointer(entity *metadata.EntityMetadata) (*EntityPointer, error) {
	if entity == nil {
		return nil, ErrNilEntity
	}
	return &EntityPointer{entity: entity}, nil
}

// Entity returns the entity the pointer refers to.
func (p *EntityPointer) Entity() *metadata.EntityMetadata { return p.entity }

// Next follows a navigation property of the entity.
func (p *EntityPointer) Next(model *metadata.Model, field string) Pointer {
	return next(p.entity, model, field)
}

func (p *EntityPointer) pointerNode() {}

// CollectionPointer is positioned at the element entity of a to-many navigation.
type CollectionPointer struct {
	entity   *metadata.EntityMetadata
	property *metadata.PropertyMetadata
}

// NewCollectionPointer creates a pointer over the elements of a collection property.
func NewCollectionPointer(element *metadata.EntityMetadata, property *metadata.PropertyMetadata) (*CollectionPointer, error) {
	if element == nil {
		return nil, ErrNilEntity
	}
	return &CollectionPointer{entity: element, property: property}, nil
}

// Entity returns the element entity of the collection.
func (p *CollectionPointer) Entity() *metadata.EntityMetadata { return p.entity }

// Property returns the collection property the pointer was reached through.
func (p *CollectionPointer) Property() *metadata.PropertyMetadata { return p.property }

// Next follows a navigation property of the element entity.
func (p *CollectionPointer) Next(model *metadata.Model, field string) Pointer {
	return next(p.entity, model, field)
}

func (p *CollectionPointer) pointerNode() {}

// NoPointer is the terminal state: there is nothing further to navigate.
type NoPointer struct{}

// Entity always returns nil.
func (NoPointer) Entity() *metadata.EntityMetadata { return nil }

// Next always returns NoPointer.
func (NoPointer) Next(*metadata.Model, string) Pointer { return NoPointer{} }

func (NoPointer) pointerNode() {}

// IsTerminal reports whether p is NoPointer (or nil).
func IsTerminal(p Pointer) bool {
	if p == nil {
		return true
	}
	_, ok := p.(NoPointer)
	return ok
}

func next(entity *metadata.EntityMetadata, model *metadata.Model, field string) Pointer {
	field = strings.TrimSpace(field)
	if entity == nil || field == "" {
		return NoPointer{}
	}

	navProp := entity.FindNavigationProperty(field)
	if navProp == nil {
		return NoPointer{}
	}

	var target *metadata.EntityMetadata
	if model != nil {
		target = model.NavigationTarget(navProp)
	}
	if target == nil {
		resolved, err := entity.ResolveNavigationTarget(field)
		if err != nil {
			return NoPointer{}
		}
		target = resolved
	}

	if navProp.NavigationIsArray {
		return &CollectionPointer{entity: target, property: navProp}
	}
	return &EntityPointer{entity: target}
}
