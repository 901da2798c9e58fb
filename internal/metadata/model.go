package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Model is the registry of analyzed entities that paths and parameter types are resolved against.
// Registration is expected to finish before the model is shared; lookups are safe for concurrent use.
type Model struct {
	mu       sync.RWMutex
	entities map[string]*EntityMetadata // keyed by entity set name
	order    []*EntityMetadata
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{entities: make(map[string]*EntityMetadata)}
}

// Register analyzes entity and adds it to the model. Every registered entity
// shares the registry so navigation targets resolve regardless of registration order.
func (m *Model) Register(entity interface{}) (*EntityMetadata, error) {
	entityMetadata, err := AnalyzeEntity(entity)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze entity: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entities[entityMetadata.EntitySetName]; exists {
		return nil, fmt.Errorf("entity set '%s' is already registered", entityMetadata.EntitySetName)
	}

	m.entities[entityMetadata.EntitySetName] = entityMetadata
	m.order = append(m.order, entityMetadata)

	entityMetadata.SetEntitiesRegistry(m.entities)
	for _, meta := range m.entities {
		if meta != entityMetadata {
			meta.AddEntityToRegistry(entityMetadata)
		}
	}

	return entityMetadata, nil
}

// Lookup finds an entity by entity set name or entity name.
func (m *Model) Lookup(name string) *EntityMetadata {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if entity, ok := m.entities[name]; ok {
		return entity
	}
	for _, entity := range m.order {
		if entity.EntityName == name {
			return entity
		}
	}
	return nil
}

// LookupClass finds an entity by a qualified class name such as "com.company.sales.Customer".
// The last dot-separated segment is matched against entity names.
func (m *Model) LookupClass(className string) *EntityMetadata {
	className = strings.TrimSpace(className)
	if className == "" {
		return nil
	}
	if entity := m.Lookup(className); entity != nil {
		return entity
	}
	if idx := strings.LastIndex(className, "."); idx >= 0 && idx < len(className)-1 {
		return m.Lookup(className[idx+1:])
	}
	return nil
}

// LookupType finds an entity by its Go type.
func (m *Model) LookupType(t reflect.Type) *EntityMetadata {
	if m == nil || t == nil {
		return nil
	}
	t = dereferenceType(t)

	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, entity := range m.order {
		if entity.EntityType == t {
			return entity
		}
	}
	return nil
}

// Entities returns the registered entities in registration order.
func (m *Model) Entities() []*EntityMetadata {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*EntityMetadata(nil), m.order...)
}

// NavigationTarget returns the entity reached through a navigation property, or nil.
func (m *Model) NavigationTarget(property *PropertyMetadata) *EntityMetadata {
	if property == nil || !property.IsNavigationProp {
		return nil
	}
	return m.Lookup(property.NavigationTarget)
}
