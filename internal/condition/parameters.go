package condition

import (
	"reflect"
)

// ParamKind is the family of a parameter, taken from the prefix of its name
// ("component$filter.name123" is a component parameter with path "filter.name123").
type ParamKind string

const (
	KindNone       ParamKind = ""
	KindDatasource ParamKind = "ds"
	KindComponent  ParamKind = "component"
	KindParam      ParamKind = "param"
	KindSession    ParamKind = "session"
	KindCustom     ParamKind = "custom"
)

// ParameterInfo describes one named bind variable of a clause.
type ParameterInfo struct {
	// Name is the placeholder identifier without the leading colon.
	Name string
	Kind ParamKind
	// Path is Name without its kind prefix.
	Path string
	// CaseInsensitive is set for placeholders written as :(?i)name.
	CaseInsensitive bool
	// JavaClass is the declared value type; nil when untyped or when the declared class could not be resolved.
	JavaClass reflect.Type
	// DeclaredClass is the javaClass attribute as written, kept even when it did not resolve.
	DeclaredClass string
	// ConditionName is the name of the owning clause.
	ConditionName string
	// ClauseID is the structural ID of the owning clause.
	ClauseID string
	// Value is the literal default value declared with the parameter, if any.
	Value string
}

// Key returns the identity of the parameter.
func (p ParameterInfo) Key() ParameterKey {
	return ParameterKey{Name: p.Name, ClauseID: p.ClauseID}
}

// ParameterKey identifies a parameter: the same name in two different clauses
// denotes two parameters.
type ParameterKey struct {
	Name     string
	ClauseID string
}

// ParameterSet is an insertion-ordered set of parameters keyed by ParameterKey.
// The zero value is ready to use.
type ParameterSet struct {
	order []ParameterKey
	items map[ParameterKey]*ParameterInfo
}

// NewParameterSet creates a set holding params in order, merging duplicates.
func NewParameterSet(params ...ParameterInfo) *ParameterSet {
	s := &ParameterSet{}
	for _, p := range params {
		s.Add(p)
	}
	return s
}

// Add inserts p unless a parameter with the same key exists. It reports whether p was inserted.
func (s *ParameterSet) Add(p ParameterInfo) bool {
	if s.items == nil {
		s.items = make(map[ParameterKey]*ParameterInfo)
	}
	key := p.Key()
	if _, ok := s.items[key]; ok {
		return false
	}
	stored := p
	s.items[key] = &stored
	s.order = append(s.order, key)
	return true
}

// Upsert inserts p, or when a parameter with the same key exists, updates its
// declared type and class, owning clause name and literal value in place. Text-derived
// properties (kind, path, case sensitivity) of the existing entry are kept.
// It reports whether an existing entry was updated.
func (s *ParameterSet) Upsert(p ParameterInfo) bool {
	if s.items == nil {
		s.items = make(map[ParameterKey]*ParameterInfo)
	}
	existing, ok := s.items[p.Key()]
	if !ok {
		s.Add(p)
		return false
	}
	existing.JavaClass = p.JavaClass
	existing.DeclaredClass = p.DeclaredClass
	existing.ConditionName = p.ConditionName
	existing.Value = p.Value
	return true
}

// Get returns the parameter with the given name and owning clause.
func (s *ParameterSet) Get(key ParameterKey) (ParameterInfo, bool) {
	if s == nil || s.items == nil {
		return ParameterInfo{}, false
	}
	p, ok := s.items[key]
	if !ok {
		return ParameterInfo{}, false
	}
	return *p, true
}

// Lookup returns the first parameter with the given name regardless of owner.
func (s *ParameterSet) Lookup(name string) (ParameterInfo, bool) {
	if s == nil {
		return ParameterInfo{}, false
	}
	for _, key := range s.order {
		if key.Name == name {
			return *s.items[key], true
		}
	}
	return ParameterInfo{}, false
}

// Len returns the number of parameters.
func (s *ParameterSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// All returns copies of the parameters in insertion order.
func (s *ParameterSet) All() []ParameterInfo {
	if s == nil {
		return nil
	}
	out := make([]ParameterInfo, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, *s.items[key])
	}
	return out
}

// Names returns the parameter names in insertion order.
func (s *ParameterSet) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, key.Name)
	}
	return out
}
