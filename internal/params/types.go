package params

import (
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-condfilter/internal/metadata"
)

// ErrUnknownClass is returned when a class name maps to no known type.
var ErrUnknownClass = errors.New("unknown parameter class")

var (
	stringType  = reflect.TypeOf("")
	boolType    = reflect.TypeOf(false)
	int8Type    = reflect.TypeOf(int8(0))
	int16Type   = reflect.TypeOf(int16(0))
	int32Type   = reflect.TypeOf(int32(0))
	int64Type   = reflect.TypeOf(int64(0))
	intType     = reflect.TypeOf(0)
	float32Type = reflect.TypeOf(float32(0))
	float64Type = reflect.TypeOf(float64(0))
	timeType    = reflect.TypeOf(time.Time{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	bigIntType  = reflect.TypeOf(big.Int{})
)

// builtinTypes maps Java class names and Go type names to the Go types used
// for parameter values.
var builtinTypes = map[string]reflect.Type{
	"java.lang.String":         stringType,
	"java.lang.Boolean":        boolType,
	"java.lang.Byte":           int8Type,
	"java.lang.Short":          int16Type,
	"java.lang.Integer":        int32Type,
	"java.lang.Long":           int64Type,
	"java.lang.Float":          float32Type,
	"java.lang.Double":         float64Type,
	"java.lang.Character":      stringType,
	"java.math.BigDecimal":     decimalType,
	"java.math.BigInteger":     bigIntType,
	"java.util.UUID":           uuidType,
	"java.util.Date":           timeType,
	"java.sql.Date":            timeType,
	"java.sql.Time":            timeType,
	"java.sql.Timestamp":       timeType,
	"java.time.LocalDate":      timeType,
	"java.time.LocalTime":      timeType,
	"java.time.LocalDateTime":  timeType,
	"java.time.OffsetDateTime": timeType,
	"java.time.OffsetTime":     timeType,
	"java.time.ZonedDateTime":  timeType,
	"java.time.Instant":        timeType,

	"string":          stringType,
	"bool":            boolType,
	"int":             intType,
	"int8":            int8Type,
	"int16":           int16Type,
	"int32":           int32Type,
	"int64":           int64Type,
	"float32":         float32Type,
	"float64":         float64Type,
	"time.Time":       timeType,
	"uuid.UUID":       uuidType,
	"decimal.Decimal": decimalType,
}

// TypeResolver maps a declared javaClass to a Go type. Besides the built-in
// Java and Go names it knows custom registrations and, when a model is
// attached, every registered entity by full class name or simple name.
// A nil *TypeResolver resolves built-in names only.
type TypeResolver struct {
	mu     sync.RWMutex
	custom map[string]reflect.Type
	model  *metadata.Model
}

// NewTypeResolver creates a resolver. model may be nil.
func NewTypeResolver(model *metadata.Model) *TypeResolver {
	return &TypeResolver{
		custom: make(map[string]reflect.Type),
		model:  model,
	}
}

// Register maps className to typ, overriding built-in names.
func (r *TypeResolver) Register(className string, typ reflect.Type) error {
	className = strings.TrimSpace(className)
	if className == "" {
		return fmt.Errorf("class name cannot be empty")
	}
	if typ == nil {
		return fmt.Errorf("type for class %s cannot be nil", className)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[className] = typ
	return nil
}

// Resolve returns the Go type for className.
func (r *TypeResolver) Resolve(className string) (reflect.Type, error) {
	className = strings.TrimSpace(className)
	if className == "" {
		return nil, fmt.Errorf("%w: empty class name", ErrUnknownClass)
	}

	if r != nil {
		r.mu.RLock()
		typ, ok := r.custom[className]
		r.mu.RUnlock()
		if ok {
			return typ, nil
		}
	}

	if typ, ok := builtinTypes[className]; ok {
		return typ, nil
	}
	// Simple names of java.lang classes ("String", "Integer").
	if typ, ok := builtinTypes["java.lang."+className]; ok {
		return typ, nil
	}

	if r != nil && r.model != nil {
		if entity := r.model.LookupClass(className); entity != nil {
			return entity.EntityType, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownClass, className)
}

// entityFor returns the registered entity whose Go type is typ.
func (r *TypeResolver) entityFor(typ reflect.Type) *metadata.EntityMetadata {
	if r == nil || r.model == nil {
		return nil
	}
	return r.model.LookupType(typ)
}

// preferredNames is the class name written back for each built-in type.
var preferredNames = map[reflect.Type]string{
	stringType:  "java.lang.String",
	boolType:    "java.lang.Boolean",
	int8Type:    "java.lang.Byte",
	int16Type:   "java.lang.Short",
	int32Type:   "java.lang.Integer",
	int64Type:   "java.lang.Long",
	intType:     "int",
	float32Type: "java.lang.Float",
	float64Type: "java.lang.Double",
	timeType:    "java.util.Date",
	uuidType:    "java.util.UUID",
	decimalType: "java.math.BigDecimal",
	bigIntType:  "java.math.BigInteger",
}

// ClassName returns a class name that Resolve maps back to typ, or "" when
// typ is unknown to the resolver.
func (r *TypeResolver) ClassName(typ reflect.Type) string {
	if typ == nil {
		return ""
	}
	if r != nil {
		r.mu.RLock()
		var names []string
		for name, t := range r.custom {
			if t == typ {
				names = append(names, name)
			}
		}
		r.mu.RUnlock()
		if len(names) > 0 {
			sort.Strings(names)
			return names[0]
		}
	}
	if name, ok := preferredNames[typ]; ok {
		return name
	}
	if entity := r.entityFor(typ); entity != nil {
		return entity.EntityName
	}
	return ""
}
