package params

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nlstn/go-condfilter/internal/condition"
)

// timeLayouts are tried in order when converting date and time literals.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05",
	"15:04",
}

// Convert turns the literal raw into a value of the parameter's declared type.
// Untyped parameters keep the raw string. Entity-typed parameters are
// converted to the type of the entity's key.
func (r *TypeResolver) Convert(info condition.ParameterInfo, raw string) (interface{}, error) {
	if info.JavaClass == nil {
		return raw, nil
	}
	if entity := r.entityFor(info.JavaClass); entity != nil {
		if len(entity.KeyProperties) != 1 {
			return nil, fmt.Errorf("parameter %s: entity %s must have a single key to be used as a value", info.Name, entity.EntityName)
		}
		return convertTo(entity.KeyProperties[0].Type, info.Name, raw)
	}
	return convertTo(info.JavaClass, info.Name, raw)
}

// ConvertValue converts every element of a comma-separated list when the
// parameter is used with IN; otherwise it behaves like Convert.
func (r *TypeResolver) ConvertValue(info condition.ParameterInfo, raw string, list bool) (interface{}, error) {
	if !list {
		return r.Convert(info, raw)
	}
	parts := strings.Split(raw, ",")
	values := make([]interface{}, 0, len(parts))
	for _, part := range parts {
		v, err := r.Convert(info, strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func convertTo(typ reflect.Type, name, raw string) (interface{}, error) {
	trimmed := strings.TrimSpace(raw)

	switch typ {
	case stringType:
		return raw, nil
	case timeType:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("parameter %s: cannot parse %q as a date or time", name, raw)
	case uuidType:
		id, err := uuid.Parse(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		return id, nil
	case decimalType:
		d, err := decimal.NewFromString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		return d, nil
	case bigIntType:
		n, ok := new(big.Int).SetString(trimmed, 10)
		if !ok {
			return nil, fmt.Errorf("parameter %s: cannot parse %q as an integer", name, raw)
		}
		return n, nil
	}

	switch typ.Kind() {
	case reflect.String:
		return reflect.ValueOf(raw).Convert(typ).Interface(), nil
	case reflect.Bool:
		b, err := strconv.ParseBool(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		return reflect.ValueOf(b).Convert(typ).Interface(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(trimmed, 10, typ.Bits())
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		return reflect.ValueOf(n).Convert(typ).Interface(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(trimmed, 10, typ.Bits())
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		return reflect.ValueOf(n).Convert(typ).Interface(), nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(trimmed, typ.Bits())
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		return reflect.ValueOf(f).Convert(typ).Interface(), nil
	}

	return nil, fmt.Errorf("parameter %s: values of type %s cannot be converted from text", name, typ)
}
