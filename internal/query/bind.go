package query

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/nlstn/go-condfilter/internal/params"
)

// ErrMissingValue is returned when a placeholder has no bound value.
var ErrMissingValue = errors.New("missing parameter value")

// Bind replaces the :name placeholders of the fragment's predicate with '?'
// and returns the values in placeholder order. Slices expand to a
// comma-separated list of placeholders. Values of case-insensitive
// placeholders (:(?i)name) are lower-cased when they are strings.
func Bind(fragment *Fragment, values map[string]interface{}) (string, []interface{}, error) {
	if fragment.Empty() {
		return "", nil, nil
	}

	var (
		sb   strings.Builder
		args []interface{}
		err  error
		last int
	)
	text := fragment.Where
	params.Scan(text, func(p params.Placeholder) {
		if err != nil {
			return
		}
		value, ok := values[p.Name]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrMissingValue, p.Name)
			return
		}

		sb.WriteString(text[last:p.Start])
		last = p.End

		list, isList := expandList(value)
		if !isList {
			sb.WriteString("?")
			args = append(args, normalize(value, p.CaseInsensitive))
			return
		}
		if len(list) == 0 {
			err = fmt.Errorf("parameter %s: empty list", p.Name)
			return
		}
		for i, item := range list {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, normalize(item, p.CaseInsensitive))
		}
	})
	if err != nil {
		return "", nil, err
	}
	sb.WriteString(text[last:])
	return sb.String(), args, nil
}

func normalize(value interface{}, caseInsensitive bool) interface{} {
	if s, ok := value.(string); ok && caseInsensitive {
		return strings.ToLower(s)
	}
	return value
}

// expandList returns the elements of slice values. Byte slices are scalar.
func expandList(value interface{}) ([]interface{}, bool) {
	if value == nil {
		return nil, false
	}
	if items, ok := value.([]interface{}); ok {
		return items, true
	}
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice || v.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	items := make([]interface{}, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}
	return items, true
}
