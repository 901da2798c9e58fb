package condfilter

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/nlstn/go-condfilter/internal/condition"
	"github.com/nlstn/go-condfilter/internal/metadata"
	"github.com/nlstn/go-condfilter/internal/observability"
	"github.com/nlstn/go-condfilter/internal/query"
)

// QueryOptions shape the rows returned by Query.
type QueryOptions struct {
	// OrderBy holds ORDER BY terms, e.g. "e.name DESC".
	OrderBy []string
	// Limit caps the number of rows. Zero means no limit.
	Limit int
	// Offset skips rows.
	Offset int
}

var stringType = reflect.TypeOf("")

// Render turns cond into a bound predicate over entitySet. Values are keyed by
// parameter name; a missing value falls back to the default declared in the
// definition. Text values of typed parameters are converted to their declared
// type. With an empty entitySet, {E} paths are rendered verbatim.
func (s *Service) Render(ctx context.Context, entitySet string, cond Condition, values map[string]interface{}) (QueryScope, error) {
	ctx, span := s.observability.Tracer().StartRender(ctx, entitySet)
	defer span.End()
	timing := s.timing(ctx, "filter-render", "Filter render")
	defer timing.Stop()

	var entity *metadata.EntityMetadata
	if entitySet != "" {
		var err error
		if entity, err = s.entity(entitySet); err != nil {
			observability.RecordError(span, err)
			return QueryScope{}, err
		}
	}

	bound, err := s.bindValues(cond, values)
	if err != nil {
		observability.RecordError(span, err)
		return QueryScope{}, err
	}

	fragment, err := query.Render(cond, query.RenderOptions{
		Alias:       s.alias,
		Entity:      entity,
		Model:       s.model,
		SkipUnbound: s.skipUnbound,
		Bound: func(name string) bool {
			_, ok := bound[name]
			return ok
		},
		Logger: s.logger,
	})
	if err != nil {
		observability.RecordError(span, err)
		return QueryScope{}, err
	}
	where, args, err := query.Bind(fragment, bound)
	if err != nil {
		observability.RecordError(span, err)
		return QueryScope{}, err
	}
	span.SetAttributes(observability.AttrSkippedCount.Int(len(fragment.Skipped)))

	result := QueryScope{
		Condition: where,
		Args:      args,
		Joins:     fragment.Joins,
		Alias:     s.alias,
	}
	if entity != nil {
		result.Table = entity.TableName
	}
	return result, nil
}

// Find loads the rows of entitySet matching cond into dest, a pointer to a
// slice of the registered model.
func (s *Service) Find(ctx context.Context, entitySet string, cond Condition, values map[string]interface{}, dest interface{}) error {
	if _, err := s.entity(entitySet); err != nil {
		return err
	}
	qs, err := s.Render(ctx, entitySet, cond, values)
	if err != nil {
		return err
	}

	ctx, span := s.observability.Tracer().StartQuery(ctx, entitySet)
	defer span.End()
	start := time.Now()
	err = s.db.WithContext(ctx).Scopes(qs.Gorm()).Find(dest).Error
	s.observability.Metrics().RecordQuery(ctx, entitySet, time.Since(start))
	if err != nil {
		observability.RecordError(span, err)
		s.logger.Error("Filtered find failed", "entitySet", entitySet, "error", err)
		return fmt.Errorf("failed to find %s: %w", entitySet, err)
	}
	return nil
}

// Query runs cond against entitySet through database/sql and returns the
// matching rows of the entity table. The caller closes the rows.
func (s *Service) Query(ctx context.Context, entitySet string, cond Condition, values map[string]interface{}, opts QueryOptions) (*sql.Rows, error) {
	builder, err := s.builder(ctx, entitySet, cond, values)
	if err != nil {
		return nil, err
	}
	for _, order := range opts.OrderBy {
		builder.OrderBy(order)
	}
	if opts.Limit > 0 {
		builder.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		builder.Offset(opts.Offset)
	}

	ctx, span := s.observability.Tracer().StartQuery(ctx, entitySet)
	defer span.End()
	start := time.Now()
	rows, err := builder.QueryContext(ctx)
	s.observability.Metrics().RecordQuery(ctx, entitySet, time.Since(start))
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	return rows, nil
}

// Count returns the number of distinct rows of entitySet matching cond.
func (s *Service) Count(ctx context.Context, entitySet string, cond Condition, values map[string]interface{}) (int64, error) {
	builder, err := s.builder(ctx, entitySet, cond, values)
	if err != nil {
		return 0, err
	}

	ctx, span := s.observability.Tracer().StartQuery(ctx, entitySet)
	defer span.End()
	start := time.Now()
	count, err := builder.CountContext(ctx)
	s.observability.Metrics().RecordQuery(ctx, entitySet, time.Since(start))
	if err != nil {
		observability.RecordError(span, err)
		return 0, err
	}
	return count, nil
}

func (s *Service) builder(ctx context.Context, entitySet string, cond Condition, values map[string]interface{}) (*query.Builder, error) {
	entity, err := s.entity(entitySet)
	if err != nil {
		return nil, err
	}
	qs, err := s.Render(ctx, entitySet, cond, values)
	if err != nil {
		return nil, err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	fragment := &query.Fragment{Where: qs.Condition, Joins: qs.Joins}
	return query.NewBuilder(sqlDB, s.dialect).
		WithLogger(s.logger).
		WithTable(entity.TableName, s.alias).
		ApplyFragment(fragment, qs.Condition, qs.Args), nil
}

// bindValues merges the supplied values with declared defaults and converts
// text to the declared parameter types. Text bound to an IN list is split on
// commas. The first clause declaring a name wins.
func (s *Service) bindValues(cond Condition, values map[string]interface{}) (map[string]interface{}, error) {
	bound := make(map[string]interface{})
	for _, clause := range condition.Clauses(cond) {
		lists := listParameters(clause.Text)
		for _, p := range clause.Parameters.All() {
			if _, done := bound[p.Name]; done {
				continue
			}
			_, list := lists[p.Name]

			if v, ok := values[p.Name]; ok {
				text, isText := v.(string)
				typed := p.JavaClass != nil && p.JavaClass != stringType
				if !isText || (!typed && !list) {
					bound[p.Name] = v
					continue
				}
				converted, err := s.resolver.ConvertValue(p, text, list)
				if err != nil {
					return nil, err
				}
				bound[p.Name] = converted
				continue
			}

			if p.Value != "" {
				converted, err := s.resolver.ConvertValue(p, p.Value, list)
				if err != nil {
					return nil, fmt.Errorf("invalid default value: %w", err)
				}
				bound[p.Name] = converted
			}
		}
	}
	return bound, nil
}

// inListPattern matches a placeholder that is the only operand of an IN list.
var inListPattern = regexp.MustCompile(`(?i)\bin\s*\(\s*:(?:\(\?i\)\s*)?([\w.$]+)\s*\)`)

// listParameters returns the names of the placeholders used as IN lists in text.
func listParameters(text string) map[string]struct{} {
	names := make(map[string]struct{})
	for _, m := range inListPattern.FindAllStringSubmatch(text, -1) {
		names[strings.TrimRight(m[1], ".")] = struct{}{}
	}
	return names
}
