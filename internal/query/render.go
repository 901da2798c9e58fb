package query

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nlstn/go-condfilter/internal/condition"
	"github.com/nlstn/go-condfilter/internal/metadata"
	"github.com/nlstn/go-condfilter/internal/params"
)

// DefaultAlias is substituted for {E} when no alias is configured.
const DefaultAlias = "e"

const entityPlaceholder = "{E}"

var (
	entityPathPattern  = regexp.MustCompile(`\{E\}\.([\w.]+)`)
	aliasPathPattern   = regexp.MustCompile(`\b(\w+)\.(\w+)\b`)
	navigationJoinExpr = regexp.MustCompile(`(?i)^\s*(left\s+(?:outer\s+)?|inner\s+)?join\s+\{E\}\.(\w+)\s+(?:as\s+)?(\w+)\s*$`)
)

// RenderOptions controls how a condition tree is turned into a fragment.
type RenderOptions struct {
	// Alias replaces {E}. Defaults to DefaultAlias.
	Alias string
	// Entity and Model enable translation of property paths into column
	// names and of "join {E}.nav x" joins into SQL joins.
	Entity *metadata.EntityMetadata
	Model  *metadata.Model
	// SkipUnbound drops clauses referencing a placeholder for which Bound reports false.
	SkipUnbound bool
	Bound       func(name string) bool
	Logger      *slog.Logger
}

// Fragment is the rendered form of a condition tree.
type Fragment struct {
	// Where is the predicate, with :name placeholders still in place. Empty when nothing constrains.
	Where string
	// Joins are the distinct joins required by the rendered clauses, in document order.
	Joins []string
	// Parameters are the parameters of the rendered clauses.
	Parameters []condition.ParameterInfo
	// Skipped lists the IDs of clauses dropped because a parameter was unbound.
	Skipped []string
}

// Empty reports whether the fragment constrains nothing.
func (f *Fragment) Empty() bool {
	return f == nil || f.Where == ""
}

type renderer struct {
	opts    RenderOptions
	frag    *Fragment
	joins   map[string]struct{}
	aliases map[string]*metadata.EntityMetadata
}

// Render produces the predicate and joins for cond. Groups are joined with
// their operation and every operand is parenthesised; groups without
// renderable children are dropped.
func Render(cond condition.Condition, opts RenderOptions) (*Fragment, error) {
	if cond == nil {
		return nil, fmt.Errorf("cannot render a nil condition")
	}
	if opts.Alias == "" {
		opts.Alias = DefaultAlias
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &renderer{
		opts:    opts,
		frag:    &Fragment{},
		joins:   make(map[string]struct{}),
		aliases: make(map[string]*metadata.EntityMetadata),
	}
	where, err := r.render(cond)
	if err != nil {
		return nil, err
	}
	r.frag.Where = where

	opts.Logger.Debug("Rendered filter",
		"where", r.frag.Where,
		"joins", len(r.frag.Joins),
		"skipped", r.frag.Skipped)
	return r.frag, nil
}

func (r *renderer) render(cond condition.Condition) (string, error) {
	switch node := cond.(type) {
	case *condition.Clause:
		return r.renderClause(node)
	case *condition.LogicalCondition:
		var parts []string
		for _, child := range node.Conditions {
			part, err := r.render(child)
			if err != nil {
				return "", err
			}
			if part != "" {
				parts = append(parts, part)
			}
		}
		switch len(parts) {
		case 0:
			return "", nil
		case 1:
			return parts[0], nil
		}
		for i := range parts {
			parts[i] = "(" + parts[i] + ")"
		}
		return strings.Join(parts, " "+string(node.Operation)+" "), nil
	default:
		return "", fmt.Errorf("unsupported condition type %T", cond)
	}
}

func (r *renderer) renderClause(clause *condition.Clause) (string, error) {
	if strings.TrimSpace(clause.Text) == "" {
		return "", fmt.Errorf("clause %s (%s) has no text", clause.ID, clause.Name)
	}

	if r.opts.SkipUnbound && r.opts.Bound != nil {
		for _, name := range params.Names(clause.Text) {
			if !r.opts.Bound(name) {
				r.frag.Skipped = append(r.frag.Skipped, clause.ID)
				return "", nil
			}
		}
	}

	if clause.Join != "" {
		if names := params.Names(clause.Join); len(names) > 0 {
			return "", fmt.Errorf("clause %s (%s): parameters are not supported in joins: %v", clause.ID, clause.Name, names)
		}
		join, err := r.translateJoin(clause.Join)
		if err != nil {
			return "", fmt.Errorf("clause %s (%s): %w", clause.ID, clause.Name, err)
		}
		if _, seen := r.joins[join]; !seen {
			r.joins[join] = struct{}{}
			r.frag.Joins = append(r.frag.Joins, join)
		}
	}

	r.frag.Parameters = append(r.frag.Parameters, clause.Parameters.All()...)
	return r.substitute(clause.Text), nil
}

// substitute replaces {E} by the alias. With an entity, {E}.path and
// joinAlias.property references are mapped to column names where possible.
func (r *renderer) substitute(text string) string {
	alias := r.opts.Alias
	if r.opts.Entity == nil {
		return strings.ReplaceAll(text, entityPlaceholder, alias)
	}

	text = entityPathPattern.ReplaceAllStringFunc(text, func(ref string) string {
		path := strings.TrimPrefix(ref, entityPlaceholder+".")
		trailing := ""
		if strings.HasSuffix(path, ".") {
			trimmed := strings.TrimRight(path, ".")
			trailing = path[len(trimmed):]
			path = trimmed
		}
		return alias + "." + r.columnFor(r.opts.Entity, path) + trailing
	})
	text = strings.ReplaceAll(text, entityPlaceholder, alias)

	if len(r.aliases) == 0 {
		return text
	}
	var sb strings.Builder
	last := 0
	for _, m := range aliasPathPattern.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > 0 && (text[m[0]-1] == ':' || text[m[0]-1] == '$' || text[m[0]-1] == '.') {
			continue
		}
		entity, ok := r.aliases[text[m[2]:m[3]]]
		if !ok {
			continue
		}
		sb.WriteString(text[last:m[4]])
		sb.WriteString(r.columnFor(entity, text[m[4]:m[5]]))
		last = m[5]
	}
	sb.WriteString(text[last:])
	return sb.String()
}

// columnFor maps a property path of entity to its column, or returns the path
// unchanged when it does not denote a column of entity.
func (r *renderer) columnFor(entity *metadata.EntityMetadata, path string) string {
	prop, prefix, err := entity.ResolvePropertyPath(path)
	if err != nil || prop.IsNavigationProp || prop.IsComplexType {
		r.opts.Logger.Debug("Keeping property path as written", "entity", entity.EntityName, "path", path)
		return path
	}
	return prefix + prop.ColumnName
}

// translateJoin turns "join {E}.nav x" into a SQL join when an entity is
// configured. Other joins only get {E} replaced.
func (r *renderer) translateJoin(join string) (string, error) {
	m := navigationJoinExpr.FindStringSubmatch(join)
	if m == nil || r.opts.Entity == nil {
		return strings.ReplaceAll(strings.TrimSpace(join), entityPlaceholder, r.opts.Alias), nil
	}

	source := r.opts.Entity
	prop := source.FindNavigationProperty(m[2])
	if prop == nil {
		return "", fmt.Errorf("join %q: %s has no navigation property %s", join, source.EntityName, m[2])
	}
	target := r.opts.Model.NavigationTarget(prop)
	if target == nil {
		var err error
		if target, err = source.ResolveNavigationTarget(prop.Name); err != nil {
			return "", fmt.Errorf("join %q: %w", join, err)
		}
	}
	if len(prop.ReferentialConstraints) != 1 {
		return "", fmt.Errorf("join %q: navigation property %s needs exactly one foreignKey/references pair", join, prop.Name)
	}

	var fkField, refField string
	for fk, ref := range prop.ReferentialConstraints {
		fkField, refField = fk, ref
	}

	joinAlias := m[3]
	var on string
	if fk := source.FindProperty(fkField); fk != nil && !prop.NavigationIsArray {
		// Foreign key on the source: belongs-to.
		ref := target.FindProperty(refField)
		if ref == nil {
			return "", fmt.Errorf("join %q: %s has no property %s", join, target.EntityName, refField)
		}
		on = fmt.Sprintf("%s.%s = %s.%s", joinAlias, ref.ColumnName, r.opts.Alias, fk.ColumnName)
	} else {
		// Foreign key on the target: has-one / has-many.
		fkColumn := prop.ForeignKeyColumnName
		if fk := target.FindProperty(fkField); fk != nil {
			fkColumn = fk.ColumnName
		}
		ref := source.FindProperty(refField)
		if ref == nil {
			return "", fmt.Errorf("join %q: %s has no property %s", join, source.EntityName, refField)
		}
		on = fmt.Sprintf("%s.%s = %s.%s", joinAlias, fkColumn, r.opts.Alias, ref.ColumnName)
	}

	kind := "JOIN"
	if modifier := strings.ToLower(strings.TrimSpace(m[1])); strings.HasPrefix(modifier, "left") {
		kind = "LEFT JOIN"
	} else if modifier == "inner" {
		kind = "INNER JOIN"
	}

	r.aliases[joinAlias] = target
	return fmt.Sprintf("%s %s %s ON %s", kind, target.TableName, joinAlias, on), nil
}
