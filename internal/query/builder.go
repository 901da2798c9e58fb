package query

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// Builder accumulates the clauses of a SELECT over one entity table.
// Filter fragments are added with ApplyFragment.
type Builder struct {
	db       *sql.DB
	dialect  string
	table    string
	alias    string
	distinct bool
	wheres   []whereClause
	joins    []string
	selects  []string
	orderBys []string
	limit    *int
	offset   int
	logger   *slog.Logger
}

// whereClause represents a SQL condition with parameterized arguments
type whereClause struct {
	sql  string
	args []interface{}
}

// NewBuilder creates a new query builder for the given database and dialect
func NewBuilder(db *sql.DB, dialect string) *Builder {
	return &Builder{
		db:      db,
		dialect: dialect,
		logger:  slog.Default(),
	}
}

// WithTable sets the target table and the alias filter fragments refer to it by.
func (qb *Builder) WithTable(table, alias string) *Builder {
	qb.table = table
	qb.alias = alias
	return qb
}

// WithLogger sets the logger for the query builder
func (qb *Builder) WithLogger(logger *slog.Logger) *Builder {
	if logger != nil {
		qb.logger = logger
	}
	return qb
}

// Where adds a WHERE condition to the query
func (qb *Builder) Where(sql string, args ...interface{}) *Builder {
	qb.wheres = append(qb.wheres, whereClause{sql: sql, args: args})
	return qb
}

// Join adds a JOIN clause to the query
func (qb *Builder) Join(sql string) *Builder {
	qb.joins = append(qb.joins, sql)
	return qb
}

// ApplyFragment adds the joins of a rendered filter and its bound predicate.
// Joins can repeat rows of the main table, so the result becomes DISTINCT.
func (qb *Builder) ApplyFragment(fragment *Fragment, where string, args []interface{}) *Builder {
	if fragment != nil && len(fragment.Joins) > 0 {
		qb.joins = append(qb.joins, fragment.Joins...)
		qb.distinct = true
	}
	if where != "" {
		qb.Where("("+where+")", args...)
	}
	return qb
}

// Select sets the SELECT columns for the query
func (qb *Builder) Select(cols ...string) *Builder {
	qb.selects = append(qb.selects, cols...)
	return qb
}

// OrderBy adds an ORDER BY clause to the query
func (qb *Builder) OrderBy(order string) *Builder {
	qb.orderBys = append(qb.orderBys, order)
	return qb
}

// Limit sets the LIMIT for the query
func (qb *Builder) Limit(n int) *Builder {
	qb.limit = &n
	return qb
}

// Offset sets the OFFSET for the query
func (qb *Builder) Offset(n int) *Builder {
	qb.offset = n
	return qb
}

// ToSQL builds the final SELECT SQL statement with parameterized arguments
func (qb *Builder) ToSQL() (string, []interface{}) {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if qb.distinct {
		sb.WriteString("DISTINCT ")
	}
	switch {
	case len(qb.selects) > 0:
		sb.WriteString(strings.Join(qb.selects, ", "))
	case qb.alias != "":
		sb.WriteString(qb.alias + ".*")
	default:
		sb.WriteString("*")
	}

	args := qb.writeFromWhere(&sb)

	if len(qb.orderBys) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(qb.orderBys, ", "))
	}

	if qb.limit != nil {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", *qb.limit))
	} else if qb.offset > 0 && qb.dialect == "mysql" {
		// MySQL requires LIMIT when OFFSET is used
		sb.WriteString(" LIMIT 2147483647")
	}
	if qb.offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", qb.offset))
	}

	return qb.placeholders(sb.String()), args
}

// ToCountSQL builds a COUNT query over the filtered rows
func (qb *Builder) ToCountSQL() (string, []interface{}) {
	var sb strings.Builder

	if qb.distinct {
		// Count distinct rows of the main table, not join combinations.
		sb.WriteString("SELECT COUNT(*) FROM (SELECT DISTINCT ")
		if qb.alias != "" {
			sb.WriteString(qb.alias + ".*")
		} else {
			sb.WriteString("*")
		}
		args := qb.writeFromWhere(&sb)
		sb.WriteString(") AS count_subquery")
		return qb.placeholders(sb.String()), args
	}

	sb.WriteString("SELECT COUNT(*)")
	args := qb.writeFromWhere(&sb)
	return qb.placeholders(sb.String()), args
}

// writeFromWhere writes the FROM, JOIN and WHERE clauses and returns the WHERE arguments
func (qb *Builder) writeFromWhere(sb *strings.Builder) []interface{} {
	var args []interface{}

	if qb.table != "" {
		sb.WriteString(" FROM ")
		sb.WriteString(quoteTableName(qb.dialect, qb.table))
		if qb.alias != "" {
			sb.WriteString(" ")
			sb.WriteString(qb.alias)
		}
	}

	for _, join := range qb.joins {
		sb.WriteString(" ")
		sb.WriteString(join)
	}

	if len(qb.wheres) > 0 {
		sb.WriteString(" WHERE ")
		whereClauses := make([]string, 0, len(qb.wheres))
		for _, w := range qb.wheres {
			whereClauses = append(whereClauses, w.sql)
			args = append(args, w.args...)
		}
		sb.WriteString(strings.Join(whereClauses, " AND "))
	}
	return args
}

func (qb *Builder) placeholders(query string) string {
	if qb.dialect == "postgres" || qb.dialect == "postgresql" {
		return convertToPostgresPlaceholders(query)
	}
	return query
}

// QueryContext executes the query and returns the result rows
func (qb *Builder) QueryContext(ctx context.Context) (*sql.Rows, error) {
	query, args := qb.ToSQL()

	if qb.logger != nil {
		qb.logger.Debug("Executing query", "sql", query, "args", args)
	}

	return qb.db.QueryContext(ctx, query, args...)
}

// CountContext executes the count query and returns the count
func (qb *Builder) CountContext(ctx context.Context) (int64, error) {
	query, args := qb.ToCountSQL()

	if qb.logger != nil {
		qb.logger.Debug("Executing count query", "sql", query, "args", args)
	}

	var count int64
	if err := qb.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// quoteTableName quotes a table name for the dialect. Names that already
// contain quotes or a schema separator are left alone.
func quoteTableName(dialect, table string) string {
	if strings.ContainsAny(table, "\"`[.") {
		return table
	}
	switch dialect {
	case "mysql":
		return "`" + table + "`"
	case "sqlserver", "mssql":
		return "[" + table + "]"
	default:
		return `"` + table + `"`
	}
}

// convertToPostgresPlaceholders converts ? placeholders to $1, $2, ... for PostgreSQL.
// Question marks inside quoted literals are kept.
func convertToPostgresPlaceholders(query string) string {
	var result strings.Builder
	placeholderNum := 1
	inQuote := false

	for i := 0; i < len(query); i++ {
		switch {
		case query[i] == '\'':
			inQuote = !inQuote
			result.WriteByte(query[i])
		case query[i] == '?' && !inQuote:
			result.WriteString(fmt.Sprintf("$%d", placeholderNum))
			placeholderNum++
		default:
			result.WriteByte(query[i])
		}
	}

	return result.String()
}
