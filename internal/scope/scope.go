package scope

import (
	"gorm.io/gorm"
)

// QueryScope represents a bound filter that can be added to a query.
// It carries a raw SQL predicate and its arguments for safe parameter binding.
type QueryScope struct {
	// Condition is the SQL WHERE clause condition (e.g., "e.city = ?"). Empty when the filter constrains nothing.
	Condition string
	// Args contains the parameter values for placeholders in Condition
	Args []interface{}
	// Joins are the SQL joins Condition depends on
	Joins []string
	// Table and Alias name the filtered table as Condition refers to it
	Table string
	Alias string
}

// IsEmpty reports whether the scope neither joins nor constrains.
func (s QueryScope) IsEmpty() bool {
	return s.Condition == "" && len(s.Joins) == 0
}

// Gorm returns a GORM scope selecting from the aliased table with the
// scope's joins and condition. Joins can repeat rows, so joined queries
// select distinct rows of the filtered table.
func (s QueryScope) Gorm() func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if s.Table != "" {
			if s.Alias != "" {
				db = db.Table(s.Table + " AS " + s.Alias)
			} else {
				db = db.Table(s.Table)
			}
		}
		for _, join := range s.Joins {
			db = db.Joins(join)
		}
		if len(s.Joins) > 0 {
			if s.Alias != "" {
				db = db.Distinct(s.Alias + ".*")
			} else {
				db = db.Distinct()
			}
		}
		if s.Condition != "" {
			db = db.Where(s.Condition, s.Args...)
		}
		return db
	}
}
