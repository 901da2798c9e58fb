package condfilter

import (
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenDatabase opens a GORM connection for one of the supported drivers:
// "sqlite" (alias "sqlite3") or "postgres" (alias "postgresql").
//
// Example:
//
//	db, err := condfilter.OpenDatabase("sqlite", "filters.db")
//	if err != nil {
//		log.Fatalf("Failed to open database: %v", err)
//	}
//	service, err := condfilter.NewService(db)
func OpenDatabase(driver, dsn string, configs ...*gorm.Config) (*gorm.DB, error) {
	cfg := &gorm.Config{}
	if len(configs) > 0 && configs[0] != nil {
		cfg = configs[0]
	}

	var dialector gorm.Dialector
	switch normalizeDialect(driver) {
	case dialectSQLite:
		dialector = sqlite.Open(dsn)
	case dialectPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("condfilter: unsupported database driver '%s'", driver)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("condfilter: failed to open %s database: %w", driver, err)
	}
	return db, nil
}

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
	dialectMySQL    = "mysql"
)

// normalizeDialect maps driver and dialect aliases onto the names the query builder understands.
func normalizeDialect(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return dialectSQLite
	case "postgres", "postgresql", "pgx":
		return dialectPostgres
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

// checkDialect reports the dialect of db and logs when filtered queries on it
// have not been exercised. Rendering itself is dialect independent.
func checkDialect(db *gorm.DB, logger *slog.Logger) (string, error) {
	if db == nil || db.Dialector == nil {
		return "", fmt.Errorf("database connection is not initialized")
	}
	dialect := normalizeDialect(db.Name())
	switch dialect {
	case dialectSQLite, dialectPostgres, dialectMySQL:
	default:
		logger.Warn("Filtered queries are untested on this dialect", "dialect", dialect)
	}
	return dialect, nil
}
