package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanInstanceKey   = "condfilter:span"
	timingInstanceKey = "condfilter:timing"
)

type gormRegistrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

// gormChain exposes the Before and After registration points of one callback chain.
type gormChain struct {
	before func(name string) gormRegistrar
	after  func(name string) gormRegistrar
}

// gormChains lists the instrumented callback chains by operation name.
func gormChains(db *gorm.DB) map[string]gormChain {
	cb := db.Callback()
	return map[string]gormChain{
		"create": {
			before: func(n string) gormRegistrar { return cb.Create().Before(n) },
			after:  func(n string) gormRegistrar { return cb.Create().After(n) },
		},
		"query": {
			before: func(n string) gormRegistrar { return cb.Query().Before(n) },
			after:  func(n string) gormRegistrar { return cb.Query().After(n) },
		},
		"update": {
			before: func(n string) gormRegistrar { return cb.Update().Before(n) },
			after:  func(n string) gormRegistrar { return cb.Update().After(n) },
		},
		"delete": {
			before: func(n string) gormRegistrar { return cb.Delete().Before(n) },
			after:  func(n string) gormRegistrar { return cb.Delete().After(n) },
		},
		"row": {
			before: func(n string) gormRegistrar { return cb.Row().Before(n) },
			after:  func(n string) gormRegistrar { return cb.Row().After(n) },
		},
		"raw": {
			before: func(n string) gormRegistrar { return cb.Raw().Before(n) },
			after:  func(n string) gormRegistrar { return cb.Raw().After(n) },
		},
	}
}

// RegisterGORMCallbacks adds a span around every statement db executes.
func RegisterGORMCallbacks(db *gorm.DB, cfg *Config) error {
	if db == nil {
		return fmt.Errorf("database connection is required")
	}
	tracer := cfg.Tracer()
	for op, chain := range gormChains(db) {
		op := op // per-iteration copy; go directive predates Go 1.22 loop semantics
		if err := chain.before("gorm:"+op).Register("condfilter:before_"+op, func(tx *gorm.DB) {
			ctx, span := tracer.start(tx.Statement.Context, "condfilter.db."+op)
			tx.Statement.Context = ctx
			tx.InstanceSet(spanInstanceKey, span)
		}); err != nil {
			return err
		}
		if err := chain.after("gorm:"+op).Register("condfilter:after_"+op, func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(spanInstanceKey)
			if !ok {
				return
			}
			span, ok := v.(trace.Span)
			if !ok {
				return
			}
			span.SetAttributes(
				AttrDBStatement.String(tx.Statement.SQL.String()),
				AttrDBRowsAffected.Int64(tx.RowsAffected),
			)
			RecordError(span, tx.Error)
			span.End()
		}); err != nil {
			return err
		}
	}
	return nil
}

// RegisterServerTimingCallbacks adds a Server-Timing metric around every
// statement whose context carries a Server-Timing header.
func RegisterServerTimingCallbacks(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is required")
	}
	for op, chain := range gormChains(db) {
		op := op // per-iteration copy; go directive predates Go 1.22 loop semantics
		if err := chain.before("gorm:"+op).Register("condfilter:timing_before_"+op, func(tx *gorm.DB) {
			tx.InstanceSet(timingInstanceKey, StartServerTimingWithDesc(tx.Statement.Context, "db-"+op, "Database "+op))
		}); err != nil {
			return err
		}
		if err := chain.after("gorm:"+op).Register("condfilter:timing_after_"+op, func(tx *gorm.DB) {
			if v, ok := tx.InstanceGet(timingInstanceKey); ok {
				if m, ok := v.(*ServerTimingMetric); ok {
					m.Stop()
				}
			}
		}); err != nil {
			return err
		}
	}
	return nil
}
