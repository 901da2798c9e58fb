// Package condfilter parses saved filter definitions into condition trees and
// turns them into SQL predicates over GORM models.
//
// A filter definition is an XML document whose root holds one condition:
//
//	<filter>
//	  <and>
//	    <c name="name" operatorType="CONTAINS" type="PROPERTY">{E}.name like :component$customersFilter.name
//	      <param name="component$customersFilter.name" javaClass="java.lang.String">%acme%</param>
//	    </c>
//	    <or>
//	      <c name="city">{E}.address.city = :(?i)city</c>
//	      <c name="bigOrders" join="join {E}.orders o">o.total &gt; :total</c>
//	    </or>
//	  </and>
//	</filter>
//
// Clauses (<c>) hold a query fragment in which {E} stands for the filtered
// entity and :name marks a parameter; <and> and <or> group clauses. Parsing
// yields an immutable tree that may be shared between goroutines.
//
// # Entities
//
// Entities are plain GORM models registered with RegisterEntity. Registered
// entities let clause paths such as {E}.address.city resolve to columns, let
// "join {E}.orders o" become a SQL join and let javaClass attributes name
// entity types.
//
// # Saved filters
//
// SaveFilter, LoadFilter, ListFilters and DeleteFilter persist definitions in
// the saved_filters table. A definition is parsed before it is stored, and a
// stored definition that no longer parses is reported with ErrInvalidFilter.
package condfilter

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/nlstn/go-condfilter/internal/cache"
	"github.com/nlstn/go-condfilter/internal/condition"
	"github.com/nlstn/go-condfilter/internal/metadata"
	"github.com/nlstn/go-condfilter/internal/observability"
	"github.com/nlstn/go-condfilter/internal/params"
	"github.com/nlstn/go-condfilter/internal/parser"
	"github.com/nlstn/go-condfilter/internal/query"
	"github.com/nlstn/go-condfilter/internal/scope"
	"github.com/nlstn/go-condfilter/internal/store"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// Condition is a node of a parsed filter: a *Clause or a *LogicalCondition.
type Condition = condition.Condition

// Clause is a leaf condition holding a query fragment.
type Clause = condition.Clause

// LogicalCondition combines child conditions with AND or OR.
type LogicalCondition = condition.LogicalCondition

// LogicalOp is the operation of a LogicalCondition.
type LogicalOp = condition.LogicalOp

// Labels are the name and caption attributes of a condition node.
type Labels = condition.Labels

// ParameterInfo describes a parameter referenced by a clause.
type ParameterInfo = condition.ParameterInfo

// ParameterSet is the ordered set of parameters of a clause or a whole tree.
type ParameterSet = condition.ParameterSet

// QueryScope is a bound filter predicate ready to be applied to a GORM query.
type QueryScope = scope.QueryScope

// Logical operations.
const (
	OpAnd = condition.OpAnd
	OpOr  = condition.OpOr
)

// Walk visits cond and its descendants depth-first in document order.
// Returning false from fn skips the children of the visited node.
func Walk(cond Condition, fn func(c Condition, depth int) bool) {
	condition.Walk(cond, fn)
}

// Clauses returns the clauses of cond in document order.
func Clauses(cond Condition) []*Clause {
	return condition.Clauses(cond)
}

// Parameters returns every parameter of cond, keyed by name and owning clause.
func Parameters(cond Condition) *ParameterSet {
	return condition.CollectParameters(cond)
}

// Equal reports whether two trees are structurally identical.
func Equal(a, b Condition) bool {
	return condition.Equal(a, b)
}

// ServiceConfig controls optional service behaviours.
type ServiceConfig struct {
	// EntityAlias replaces {E} in rendered clauses. Default: "e".
	EntityAlias string

	// MaxDepth limits the nesting of logical groups accepted by the parser.
	// Default: 32. If set to 0 or left unset, DefaultMaxDepth is used.
	MaxDepth int

	// CacheSize is the number of parsed definitions kept in memory.
	// Default: 256. A negative value disables the cache.
	CacheSize int

	// SkipUnboundClauses drops clauses whose parameters have neither a
	// supplied value nor a declared default when rendering.
	SkipUnboundClauses bool

	// AutoMigrate creates the saved filter table when the service is created.
	AutoMigrate bool
}

const (
	// DefaultEntityAlias is the alias used for {E} when none is configured.
	DefaultEntityAlias = query.DefaultAlias

	// DefaultMaxDepth is the default maximum nesting of logical groups.
	DefaultMaxDepth = parser.DefaultMaxDepth

	// DefaultCacheSize is the default number of cached parsed definitions.
	DefaultCacheSize = cache.DefaultSize
)

// SaveHook runs inside the transaction that writes a saved filter. Use
// TransactionFromContext to take part in the transaction; returning an error
// rolls it back.
type SaveHook func(ctx context.Context, filter *SavedFilter) error

// Service parses, renders and persists filters for a set of registered entities.
// Configure it (entities, logger, observability) before sharing it between goroutines.
type Service struct {
	// db is the GORM connection used for saved filters and Find
	db *gorm.DB
	// dialect is the normalized database dialect used by the query builder
	dialect string
	// model holds the registered entities
	model *metadata.Model
	// resolver maps javaClass names to Go types
	resolver *params.TypeResolver
	// store persists saved filters
	store *store.Store
	// trees caches parsed definitions by entity set and text
	trees *cache.Cache[Condition]
	// saveHook is invoked inside saved filter transactions
	saveHook SaveHook
	// logger is used for structured logging throughout the service
	logger *slog.Logger
	// observability holds the tracing and metrics configuration
	observability *observability.Config

	alias       string
	maxDepth    int
	skipUnbound bool
}

// NewService creates a filter service on db with the default configuration.
func NewService(db *gorm.DB) (*Service, error) {
	return NewServiceWithConfig(db, ServiceConfig{})
}

// NewServiceWithConfig creates a filter service with additional configuration.
func NewServiceWithConfig(db *gorm.DB, cfg ServiceConfig) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("condfilter: database handle is required")
	}
	logger := slog.Default()

	dialect, err := checkDialect(db, logger)
	if err != nil {
		return nil, fmt.Errorf("condfilter: %w", err)
	}

	alias := cfg.EntityAlias
	if alias == "" {
		alias = DefaultEntityAlias
	}
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	model := metadata.NewModel()
	s := &Service{
		db:          db,
		dialect:     dialect,
		model:       model,
		resolver:    params.NewTypeResolver(model),
		trees:       cache.New[Condition](cfg.CacheSize),
		logger:      logger,
		alias:       alias,
		maxDepth:    maxDepth,
		skipUnbound: cfg.SkipUnboundClauses,
	}

	s.store, err = store.New(db,
		store.WithLogger(logger),
		store.WithValidator(s.validateDefinition),
		store.WithSaveHook(s.runSaveHook),
	)
	if err != nil {
		return nil, fmt.Errorf("condfilter: %w", err)
	}

	if cfg.AutoMigrate {
		if err := s.store.Migrate(context.Background()); err != nil {
			return nil, fmt.Errorf("condfilter: %w", err)
		}
	}

	return s, nil
}

// SetLogger sets a custom logger for the service.
// If logger is nil, slog.Default() is used.
func (s *Service) SetLogger(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger
	s.store.SetLogger(logger)
	s.observability.SetLogger(logger)
	return nil
}

// RegisterEntity analyzes a GORM model and makes it available to ParseForEntity,
// Render and javaClass resolution under its entity set name and entity name.
func (s *Service) RegisterEntity(entity interface{}) error {
	entityMetadata, err := s.model.Register(entity)
	if err != nil {
		return err
	}
	// Trees parsed earlier may have left paths of this entity unresolved.
	s.trees.Clear()

	s.logger.Debug("Registered entity",
		"entity", entityMetadata.EntityName,
		"entitySet", entityMetadata.EntitySetName,
		"table", entityMetadata.TableName)
	return nil
}

// RegisterParameterType maps a javaClass name onto a Go type, for
// application-specific classes such as enums.
func (s *Service) RegisterParameterType(className string, typ reflect.Type) error {
	if err := s.resolver.Register(className, typ); err != nil {
		return err
	}
	s.trees.Clear()
	return nil
}

// SetSaveHook sets the hook run inside every saved filter transaction.
func (s *Service) SetSaveHook(hook SaveHook) {
	s.saveHook = hook
}

// MigrateFilters creates or updates the saved filter table.
func (s *Service) MigrateFilters(ctx context.Context) error {
	return s.store.Migrate(ctx)
}

// entity returns the registered entity for entitySet.
func (s *Service) entity(entitySet string) (*metadata.EntityMetadata, error) {
	entity := s.model.Lookup(entitySet)
	if entity == nil {
		return nil, fmt.Errorf("%w: '%s'", ErrEntityNotRegistered, entitySet)
	}
	return entity, nil
}

// ObservabilityConfig configures tracing and metrics for the service.
// All providers are optional; when nil, the corresponding feature is disabled.
type ObservabilityConfig struct {
	// TracerProvider provides the OpenTelemetry tracer. If nil, tracing is disabled.
	TracerProvider trace.TracerProvider

	// MeterProvider provides the OpenTelemetry meter. If nil, metrics are disabled.
	MeterProvider metric.MeterProvider

	// ServiceName identifies this service in telemetry data.
	// Defaults to "condfilter" if not specified.
	ServiceName string

	// ServiceVersion is reported as the instrumentation version.
	ServiceVersion string

	// EnableDetailedDBTracing adds a span per database statement.
	EnableDetailedDBTracing bool

	// EnableServerTiming records parse, render and database timings into the
	// servertiming.Header carried by the request context.
	EnableServerTiming bool
}

// SetObservability configures OpenTelemetry tracing and metrics for parsing,
// rendering, queries and saved filters.
//
// Example:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	defer tp.Shutdown(ctx)
//
//	service.SetObservability(condfilter.ObservabilityConfig{
//	    TracerProvider: tp,
//	    ServiceName:    "customer-browser",
//	})
func (s *Service) SetObservability(cfg ObservabilityConfig) error {
	opts := []observability.Option{observability.WithLogger(s.logger)}

	if cfg.TracerProvider != nil {
		opts = append(opts, observability.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, observability.WithMeterProvider(cfg.MeterProvider))
	}
	if cfg.ServiceName != "" {
		opts = append(opts, observability.WithServiceName(cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		opts = append(opts, observability.WithServiceVersion(cfg.ServiceVersion))
	}
	if cfg.EnableDetailedDBTracing {
		opts = append(opts, observability.WithDetailedDBTracing())
	}
	if cfg.EnableServerTiming {
		opts = append(opts, observability.WithServerTiming())
	}

	obsCfg := observability.NewConfig(opts...)
	if err := obsCfg.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	s.observability = obsCfg

	if cfg.EnableDetailedDBTracing {
		if err := observability.RegisterGORMCallbacks(s.db, obsCfg); err != nil {
			return fmt.Errorf("failed to register GORM callbacks: %w", err)
		}
	}
	if cfg.EnableServerTiming {
		if err := observability.RegisterServerTimingCallbacks(s.db); err != nil {
			return fmt.Errorf("failed to register server timing callbacks: %w", err)
		}
	}

	s.logger.Info("Observability configured",
		"tracing_enabled", cfg.TracerProvider != nil,
		"metrics_enabled", cfg.MeterProvider != nil,
		"server_timing_enabled", cfg.EnableServerTiming,
		"service_name", cfg.ServiceName,
	)
	return nil
}

// Observability returns the current observability configuration, or nil.
func (s *Service) Observability() *observability.Config {
	return s.observability
}

// ServerTimingMetric times an operation for the Server-Timing header.
type ServerTimingMetric = observability.ServerTimingMetric

// StartServerTiming starts a Server-Timing metric when ctx carries a
// servertiming.Header, and returns a no-op metric otherwise.
//
//	metric := condfilter.StartServerTiming(ctx, "load-filters")
//	defer metric.Stop()
func StartServerTiming(ctx context.Context, name string) *ServerTimingMetric {
	return observability.StartServerTiming(ctx, name)
}

// timing starts a Server-Timing metric when enabled for the service.
func (s *Service) timing(ctx context.Context, name, description string) *ServerTimingMetric {
	if !s.observability.ServerTimingEnabled() {
		return &ServerTimingMetric{}
	}
	return observability.StartServerTimingWithDesc(ctx, name, description)
}
