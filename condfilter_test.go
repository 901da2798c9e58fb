package condfilter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"
	servertiming "github.com/mitchellh/go-server-timing"
	"github.com/nlstn/go-condfilter/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Customer struct {
	ID     uint    `json:"id" gorm:"primaryKey"`
	Name   string  `json:"name"`
	City   string  `json:"city"`
	Orders []Order `json:"orders" gorm:"foreignKey:CustomerID"`
}

type Order struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	CustomerID uint      `json:"customerId"`
	Total      int64     `json:"total"`
	Customer   *Customer `json:"customer" gorm:"foreignKey:CustomerID"`
}

const berlinBigSpenders = `<filter>
  <and>
    <c name="city">lower({E}.city) = :(?i)city<param name="city" javaClass="java.lang.String">Berlin</param></c>
    <c name="orders" join="join {E}.orders o">o.total &gt; :total<param name="total" javaClass="java.lang.Long">50</param></c>
  </and>
</filter>`

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Customer{}, &Order{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	db.Create([]Customer{
		{ID: 1, Name: "Acme", City: "Berlin"},
		{ID: 2, Name: "Globex", City: "Paris"},
		{ID: 3, Name: "Initech", City: "Berlin"},
	})
	db.Create([]Order{
		{ID: 1, CustomerID: 1, Total: 100},
		{ID: 2, CustomerID: 1, Total: 250},
		{ID: 3, CustomerID: 2, Total: 40},
	})
	return db
}

func setupTestService(t *testing.T, cfg ServiceConfig) (*Service, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	cfg.AutoMigrate = true
	service, err := NewServiceWithConfig(db, cfg)
	if err != nil {
		t.Fatalf("NewServiceWithConfig failed: %v", err)
	}
	if err := service.RegisterEntity(&Customer{}); err != nil {
		t.Fatalf("RegisterEntity Customer failed: %v", err)
	}
	if err := service.RegisterEntity(&Order{}); err != nil {
		t.Fatalf("RegisterEntity Order failed: %v", err)
	}
	return service, db
}

func TestNewService_RequiresDB(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Error("expected error for nil database")
	}
}

func TestService_ParseForEntity(t *testing.T) {
	service, _ := setupTestService(t, ServiceConfig{})
	ctx := context.Background()

	cond, err := service.ParseForEntity(ctx, "Customers", berlinBigSpenders)
	if err != nil {
		t.Fatalf("ParseForEntity failed: %v", err)
	}
	root, ok := cond.(*LogicalCondition)
	if !ok || root.Operation != OpAnd || len(root.Conditions) != 2 {
		t.Fatalf("unexpected root %#v", cond)
	}
	clauses := Clauses(cond)
	if clauses[1].Join != "join {E}.orders o" {
		t.Errorf("unexpected join %q", clauses[1].Join)
	}
	if len(clauses[0].Properties) != 1 || clauses[0].Properties[0].Path != "city" || !clauses[0].Properties[0].Resolved {
		t.Errorf("expected city to resolve, got %+v", clauses[0].Properties)
	}

	total, ok := Parameters(cond).Lookup("total")
	if !ok || total.JavaClass != reflect.TypeOf(int64(0)) || total.Value != "50" || total.ClauseID != "0.1" {
		t.Errorf("unexpected total parameter %+v", total)
	}

	if _, err := service.ParseForEntity(ctx, "Suppliers", berlinBigSpenders); !errors.Is(err, ErrEntityNotRegistered) {
		t.Errorf("expected ErrEntityNotRegistered, got %v", err)
	}
}

func TestService_ParseErrors(t *testing.T) {
	service, _ := setupTestService(t, ServiceConfig{MaxDepth: 2})
	ctx := context.Background()

	tests := []struct {
		name     string
		document string
		target   error
	}{
		{"empty filter", `<filter/>`, ErrEmptyFilter},
		{"too deep", `<filter><and><or><and><c>x</c></and></or></and></filter>`, ErrMaxDepth},
		{"unknown operation", `<filter><xor><c>x</c></xor></filter>`, ErrInvalidFilter},
		{"malformed", `<filter><and <c/></filter>`, ErrInvalidFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ParseString(ctx, tt.document)
			if !errors.Is(err, ErrInvalidFilter) {
				t.Fatalf("expected ErrInvalidFilter, got %v", err)
			}
			if !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestService_ParseCache(t *testing.T) {
	service, _ := setupTestService(t, ServiceConfig{})
	ctx := context.Background()

	first, err := service.ParseString(ctx, berlinBigSpenders)
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	second, err := service.ParseString(ctx, berlinBigSpenders)
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	if first != second {
		t.Error("expected the cached tree to be returned")
	}

	uncached, _ := setupTestService(t, ServiceConfig{CacheSize: -1})
	a, _ := uncached.ParseString(ctx, berlinBigSpenders)
	b, _ := uncached.ParseString(ctx, berlinBigSpenders)
	if a == b {
		t.Error("expected independent trees with the cache disabled")
	}
	if !Equal(a, b) {
		t.Error("expected repeated parses to be equal")
	}
}

func TestService_Render(t *testing.T) {
	service, _ := setupTestService(t, ServiceConfig{})
	ctx := context.Background()

	cond, err := service.ParseForEntity(ctx, "Customers", berlinBigSpenders)
	if err != nil {
		t.Fatalf("ParseForEntity failed: %v", err)
	}

	scope, err := service.Render(ctx, "Customers", cond, nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if scope.Condition != "(lower(e.city) = ?) AND (o.total > ?)" {
		t.Errorf("unexpected condition %q", scope.Condition)
	}
	if !reflect.DeepEqual(scope.Args, []interface{}{"berlin", int64(50)}) {
		t.Errorf("unexpected args %#v", scope.Args)
	}
	if !reflect.DeepEqual(scope.Joins, []string{"JOIN orders o ON o.customer_id = e.id"}) {
		t.Errorf("unexpected joins %v", scope.Joins)
	}
	if scope.Table != "customers" || scope.Alias != "e" {
		t.Errorf("unexpected table %q alias %q", scope.Table, scope.Alias)
	}

	// Text values are converted to the declared type.
	scope, err = service.Render(ctx, "Customers", cond, map[string]interface{}{"city": "PARIS", "total": "10"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !reflect.DeepEqual(scope.Args, []interface{}{"paris", int64(10)}) {
		t.Errorf("unexpected args %#v", scope.Args)
	}

	if _, err := service.Render(ctx, "Customers", cond, map[string]interface{}{"total": "lots"}); err == nil {
		t.Error("expected conversion error")
	}
}

func TestService_RenderInListValues(t *testing.T) {
	service, db := setupTestService(t, ServiceConfig{})
	ctx := context.Background()
	document := `<filter><c name="cities">{E}.city in (:cities)<param name="cities">Berlin,Paris</param></c></filter>`

	cond, err := service.ParseForEntity(ctx, "Customers", document)
	if err != nil {
		t.Fatalf("ParseForEntity failed: %v", err)
	}

	tests := []struct {
		name   string
		values map[string]interface{}
		args   []interface{}
	}{
		{"declared default", nil, []interface{}{"Berlin", "Paris"}},
		{"supplied text", map[string]interface{}{"cities": "Paris, Berlin"}, []interface{}{"Paris", "Berlin"}},
		{"supplied slice", map[string]interface{}{"cities": []string{"Paris"}}, []interface{}{"Paris"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, err := service.Render(ctx, "Customers", cond, tt.values)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			want := "e.city in (" + strings.TrimSuffix(strings.Repeat("?, ", len(tt.args)), ", ") + ")"
			if scope.Condition != want {
				t.Errorf("condition = %q, want %q", scope.Condition, want)
			}
			if !reflect.DeepEqual(scope.Args, tt.args) {
				t.Errorf("args = %#v, want %#v", scope.Args, tt.args)
			}
		})
	}

	var customers []Customer
	if err := db.Scopes(mustRender(t, service, cond, map[string]interface{}{"cities": "Berlin,Paris"}).Gorm()).Find(&customers).Error; err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(customers) != 3 {
		t.Errorf("expected 3 customers in Berlin or Paris, got %d", len(customers))
	}
}

func mustRender(t *testing.T, service *Service, cond Condition, values map[string]interface{}) QueryScope {
	t.Helper()
	scope, err := service.Render(context.Background(), "Customers", cond, values)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	return scope
}

func TestService_SetLoggerAfterObservability(t *testing.T) {
	service, _ := setupTestService(t, ServiceConfig{})
	if err := service.SetObservability(ObservabilityConfig{}); err != nil {
		t.Fatalf("SetObservability failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := service.SetLogger(logger); err != nil {
		t.Fatalf("SetLogger failed: %v", err)
	}
	if service.Observability().Logger() != logger {
		t.Error("expected observability to use the new logger")
	}
}

func TestService_RenderMissingAndSkipped(t *testing.T) {
	ctx := context.Background()
	document := `<filter><and><c name="name">{E}.name = :name</c><c name="city">{E}.city = :city</c></and></filter>`

	service, _ := setupTestService(t, ServiceConfig{})
	cond, err := service.ParseForEntity(ctx, "Customers", document)
	if err != nil {
		t.Fatalf("ParseForEntity failed: %v", err)
	}
	if _, err := service.Render(ctx, "Customers", cond, map[string]interface{}{"name": "Acme"}); !errors.Is(err, ErrMissingValue) {
		t.Errorf("expected ErrMissingValue, got %v", err)
	}

	skipping, _ := setupTestService(t, ServiceConfig{SkipUnboundClauses: true, EntityAlias: "c"})
	cond, err = skipping.ParseForEntity(ctx, "Customers", document)
	if err != nil {
		t.Fatalf("ParseForEntity failed: %v", err)
	}
	scope, err := skipping.Render(ctx, "Customers", cond, map[string]interface{}{"name": "Acme"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if scope.Condition != "c.name = ?" || !reflect.DeepEqual(scope.Args, []interface{}{"Acme"}) {
		t.Errorf("unexpected scope %+v", scope)
	}
}

func TestService_FindCountQuery(t *testing.T) {
	service, _ := setupTestService(t, ServiceConfig{})
	ctx := context.Background()

	cond, err := service.ParseForEntity(ctx, "Customers", berlinBigSpenders)
	if err != nil {
		t.Fatalf("ParseForEntity failed: %v", err)
	}

	var customers []Customer
	if err := service.Find(ctx, "Customers", cond, nil, &customers); err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if len(customers) != 1 || customers[0].Name != "Acme" {
		t.Errorf("expected Acme exactly once, got %+v", customers)
	}

	count, err := service.Count(ctx, "Customers", cond, nil)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	berlin, err := service.ParseForEntity(ctx, "Customers",
		`<filter><or><c name="city">{E}.city = :city</c><c name="ids">{E}.id in (:ids)<param name="ids">2</param></c></or></filter>`)
	if err != nil {
		t.Fatalf("ParseForEntity failed: %v", err)
	}
	rows, err := service.Query(ctx, "Customers", berlin, map[string]interface{}{"city": "Berlin"}, QueryOptions{
		OrderBy: []string{"e.id DESC"},
		Limit:   2,
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()
	var ids []uint
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.City); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		ids = append(ids, c.ID)
	}
	if !reflect.DeepEqual(ids, []uint{3, 2}) {
		t.Errorf("expected ids [3 2], got %v", ids)
	}
}

func TestService_MarshalRoundTrip(t *testing.T) {
	service, _ := setupTestService(t, ServiceConfig{})
	ctx := context.Background()

	cond, err := service.ParseString(ctx, berlinBigSpenders)
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	xml, err := service.MarshalString(cond)
	if err != nil {
		t.Fatalf("MarshalString failed: %v", err)
	}
	again, err := service.ParseString(ctx, xml)
	if err != nil {
		t.Fatalf("re-parse failed: %v\n%s", err, xml)
	}
	if !Equal(cond, again) {
		t.Errorf("round trip changed the tree:\n%s", xml)
	}
}

func TestService_SavedFilters(t *testing.T) {
	service, db := setupTestService(t, ServiceConfig{})
	ctx := context.Background()

	filter := &SavedFilter{ComponentID: "customers-browse", Name: "Berlin big spenders", XML: berlinBigSpenders}
	if err := service.SaveFilter(ctx, filter); err != nil {
		t.Fatalf("SaveFilter failed: %v", err)
	}
	if filter.ID == uuid.Nil || filter.Condition == nil {
		t.Fatalf("expected ID and condition to be set, got %+v", filter)
	}

	loaded, err := service.LoadFilter(ctx, filter.ID)
	if err != nil {
		t.Fatalf("LoadFilter failed: %v", err)
	}
	if !Equal(loaded.Condition, filter.Condition) {
		t.Error("loaded condition differs from saved one")
	}

	// A filter built in code is written out as XML.
	built := &SavedFilter{ComponentID: "customers-browse", Name: "Copy", Username: "alice", Condition: loaded.Condition}
	if err := service.SaveFilter(ctx, built); err != nil {
		t.Fatalf("SaveFilter from condition failed: %v", err)
	}
	if !strings.HasPrefix(built.XML, "<filter>") {
		t.Errorf("expected marshalled definition, got %q", built.XML)
	}

	if err := service.SaveFilter(ctx, &SavedFilter{ComponentID: "customers-browse", Name: "Broken", XML: "<filter/>"}); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter for invalid definition, got %v", err)
	}
	if err := service.SaveFilter(ctx, &SavedFilter{ComponentID: "customers-browse", Name: "Berlin big spenders", XML: berlinBigSpenders}); !errors.Is(err, ErrDuplicateFilterName) {
		t.Errorf("expected ErrDuplicateFilterName, got %v", err)
	}

	// Definitions corrupted in the database are reported, not hidden.
	corrupted := &store.FilterRecord{ComponentID: "customers-browse", Name: "Corrupted", XML: "<filter><xor/></filter>"}
	if err := db.Create(corrupted).Error; err != nil {
		t.Fatalf("insert corrupted record: %v", err)
	}
	if _, err := service.LoadFilter(ctx, corrupted.ID); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter loading corrupted filter, got %v", err)
	}

	filters, err := service.ListFilters(ctx, "customers-browse", "bob")
	if err != nil {
		t.Fatalf("ListFilters failed: %v", err)
	}
	var names []string
	for _, f := range filters {
		names = append(names, f.Name)
		if f.Name == "Corrupted" && !errors.Is(f.Err, ErrInvalidFilter) {
			t.Errorf("expected corrupted filter to carry ErrInvalidFilter, got %v", f.Err)
		}
		if f.Name != "Corrupted" && (f.Err != nil || f.Condition == nil) {
			t.Errorf("expected %s to parse, got %v", f.Name, f.Err)
		}
	}
	if strings.Join(names, ",") != "Berlin big spenders,Corrupted" {
		t.Errorf("unexpected filters for bob: %v", names)
	}

	if err := service.DeleteFilter(ctx, filter.ID); err != nil {
		t.Fatalf("DeleteFilter failed: %v", err)
	}
	if _, err := service.LoadFilter(ctx, filter.ID); !errors.Is(err, ErrFilterNotFound) {
		t.Errorf("expected ErrFilterNotFound, got %v", err)
	}
}

func TestService_SaveHookTransaction(t *testing.T) {
	service, db := setupTestService(t, ServiceConfig{})
	ctx := context.Background()
	if err := db.Exec("CREATE TABLE filter_audit (name TEXT)").Error; err != nil {
		t.Fatalf("create audit table: %v", err)
	}

	reject := false
	service.SetSaveHook(func(ctx context.Context, filter *SavedFilter) error {
		tx, ok := TransactionFromContext(ctx)
		if !ok {
			return errors.New("no transaction in hook context")
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO filter_audit (name) VALUES (?)", filter.Name); err != nil {
			return err
		}
		if reject {
			return errors.New("rejected")
		}
		return nil
	})

	if err := service.SaveFilter(ctx, &SavedFilter{ComponentID: "c", Name: "kept", XML: berlinBigSpenders}); err != nil {
		t.Fatalf("SaveFilter failed: %v", err)
	}
	reject = true
	if err := service.SaveFilter(ctx, &SavedFilter{ComponentID: "c", Name: "dropped", XML: berlinBigSpenders}); err == nil {
		t.Fatal("expected hook rejection")
	}

	var audits []string
	if err := db.Table("filter_audit").Pluck("name", &audits).Error; err != nil {
		t.Fatalf("read audits: %v", err)
	}
	if !reflect.DeepEqual(audits, []string{"kept"}) {
		t.Errorf("expected only the committed audit row, got %v", audits)
	}
	filters, err := service.ListFilters(ctx, "c", "")
	if err != nil {
		t.Fatalf("ListFilters failed: %v", err)
	}
	if len(filters) != 1 || filters[0].Name != "kept" {
		t.Errorf("expected only the committed filter, got %d", len(filters))
	}
}

func TestService_ServerTiming(t *testing.T) {
	service, _ := setupTestService(t, ServiceConfig{})
	if err := service.SetObservability(ObservabilityConfig{EnableServerTiming: true}); err != nil {
		t.Fatalf("SetObservability failed: %v", err)
	}
	if service.Observability() == nil {
		t.Fatal("expected observability configuration")
	}

	header := &servertiming.Header{}
	ctx := servertiming.NewContext(context.Background(), header)
	cond, err := service.ParseForEntity(ctx, "Customers", berlinBigSpenders)
	if err != nil {
		t.Fatalf("ParseForEntity failed: %v", err)
	}
	var customers []Customer
	if err := service.Find(ctx, "Customers", cond, nil, &customers); err != nil {
		t.Fatalf("Find failed: %v", err)
	}

	names := map[string]bool{}
	for _, m := range header.Metrics {
		names[m.Name] = true
	}
	for _, want := range []string{"filter-parse", "filter-render", "db-query"} {
		if !names[want] {
			t.Errorf("expected %s timing, got %v", want, names)
		}
	}
}

func TestOpenDatabase(t *testing.T) {
	db, err := OpenDatabase("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	if db.Name() != "sqlite" {
		t.Errorf("expected sqlite dialect, got %s", db.Name())
	}
	if _, err := OpenDatabase("oracle", "dsn"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestNormalizeDialect(t *testing.T) {
	tests := map[string]string{
		"sqlite3":    "sqlite",
		"PostgreSQL": "postgres",
		"pgx":        "postgres",
		"mysql":      "mysql",
	}
	for in, want := range tests {
		if got := normalizeDialect(in); got != want {
			t.Errorf("normalizeDialect(%q) = %q, want %q", in, got, want)
		}
	}
}
