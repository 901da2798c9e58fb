//go:build example

// Package main demonstrates saved filters in go-condfilter.
//
// This example shows how to:
// 1. Register GORM models so filter paths resolve to columns
// 2. Save a filter definition and load it back
// 3. Apply a filter with GORM or count matches through database/sql
// 4. Audit saved filters inside the save transaction
//
// Note: This is a standalone example file. Run it with `go run -tags example`.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	condfilter "github.com/nlstn/go-condfilter"
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

// Example 1: A saved filter definition
// ====================================

// bigSpenders finds customers of one city with at least one large order.
// The city comparison ignores case; both parameters carry defaults.
const bigSpenders = `<filter>
  <and>
    <c name="City" operatorType="EQUAL" type="PROPERTY">lower({E}.city) = :(?i)component$customersFilter.city
      <param name="component$customersFilter.city" javaClass="java.lang.String">Berlin</param>
    </c>
    <c name="Order total" type="CUSTOM" join="join {E}.orders o">o.total &gt;= :minTotal
      <param name="minTotal" javaClass="java.lang.Long">100</param>
    </c>
  </and>
</filter>`

func main() {
	ctx := context.Background()

	db, err := condfilter.OpenDatabase("sqlite", "file:example.db?mode=memory&cache=shared")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&Customer{}, &Order{}); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}
	db.Create([]Customer{{ID: 1, Name: "Acme", City: "Berlin"}, {ID: 2, Name: "Globex", City: "Paris"}})
	db.Create([]Order{{ID: 1, CustomerID: 1, Total: 250}, {ID: 2, CustomerID: 2, Total: 500}})

	service, err := condfilter.NewServiceWithConfig(db, condfilter.ServiceConfig{AutoMigrate: true})
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	_ = service.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))

	// Example 2: Register entities
	// ============================
	if err := service.RegisterEntity(&Customer{}); err != nil {
		log.Fatal(err)
	}
	if err := service.RegisterEntity(&Order{}); err != nil {
		log.Fatal(err)
	}

	// Example 3: Audit saves in the same transaction
	// ==============================================
	service.SetSaveHook(func(ctx context.Context, filter *condfilter.SavedFilter) error {
		tx, ok := condfilter.TransactionFromContext(ctx)
		if !ok {
			return fmt.Errorf("no transaction")
		}
		_, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS filter_log (name TEXT)")
		if err == nil {
			_, err = tx.ExecContext(ctx, "INSERT INTO filter_log (name) VALUES (?)", filter.Name)
		}
		return err
	})

	saved := &condfilter.SavedFilter{ComponentID: "customers-browse", Name: "Big spenders", XML: bigSpenders}
	if err := service.SaveFilter(ctx, saved); err != nil {
		log.Fatalf("Failed to save filter: %v", err)
	}

	// Example 4: Load and apply
	// =========================
	loaded, err := service.LoadFilter(ctx, saved.ID)
	if err != nil {
		log.Fatalf("Failed to load filter: %v", err)
	}

	var customers []Customer
	if err := service.Find(ctx, "Customers", loaded.Condition, nil, &customers); err != nil {
		log.Fatalf("Find failed: %v", err)
	}
	fmt.Printf("Big spenders in Berlin: %d\n", len(customers))

	// Values override the declared defaults; text is converted to the declared type.
	count, err := service.Count(ctx, "Customers", loaded.Condition, map[string]interface{}{
		"component$customersFilter.city": "PARIS",
		"minTotal":                       "400",
	})
	if err != nil {
		log.Fatalf("Count failed: %v", err)
	}
	fmt.Printf("Big spenders in Paris: %d\n", count)

	// The rendered predicate can be combined with any GORM query.
	scope, err := service.Render(ctx, "Customers", loaded.Condition, nil)
	if err != nil {
		log.Fatal(err)
	}
	var names []string
	db.Scopes(scope.Gorm()).Order("e.name").Pluck("e.name", &names)
	fmt.Printf("Names: %v\n", names)
}
