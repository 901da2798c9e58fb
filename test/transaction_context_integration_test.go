package condfilter_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	condfilter "github.com/nlstn/go-condfilter"
	"gorm.io/gorm"
)

type Product struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type FilterAudit struct {
	ID      uint `gorm:"primaryKey"`
	Counter int
}

const cheapProducts = `<filter><and><c name="price">{E}.price &lt; :max<param name="max" javaClass="java.lang.Long">10</param></c></and></filter>`

func openIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := condfilter.OpenDatabase("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Product{}, &FilterAudit{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Create(&FilterAudit{ID: 1, Counter: 0}).Error; err != nil {
		t.Fatalf("seed audit: %v", err)
	}
	return db
}

func TestSaveHookTransactionRollsBackOnAbort(t *testing.T) {
	db := openIntegrationDB(t)
	service, err := condfilter.NewServiceWithConfig(db, condfilter.ServiceConfig{AutoMigrate: true})
	if err != nil {
		t.Fatalf("NewServiceWithConfig() error: %v", err)
	}

	var hookTransactionObserved bool
	abort := true
	service.SetSaveHook(func(ctx context.Context, filter *condfilter.SavedFilter) error {
		tx, ok := condfilter.TransactionFromContext(ctx)
		if !ok {
			return fmt.Errorf("transaction not available in context")
		}
		hookTransactionObserved = true
		if _, err := tx.Exec("UPDATE filter_audits SET counter = counter + 1 WHERE id = ?", 1); err != nil {
			return err
		}
		if abort {
			return fmt.Errorf("abort save for test")
		}
		return nil
	})

	ctx := context.Background()
	err = service.SaveFilter(ctx, &condfilter.SavedFilter{ComponentID: "products", Name: "cheap", XML: cheapProducts})
	if err == nil {
		t.Fatal("expected save to be aborted by the hook")
	}
	if !hookTransactionObserved {
		t.Fatal("expected hook to observe the transaction")
	}

	var audit FilterAudit
	if err := db.First(&audit, 1).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if audit.Counter != 0 {
		t.Fatalf("expected audit update to be rolled back, got counter %d", audit.Counter)
	}
	filters, err := service.ListFilters(ctx, "products", "")
	if err != nil {
		t.Fatalf("ListFilters: %v", err)
	}
	if len(filters) != 0 {
		t.Fatalf("expected aborted filter not to be stored, got %d", len(filters))
	}

	abort = false
	if err := service.SaveFilter(ctx, &condfilter.SavedFilter{ComponentID: "products", Name: "cheap", XML: cheapProducts}); err != nil {
		t.Fatalf("SaveFilter: %v", err)
	}
	if err := db.First(&audit, 1).Error; err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if audit.Counter != 1 {
		t.Fatalf("expected committed audit update, got counter %d", audit.Counter)
	}
}

func TestSavedFilterEndToEnd(t *testing.T) {
	db := openIntegrationDB(t)
	db.Create([]Product{
		{ID: 1, Name: "pen", Price: 2},
		{ID: 2, Name: "lamp", Price: 40},
		{ID: 3, Name: "mug", Price: 8},
	})

	service, err := condfilter.NewServiceWithConfig(db, condfilter.ServiceConfig{AutoMigrate: true})
	if err != nil {
		t.Fatalf("NewServiceWithConfig() error: %v", err)
	}
	if err := service.RegisterEntity(&Product{}); err != nil {
		t.Fatalf("RegisterEntity: %v", err)
	}

	ctx := context.Background()
	saved := &condfilter.SavedFilter{ComponentID: "products", Name: "cheap", XML: cheapProducts}
	if err := service.SaveFilter(ctx, saved); err != nil {
		t.Fatalf("SaveFilter: %v", err)
	}

	loaded, err := service.LoadFilter(ctx, saved.ID)
	if err != nil {
		t.Fatalf("LoadFilter: %v", err)
	}

	var products []Product
	if err := service.Find(ctx, "Products", loaded.Condition, nil, &products); err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 cheap products, got %+v", products)
	}

	count, err := service.Count(ctx, "Products", loaded.Condition, map[string]interface{}{"max": "5"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 product under 5, got %d", count)
	}

	if err := service.DeleteFilter(ctx, saved.ID); err != nil {
		t.Fatalf("DeleteFilter: %v", err)
	}
	if _, err := service.LoadFilter(ctx, saved.ID); !errors.Is(err, condfilter.ErrFilterNotFound) {
		t.Fatalf("expected ErrFilterNotFound, got %v", err)
	}
}
