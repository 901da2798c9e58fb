// Package store persists saved filter definitions with GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no saved filter has the requested ID.
	ErrNotFound = errors.New("saved filter not found")
	// ErrDuplicateName is returned when a component already has a filter of that name for the same user.
	ErrDuplicateName = errors.New("saved filter name already in use")
)

// FilterRecord is a persisted filter definition. Records without Username are shared by all users.
type FilterRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	ComponentID string    `gorm:"size:255;not null;uniqueIndex:idx_saved_filter_owner"`
	Name        string    `gorm:"size:255;not null;uniqueIndex:idx_saved_filter_owner"`
	Username    string    `gorm:"size:255;not null;uniqueIndex:idx_saved_filter_owner"`
	Code        string    `gorm:"size:255;index"`
	XML         string    `gorm:"column:xml;type:text;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table saved filters are stored in.
func (FilterRecord) TableName() string {
	return "saved_filters"
}

// BeforeCreate assigns a random ID to new records.
func (r *FilterRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// SaveHook runs inside the save transaction before the record is written.
// Returning an error rolls the transaction back.
type SaveHook func(ctx context.Context, record *FilterRecord) error

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithValidator sets the check a definition must pass before it is saved.
func WithValidator(validate func(xml string) error) Option {
	return func(s *Store) {
		s.validate = validate
	}
}

// WithSaveHook adds a hook run inside every save transaction.
func WithSaveHook(hook SaveHook) Option {
	return func(s *Store) {
		if hook != nil {
			s.hooks = append(s.hooks, hook)
		}
	}
}

// Store reads and writes saved filters.
type Store struct {
	db       *gorm.DB
	logger   *slog.Logger
	validate func(xml string) error
	hooks    []SaveHook
}

// New creates a store on db.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetLogger replaces the store logger. Nil is ignored.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Migrate creates or updates the saved filter table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&FilterRecord{}); err != nil {
		return fmt.Errorf("failed to migrate saved filters: %w", err)
	}
	return nil
}

// Save validates record and inserts or updates it in one transaction.
// A record without ID is inserted and receives a new ID.
func (s *Store) Save(ctx context.Context, record *FilterRecord) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	record.ComponentID = strings.TrimSpace(record.ComponentID)
	record.Name = strings.TrimSpace(record.Name)
	if record.ComponentID == "" || record.Name == "" {
		return fmt.Errorf("saved filter needs a component ID and a name")
	}
	if s.validate != nil {
		if err := s.validate(record.XML); err != nil {
			return fmt.Errorf("saved filter %q: %w", record.Name, err)
		}
	}

	err := s.runInTransaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var clashes int64
		query := tx.Model(&FilterRecord{}).
			Where("component_id = ? AND name = ? AND username = ?", record.ComponentID, record.Name, record.Username)
		if record.ID != uuid.Nil {
			query = query.Where("id <> ?", record.ID)
		}
		if err := query.Count(&clashes).Error; err != nil {
			return err
		}
		if clashes > 0 {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateName, record.ComponentID, record.Name)
		}

		for _, hook := range s.hooks {
			if err := hook(ctx, record); err != nil {
				return err
			}
		}

		if record.ID == uuid.Nil {
			return tx.Create(record).Error
		}
		return tx.Save(record).Error
	})
	if err != nil {
		s.logger.Error("Failed to save filter", "component", record.ComponentID, "name", record.Name, "error", err)
		return err
	}

	s.logger.Debug("Saved filter", "id", record.ID, "component", record.ComponentID, "name", record.Name)
	return nil
}

// Get returns the filter with the given ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*FilterRecord, error) {
	var record FilterRecord
	err := s.conn(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByComponent returns the filters of a component ordered by name. With a
// username, only that user's filters and shared filters are returned.
func (s *Store) ListByComponent(ctx context.Context, componentID, username string) ([]FilterRecord, error) {
	query := s.conn(ctx).Where("component_id = ?", componentID)
	if username != "" {
		query = query.Where("(username = ? OR username = '')", username)
	}
	var records []FilterRecord
	if err := query.Order("name").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes the filter with the given ID.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	result := s.conn(ctx).Delete(&FilterRecord{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.logger.Debug("Deleted filter", "id", id)
	return nil
}

// conn returns the transaction carried by ctx or the store connection.
func (s *Store) conn(ctx context.Context) *gorm.DB {
	if tx, ok := gormTransactionFromContext(ctx); ok {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// runInTransaction runs fn in the transaction carried by ctx, or in a new one.
func (s *Store) runInTransaction(ctx context.Context, fn func(ctx context.Context, tx *gorm.DB) error) error {
	if tx, ok := gormTransactionFromContext(ctx); ok {
		return fn(ctx, tx)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(withTransaction(ctx, tx), tx)
	})
}
