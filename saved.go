package condfilter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nlstn/go-condfilter/internal/observability"
	"github.com/nlstn/go-condfilter/internal/store"
)

// SavedFilter is a filter definition stored for a screen component.
// Filters without Username are shared by every user of the component.
type SavedFilter struct {
	ID          uuid.UUID
	ComponentID string
	Name        string
	Code        string
	Username    string
	XML         string
	// Condition is the parsed definition. When saving a filter without XML,
	// the definition is written from Condition.
	Condition Condition
	// Err is set by ListFilters for a stored definition that no longer parses.
	Err error

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SaveFilter validates and stores filter, inserting it when it has no ID.
// The assigned ID and timestamps are written back into filter.
func (s *Service) SaveFilter(ctx context.Context, filter *SavedFilter) error {
	if filter == nil {
		return fmt.Errorf("filter is required")
	}
	ctx, span := s.observability.Tracer().StartStore(ctx, "save")
	defer span.End()
	span.SetAttributes(observability.AttrComponentID.String(filter.ComponentID))

	if filter.XML == "" && filter.Condition != nil {
		xml, err := s.MarshalString(filter.Condition)
		if err != nil {
			observability.RecordError(span, err)
			return err
		}
		filter.XML = xml
	}

	record := filter.record()
	if err := s.store.Save(ctx, record); err != nil {
		observability.RecordError(span, err)
		return err
	}
	filter.ID = record.ID
	filter.ComponentID = record.ComponentID
	filter.Name = record.Name
	filter.CreatedAt = record.CreatedAt
	filter.UpdatedAt = record.UpdatedAt

	if filter.Condition == nil {
		cond, err := s.ParseString(ctx, filter.XML)
		if err != nil {
			return err
		}
		filter.Condition = cond
	}
	span.SetAttributes(observability.AttrFilterID.String(filter.ID.String()))
	return nil
}

// LoadFilter returns the saved filter with the given ID, parsed. A stored
// definition that no longer parses yields an error wrapping ErrInvalidFilter.
func (s *Service) LoadFilter(ctx context.Context, id uuid.UUID) (*SavedFilter, error) {
	ctx, span := s.observability.Tracer().StartStore(ctx, "load")
	defer span.End()
	span.SetAttributes(observability.AttrFilterID.String(id.String()))

	record, err := s.store.Get(ctx, id)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	filter := savedFilterFromRecord(record)
	cond, err := s.ParseString(ctx, record.XML)
	if err != nil {
		observability.RecordError(span, err)
		s.logger.Warn("Saved filter is invalid", "id", id, "name", record.Name, "error", err)
		return nil, fmt.Errorf("saved filter '%s': %w", record.Name, err)
	}
	filter.Condition = cond
	return filter, nil
}

// ListFilters returns the filters of a component ordered by name. With a
// username, only that user's filters and shared ones are listed. Filters
// whose definition no longer parses are listed with Err set.
func (s *Service) ListFilters(ctx context.Context, componentID, username string) ([]*SavedFilter, error) {
	ctx, span := s.observability.Tracer().StartStore(ctx, "list")
	defer span.End()
	span.SetAttributes(observability.AttrComponentID.String(componentID))

	records, err := s.store.ListByComponent(ctx, componentID, username)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	filters := make([]*SavedFilter, 0, len(records))
	for i := range records {
		filter := savedFilterFromRecord(&records[i])
		filter.Condition, filter.Err = s.ParseString(ctx, records[i].XML)
		if filter.Err != nil {
			s.logger.Warn("Saved filter is invalid", "id", filter.ID, "name", filter.Name, "error", filter.Err)
		}
		filters = append(filters, filter)
	}
	return filters, nil
}

// DeleteFilter removes the saved filter with the given ID.
func (s *Service) DeleteFilter(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.observability.Tracer().StartStore(ctx, "delete")
	defer span.End()
	span.SetAttributes(observability.AttrFilterID.String(id.String()))

	if err := s.store.Delete(ctx, id); err != nil {
		observability.RecordError(span, err)
		return err
	}
	return nil
}

// runSaveHook adapts the service save hook to store records.
func (s *Service) runSaveHook(ctx context.Context, record *store.FilterRecord) error {
	if s.saveHook == nil {
		return nil
	}
	return s.saveHook(ctx, savedFilterFromRecord(record))
}

func (f *SavedFilter) record() *store.FilterRecord {
	return &store.FilterRecord{
		ID:          f.ID,
		ComponentID: f.ComponentID,
		Name:        f.Name,
		Code:        f.Code,
		Username:    f.Username,
		XML:         f.XML,
		CreatedAt:   f.CreatedAt,
	}
}

func savedFilterFromRecord(record *store.FilterRecord) *SavedFilter {
	return &SavedFilter{
		ID:          record.ID,
		ComponentID: record.ComponentID,
		Name:        record.Name,
		Code:        record.Code,
		Username:    record.Username,
		XML:         record.XML,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}
