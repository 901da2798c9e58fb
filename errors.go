package condfilter

import (
	"errors"

	"github.com/nlstn/go-condfilter/internal/parser"
	"github.com/nlstn/go-condfilter/internal/query"
	"github.com/nlstn/go-condfilter/internal/store"
)

var (
	// ErrInvalidFilter wraps every failure to parse a filter definition, so
	// callers can report a saved filter as invalid or corrupted.
	ErrInvalidFilter = errors.New("condfilter: invalid filter definition")

	// ErrEntityNotRegistered is returned when an entity set name is unknown to the service.
	ErrEntityNotRegistered = errors.New("condfilter: entity set not registered")

	// ErrEmptyFilter is returned for a definition without a root condition.
	ErrEmptyFilter = parser.ErrEmptyFilter

	// ErrMaxDepth is returned when logical groups nest deeper than the configured limit.
	ErrMaxDepth = parser.ErrMaxDepth

	// ErrMissingValue is returned when a rendered clause references a parameter without value.
	ErrMissingValue = query.ErrMissingValue

	// ErrFilterNotFound is returned when no saved filter has the requested ID.
	ErrFilterNotFound = store.ErrNotFound

	// ErrDuplicateFilterName is returned when a saved filter name is already used in its scope.
	ErrDuplicateFilterName = store.ErrDuplicateName
)
