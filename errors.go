package marquee

import (
	"errors"
	"fmt"

	"github.com/hyperengineering/marquee/internal/entity"
	"github.com/hyperengineering/marquee/internal/migrate"
)

// Common errors returned by the store.
var (
	// ErrNotFound is returned when a movie or actor does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned when a movie ID does not fit the store's
	// identity strategy.
	ErrInvalidID = errors.New("invalid id")

	// ErrEmptyTitle is returned when a movie title is empty.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrTitleTooLong is returned when a title exceeds MaxTitleLength.
	ErrTitleTooLong = errors.New("title exceeds maximum length")

	// ErrEmptyName is returned when an actor name is empty.
	ErrEmptyName = errors.New("actor name cannot be empty")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("store is closed")

	// ErrUnsupported is returned for an operation the open schema
	// generation cannot express, such as actor lookups before actors exist.
	ErrUnsupported = errors.New("operation not supported by this schema version")
)

// MigrationError is a fatal failure while bringing a store to its target
// version. Extractable via errors.As().
type MigrationError = migrate.Error

// ConstraintError reports a write rejected by a uniqueness constraint.
// Fetch-or-create paths resolve it; it only escapes from APIs that promise
// a new row.
type ConstraintError = entity.ConstraintError

// ValidationError is returned when configuration validation fails.
// Extractable via errors.As().
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// QueryError is returned by Execute for a malformed FetchSpec or a storage
// failure while fetching. Extractable via errors.As(). Supports Unwrap().
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query: %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
