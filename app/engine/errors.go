package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMigrationConflict signals that the feed layout changed underneath a
// running migration (target row appeared or disappeared). The whole
// migration is retried; nothing partial is kept.
var ErrMigrationConflict = errors.New("migration conflict")

// UnidentifiableItemError marks a single item that carries no guid, link
// or title. The item is skipped; the batch continues.
type UnidentifiableItemError struct {
	Index int
}

func (e *UnidentifiableItemError) Error() string {
	return fmt.Sprintf("item %d has no guid, link or title", e.Index)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
