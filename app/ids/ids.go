// Package ids generates globally unique, time-ordered identifiers.
//
// Identifiers are UUIDv7 strings: the leading bits encode the generation
// time in milliseconds, so lexicographic order of generated ids follows
// generation order. This is what makes entry ids usable directly as
// pagination cursors.
package ids

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func New() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id.String(), nil
}

// MustNew panics on generation failure. The only failure mode is the
// system entropy source being unavailable, which is fatal anyway.
func MustNew() string {
	id, err := New()
	if err != nil {
		panic(err)
	}
	return id
}

// Timestamp extracts the generation time embedded in an id.
func Timestamp(id string) (time.Time, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse id: %w", err)
	}
	if parsed.Version() != 7 {
		return time.Time{}, fmt.Errorf("id %q is not time-ordered (version %d)", id, parsed.Version())
	}
	sec, nsec := parsed.Time().UnixTime()
	return time.Unix(sec, nsec).UTC(), nil
}
