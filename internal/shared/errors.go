package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
)

// ReferentialIntegrityError reports a reference to an entity that does not
// exist. Operations fail with this error before any mutation takes place.
type ReferentialIntegrityError struct {
	Entity string
	ID     int64
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("unknown %s id %d", e.Entity, e.ID)
}
