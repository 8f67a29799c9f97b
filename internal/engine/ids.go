package engine

import "github.com/google/uuid"

// NewPassID returns a time-sortable UUIDv7, so pass ids order by start time
// in logs and snapshots.
//
// Panics if UUID generation fails (should never happen in practice).
func NewPassID() string {
	return uuid.Must(uuid.NewV7()).String()
}
