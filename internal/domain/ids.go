package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a time-ordered UUIDv7. Ids generated by one process are
// strictly increasing, which makes them a valid tie-breaker for equal
// timestamps.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Now is the store clock: UTC at millisecond precision, the coarsest
// resolution among the supported databases.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
