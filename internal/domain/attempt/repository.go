package attempt

import (
	"context"

	"github.com/versant-edu/versant-hub/internal/domain/student"
)

// Repository reads raw attempt documents for insight aggregation.
type Repository interface {
	// FindByIdentity gathers attempts from both the attempt log and the
	// results log whose identity fields match any alias in the set,
	// deduplicated by document ID.
	FindByIdentity(ctx context.Context, ids student.IdentitySet) ([]Attempt, error)
}
