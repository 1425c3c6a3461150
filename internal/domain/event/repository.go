package event

import (
	"context"
	"time"
)

// Repository persists and queries the progress event log.
type Repository interface {
	// Append writes one event. Failures must be reported, never raised past
	// the monitoring boundary.
	Append(ctx context.Context, ev *ProgressEvent) error

	// CountByTypeSince counts events per type created at or after the cutoff.
	CountByTypeSince(ctx context.Context, since time.Time) (map[Type]int64, error)

	// RecentErrors returns up to limit error events, most recent first.
	RecentErrors(ctx context.Context, limit int) ([]ProgressEvent, error)

	// ListSince returns every event created at or after the cutoff.
	ListSince(ctx context.Context, since time.Time) ([]ProgressEvent, error)

	// DeleteBefore removes events older than the cutoff and returns the
	// number deleted.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
