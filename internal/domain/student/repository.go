package student

import (
	"context"
)

// ProgressSnapshot is the lightweight projection the integrity audit scans:
// which levels a student holds and which modules carry progress, without
// loading full documents.
type ProgressSnapshot struct {
	StudentID          string
	AuthorizedLevelIDs []string
	HasAuthorizedField bool
	ProgressModuleIDs  []string
}

// Repository defines persistence operations for student documents.
// Implementations must tolerate documents missing any of the four
// progress-owned fields and must normalize legacy authorized_levels shapes
// on read (shared.ErrStudentNotFound when the ID does not resolve).
type Repository interface {
	// GetByID returns a student by internal ID.
	GetByID(ctx context.Context, id string) (*Student, error)

	// Create inserts a new student document.
	Create(ctx context.Context, s *Student) error

	// Update persists the full document, including the progress-owned
	// fields, writing new authorization entries in the structured shape.
	Update(ctx context.Context, s *Student) error

	// CountAll returns the total number of students.
	CountAll(ctx context.Context) (int64, error)

	// CountWithProgress returns how many students have any module_progress.
	CountWithProgress(ctx context.Context) (int64, error)

	// ListProgressSnapshots streams the audit projection for every student
	// that has either authorized levels or module progress.
	ListProgressSnapshots(ctx context.Context) ([]ProgressSnapshot, error)
}
