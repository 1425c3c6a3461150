package exam

import (
	"context"

	"github.com/versant-edu/versant-hub/internal/domain/student"
)

// Repository reads exam assignments for insight reports.
type Repository interface {
	// ListAssignedTo returns every exam targeting the student, whether by
	// explicit assignment or campus/course/batch membership.
	ListAssignedTo(ctx context.Context, s *student.Student) ([]Exam, error)
}
