// Package exam models online exam assignments. Assignment is informational
// for insight reports only; it never participates in unlock logic.
package exam

import (
	"time"

	"github.com/versant-edu/versant-hub/internal/domain/student"
)

// Exam is an online exam that can be assigned to students explicitly or by
// campus/course/batch membership.
type Exam struct {
	ID       string `bson:"_id" json:"id"`
	Title    string `bson:"title" json:"title"`
	ModuleID string `bson:"module_id,omitempty" json:"module_id,omitempty"`

	// Explicit assignment by student ID.
	AssignedStudentIDs []string `bson:"assigned_student_ids,omitempty" json:"assigned_student_ids,omitempty"`

	// Cohort assignment; empty fields match everything within the narrower ones.
	Campus string `bson:"campus,omitempty" json:"campus,omitempty"`
	Course string `bson:"course,omitempty" json:"course,omitempty"`
	Batch  string `bson:"batch,omitempty" json:"batch,omitempty"`

	ScheduledAt time.Time `bson:"scheduled_at,omitempty" json:"scheduled_at,omitempty"`
	CreatedAt   time.Time `bson:"created_at,omitempty" json:"created_at,omitempty"`
}

// IsAssignedTo reports whether the exam targets the student, either by
// explicit ID or by cohort membership.
func (e Exam) IsAssignedTo(s *student.Student) bool {
	for _, id := range e.AssignedStudentIDs {
		if id == s.ID {
			return true
		}
	}
	if e.Campus == "" && e.Course == "" && e.Batch == "" {
		return false
	}
	if e.Campus != "" && e.Campus != s.Campus {
		return false
	}
	if e.Course != "" && e.Course != s.Course {
		return false
	}
	if e.Batch != "" && e.Batch != s.Batch {
		return false
	}
	return true
}
