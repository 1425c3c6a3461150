// Package attempt models raw test-attempt documents. Attempts live in two
// independently-populated collections (the attempt log and a separate results
// log) and have historically been written with inconsistent identity and
// score fields, so everything here is schema-on-read.
package attempt

import (
	"time"
)

// TestType splits attempts into practice and online exams.
type TestType string

const (
	TypePractice TestType = "practice"
	TypeOnline   TestType = "online"
)

// Attempt is one test-attempt document in canonical form. Fields carries the
// raw document for the score-extraction fallback chain.
type Attempt struct {
	ID     string `bson:"_id" json:"id"`
	TestID string `bson:"test_id" json:"test_id"`

	// Identity fields - any subset may be populated.
	StudentID  string `bson:"student_id,omitempty" json:"student_id,omitempty"`
	UserID     string `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Email      string `bson:"email,omitempty" json:"email,omitempty"`
	RollNumber string `bson:"roll_number,omitempty" json:"roll_number,omitempty"`

	ModuleID string `bson:"module_id,omitempty" json:"module_id,omitempty"`
	LevelID  string `bson:"level_id,omitempty" json:"level_id,omitempty"`

	TestTypeField string    `bson:"test_type,omitempty" json:"test_type,omitempty"`
	AttemptedAt   time.Time `bson:"attempted_at,omitempty" json:"attempted_at,omitempty"`

	// Fields is the raw document, kept for tolerant score parsing.
	Fields map[string]any `bson:"-" json:"-"`
}

// Type classifies the attempt. Anything not explicitly marked online counts
// as practice, matching how the legacy handlers wrote the field.
func (a Attempt) Type() TestType {
	if a.TestTypeField == string(TypeOnline) {
		return TypeOnline
	}
	return TypePractice
}

// Score resolves the attempt's score through the extraction chain.
func (a Attempt) Score() float64 {
	return ExtractScore(a.Fields)
}

// IdentityValues returns every identity field present on the document.
func (a Attempt) IdentityValues() []string {
	return []string{a.StudentID, a.UserID, a.Email, a.RollNumber}
}
