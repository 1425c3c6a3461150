// Package student contains the student document model owned by the progress
// engine: level authorizations, per-module progress rollups, and the capped
// unlock/lock histories. The four progress-owned fields are created lazily -
// existing documents may lack any of them.
package student

import (
	"time"
)

// AuthorizedBy identifies the source of a level authorization.
type AuthorizedBy string

const (
	// AuthorizedByScore - the level unlocked automatically from a test score.
	AuthorizedByScore AuthorizedBy = "score"
	// AuthorizedByAdmin - the level was granted by an administrator.
	AuthorizedByAdmin AuthorizedBy = "admin"
)

// UnlockStatus is the module-wide unlock flag on ModuleProgress.
type UnlockStatus string

const (
	// UnlockStatusScoreBased - unlocks in this module follow score thresholds.
	UnlockStatusScoreBased UnlockStatus = "score_based"
	// UnlockStatusAdminOverride - an administrator force-unlocked the module.
	UnlockStatusAdminOverride UnlockStatus = "admin_override"
	// UnlockStatusLocked - an administrator locked the module.
	UnlockStatusLocked UnlockStatus = "locked"
)

// History caps. Older entries are evicted silently; this is a sliding
// window, not an error condition.
const (
	MaxUnlockHistory = 200
	MaxLockHistory   = 100
)

// AuthorizationEntry records that a student may access one level.
// At most one entry exists per (student, level) pair; entries are created
// once and removed only by an admin lock, never mutated.
type AuthorizationEntry struct {
	LevelID          string       `bson:"level_id" json:"level_id"`
	AuthorizedBy     AuthorizedBy `bson:"authorized_by" json:"authorized_by"`
	AuthorizedAt     time.Time    `bson:"authorized_at" json:"authorized_at"`
	IsAdminOverride  bool         `bson:"is_admin_override" json:"is_admin_override"`
	ScoreUnlocked    *float64     `bson:"score_unlocked,omitempty" json:"score_unlocked,omitempty"`
	AuthorizedByUser string       `bson:"authorized_by_user,omitempty" json:"authorized_by_user,omitempty"`
	TestID           string       `bson:"test_id,omitempty" json:"test_id,omitempty"`
	Reason           string       `bson:"reason,omitempty" json:"reason,omitempty"`

	// Legacy marks an entry decoded from a bare level-ID string. Legacy
	// entries are written back in their original shape so old documents
	// stay readable by code paths that predate the structured format.
	Legacy bool `bson:"-" json:"-"`
}

// ModuleProgress is the running aggregate of a student's activity within one
// module. Created on first attempt, mutated additively on every subsequent
// attempt.
type ModuleProgress struct {
	LastAttempt     time.Time    `bson:"last_attempt" json:"last_attempt"`
	LastScore       float64      `bson:"last_score" json:"last_score"`
	HighestScore    float64      `bson:"highest_score" json:"highest_score"`
	TotalScore      float64      `bson:"total_score" json:"total_score"`
	AttemptsCount   int          `bson:"attempts_count" json:"attempts_count"`
	UnlockStatus    UnlockStatus `bson:"unlock_status,omitempty" json:"unlock_status,omitempty"`
	AdminOverrideAt *time.Time   `bson:"admin_override_at,omitempty" json:"admin_override_at,omitempty"`
	LockedAt        *time.Time   `bson:"locked_at,omitempty" json:"locked_at,omitempty"`
}

// UnlockHistoryEntry is one row of the append-only unlock audit trail.
type UnlockHistoryEntry struct {
	LevelID        string       `bson:"level_id" json:"level_id"`
	UnlockedAt     time.Time    `bson:"unlocked_at" json:"unlocked_at"`
	UnlockedBy     AuthorizedBy `bson:"unlocked_by" json:"unlocked_by"`
	Score          *float64     `bson:"score,omitempty" json:"score,omitempty"`
	TestID         string       `bson:"test_id,omitempty" json:"test_id,omitempty"`
	UnlockedByUser string       `bson:"unlocked_by_user,omitempty" json:"unlocked_by_user,omitempty"`
	Reason         string       `bson:"reason,omitempty" json:"reason,omitempty"`
}

// LockHistoryEntry is one row of the append-only lock audit trail
// (module-level, not per-level).
type LockHistoryEntry struct {
	ModuleID     string    `bson:"module_id" json:"module_id"`
	LockedAt     time.Time `bson:"locked_at" json:"locked_at"`
	LockedByUser string    `bson:"locked_by_user" json:"locked_by_user"`
	Reason       string    `bson:"reason,omitempty" json:"reason,omitempty"`
}

// Student is the student document. Roster fields are written by the import
// workflow; the four progress fields are owned by the progress engine.
type Student struct {
	ID           string `bson:"_id" json:"id"`
	UserID       string `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Name         string `bson:"name" json:"name"`
	Email        string `bson:"email" json:"email"`
	RollNumber   string `bson:"roll_number,omitempty" json:"roll_number,omitempty"`
	PasswordHash string `bson:"password_hash,omitempty" json:"-"`

	// Campus/course/batch placement, used for exam assignment matching.
	Campus string `bson:"campus,omitempty" json:"campus,omitempty"`
	Course string `bson:"course,omitempty" json:"course,omitempty"`
	Batch  string `bson:"batch,omitempty" json:"batch,omitempty"`

	// Progress-owned fields. All four are optional on disk.
	AuthorizedLevels []AuthorizationEntry       `bson:"-" json:"authorized_levels"`
	ModuleProgress   map[string]*ModuleProgress `bson:"module_progress,omitempty" json:"module_progress,omitempty"`
	UnlockHistory    []UnlockHistoryEntry       `bson:"unlock_history,omitempty" json:"unlock_history,omitempty"`
	LockHistory      []LockHistoryEntry         `bson:"lock_history,omitempty" json:"lock_history,omitempty"`

	// HasAuthorizedField records whether the authorized_levels field was
	// present on the stored document at all (integrity audit distinguishes
	// "empty" from "missing").
	HasAuthorizedField bool `bson:"-" json:"-"`

	CreatedAt time.Time `bson:"created_at,omitempty" json:"created_at,omitempty"`
	UpdatedAt time.Time `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// AuthorizedLevelIDs returns the set of level IDs the student may access,
// treating legacy and structured entries alike.
func (s *Student) AuthorizedLevelIDs() map[string]bool {
	set := make(map[string]bool, len(s.AuthorizedLevels))
	for _, e := range s.AuthorizedLevels {
		if e.LevelID != "" {
			set[e.LevelID] = true
		}
	}
	return set
}

// IsAuthorized reports whether the student holds an authorization for the
// level, in either stored shape.
func (s *Student) IsAuthorized(levelID string) bool {
	for _, e := range s.AuthorizedLevels {
		if e.LevelID == levelID {
			return true
		}
	}
	return false
}

// Authorize appends an authorization entry unless one already exists for the
// same level. Returns true when the entry was added.
func (s *Student) Authorize(entry AuthorizationEntry) bool {
	if s.IsAuthorized(entry.LevelID) {
		return false
	}
	s.AuthorizedLevels = append(s.AuthorizedLevels, entry)
	s.HasAuthorizedField = true
	return true
}

// RemoveAuthorizations filters out every authorization whose level is in the
// given set and returns how many were removed. History entries are untouched.
func (s *Student) RemoveAuthorizations(levelIDs map[string]bool) int {
	kept := s.AuthorizedLevels[:0]
	removed := 0
	for _, e := range s.AuthorizedLevels {
		if levelIDs[e.LevelID] {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.AuthorizedLevels = kept
	return removed
}

// Progress returns the module's progress aggregate, creating it lazily.
func (s *Student) Progress(moduleID string) *ModuleProgress {
	if s.ModuleProgress == nil {
		s.ModuleProgress = make(map[string]*ModuleProgress)
	}
	mp, ok := s.ModuleProgress[moduleID]
	if !ok {
		mp = &ModuleProgress{}
		s.ModuleProgress[moduleID] = mp
	}
	return mp
}

// RecordAttempt folds one test attempt into the module's aggregate:
// last/highest/total score and the attempt counter.
func (s *Student) RecordAttempt(moduleID string, score float64, at time.Time) {
	mp := s.Progress(moduleID)
	mp.LastAttempt = at
	mp.LastScore = score
	if score > mp.HighestScore {
		mp.HighestScore = score
	}
	mp.TotalScore += score
	mp.AttemptsCount++
	if mp.UnlockStatus == "" {
		mp.UnlockStatus = UnlockStatusScoreBased
	}
	s.UpdatedAt = at
}

// SetUnlockStatus overwrites the module-wide unlock flag with a timestamp.
func (s *Student) SetUnlockStatus(moduleID string, status UnlockStatus, at time.Time) {
	mp := s.Progress(moduleID)
	mp.UnlockStatus = status
	switch status {
	case UnlockStatusAdminOverride:
		t := at
		mp.AdminOverrideAt = &t
	case UnlockStatusLocked:
		t := at
		mp.LockedAt = &t
	}
	s.UpdatedAt = at
}

// AppendUnlockHistory appends an unlock audit row, evicting the oldest rows
// beyond MaxUnlockHistory.
func (s *Student) AppendUnlockHistory(entry UnlockHistoryEntry) {
	s.UnlockHistory = append(s.UnlockHistory, entry)
	if n := len(s.UnlockHistory); n > MaxUnlockHistory {
		s.UnlockHistory = s.UnlockHistory[n-MaxUnlockHistory:]
	}
}

// AppendLockHistory appends a lock audit row, evicting the oldest rows
// beyond MaxLockHistory.
func (s *Student) AppendLockHistory(entry LockHistoryEntry) {
	s.LockHistory = append(s.LockHistory, entry)
	if n := len(s.LockHistory); n > MaxLockHistory {
		s.LockHistory = s.LockHistory[n-MaxLockHistory:]
	}
}
