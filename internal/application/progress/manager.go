// Package progress implements the student progress manager: score-based
// auto-unlocks on test completion, admin authorize/lock overrides, and the
// per-student insight reports.
//
// Every public method is an error boundary. Storage failures are logged and
// converted to sentinel returns (false / failure tuple / nil) so that a
// grading handler or admin route is never blocked by progress tracking.
package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/versant-edu/versant-hub/internal/domain/attempt"
	"github.com/versant-edu/versant-hub/internal/domain/event"
	"github.com/versant-edu/versant-hub/internal/domain/exam"
	"github.com/versant-edu/versant-hub/internal/domain/registry"
	"github.com/versant-edu/versant-hub/internal/domain/student"
	"github.com/versant-edu/versant-hub/pkg/logger"
)

// EventSink receives monitoring events from the manager. Implementations are
// fire-and-forget: a sink failure never affects the operation being logged.
type EventSink interface {
	LogProgressEvent(ctx context.Context, t event.Type, studentID, levelID string, details map[string]any)
}

// InsightsInvalidator drops cached insight reports after a write.
type InsightsInvalidator interface {
	Invalidate(ctx context.Context, studentID string)
}

// Manager is the progress state-transition engine.
type Manager struct {
	students student.Repository
	attempts attempt.Repository
	exams    exam.Repository
	registry *registry.Registry
	events   EventSink
	cache    InsightsInvalidator
	log      *logger.Logger
	now      func() time.Time
}

// NewManager creates a Manager. The attempt and exam repositories are only
// consulted by the insight reports; the cache is optional.
func NewManager(
	students student.Repository,
	attempts attempt.Repository,
	exams exam.Repository,
	reg *registry.Registry,
	events EventSink,
	log *logger.Logger,
) *Manager {
	return &Manager{
		students: students,
		attempts: attempts,
		exams:    exams,
		registry: reg,
		events:   events,
		log:      log.With(logger.Component("progress_manager")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithInsightsCache attaches a cache invalidator for insight reports.
func (m *Manager) WithInsightsCache(cache InsightsInvalidator) *Manager {
	m.cache = cache
	return m
}

// WithClock overrides the manager's clock. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// UpdateOnTestCompletion processes a graded test: unlocks every level whose
// prerequisite is the completed level and whose threshold the score meets,
// folds the attempt into the module rollup, and records the attempt in the
// unlock history. Returns false on any failure; the caller's HTTP response
// must not depend on it.
//
// Score is trusted as graded (no range check) and levelID is not validated
// against the registry - unknown levels still record module progress under
// their inferred module.
func (m *Manager) UpdateOnTestCompletion(ctx context.Context, studentID, levelID string, score float64, testID string) bool {
	log := m.log.With(logger.StudentID(studentID), logger.LevelID(levelID), logger.Score(score))

	s, err := m.students.GetByID(ctx, studentID)
	if err != nil {
		log.Warn("progress update skipped: student not found", logger.Err(err))
		return false
	}

	now := m.now()
	authorized := s.AuthorizedLevelIDs()

	// All qualifying dependents unlock in the same call, not just the first.
	var unlocked []registry.Level
	for _, candidate := range m.registry.DependentsOf(levelID) {
		if authorized[candidate.ID] {
			continue
		}
		if score >= float64(candidate.UnlockThreshold) {
			unlocked = append(unlocked, candidate)
		}
	}

	for _, lvl := range unlocked {
		scoreCopy := score
		s.Authorize(student.AuthorizationEntry{
			LevelID:       lvl.ID,
			AuthorizedBy:  student.AuthorizedByScore,
			AuthorizedAt:  now,
			ScoreUnlocked: &scoreCopy,
			TestID:        testID,
		})
	}

	s.RecordAttempt(m.registry.ModuleOfLevel(levelID), score, now)

	// The history row records the attempt on the completed level itself,
	// whether or not anything downstream unlocked.
	scoreCopy := score
	s.AppendUnlockHistory(student.UnlockHistoryEntry{
		LevelID:    levelID,
		UnlockedAt: now,
		UnlockedBy: student.AuthorizedByScore,
		Score:      &scoreCopy,
		TestID:     testID,
	})

	if err := m.students.Update(ctx, s); err != nil {
		log.Error("progress update failed", logger.Err(err))
		m.events.LogProgressEvent(ctx, event.TypeError, studentID, levelID, map[string]any{
			"operation": "update_on_test_completion",
			"error":     err.Error(),
		})
		return false
	}

	for _, lvl := range unlocked {
		m.events.LogProgressEvent(ctx, event.TypeUnlock, studentID, lvl.ID, map[string]any{
			"score":        score,
			"test_id":      testID,
			"prerequisite": levelID,
		})
	}

	m.invalidateInsights(ctx, studentID)

	log.Info("progress updated", logger.Int("levels_unlocked", len(unlocked)))
	return true
}

// AdminAuthorizeModule force-unlocks every level of a module for a student.
// Idempotent per level. The returned message is forwarded verbatim to the
// admin UI.
func (m *Manager) AdminAuthorizeModule(ctx context.Context, studentID, moduleID, adminUserID, reason string) (bool, string) {
	levels := m.registry.LevelsByModule(moduleID)
	if len(levels) == 0 {
		return false, "No levels found for this module"
	}

	s, err := m.students.GetByID(ctx, studentID)
	if err != nil {
		m.log.Warn("admin authorize module failed", logger.StudentID(studentID), logger.ModuleID(moduleID), logger.Err(err))
		return false, err.Error()
	}

	now := m.now()
	var granted []registry.Level
	for _, lvl := range levels {
		added := s.Authorize(student.AuthorizationEntry{
			LevelID:          lvl.ID,
			AuthorizedBy:     student.AuthorizedByAdmin,
			AuthorizedAt:     now,
			IsAdminOverride:  true,
			AuthorizedByUser: adminUserID,
			Reason:           reason,
		})
		if !added {
			continue
		}
		granted = append(granted, lvl)
		s.AppendUnlockHistory(student.UnlockHistoryEntry{
			LevelID:        lvl.ID,
			UnlockedAt:     now,
			UnlockedBy:     student.AuthorizedByAdmin,
			UnlockedByUser: adminUserID,
			Reason:         reason,
		})
	}

	// One flag for the whole module, overwritten even though unlocking is
	// per-level.
	s.SetUnlockStatus(moduleID, student.UnlockStatusAdminOverride, now)

	if err := m.students.Update(ctx, s); err != nil {
		m.log.Error("admin authorize module failed", logger.StudentID(studentID), logger.ModuleID(moduleID), logger.Err(err))
		return false, err.Error()
	}

	for _, lvl := range granted {
		m.events.LogProgressEvent(ctx, event.TypeAuthorize, studentID, lvl.ID, map[string]any{
			"module_id":     moduleID,
			"admin_user_id": adminUserID,
			"reason":        reason,
		})
	}

	m.invalidateInsights(ctx, studentID)

	m.log.Info("module authorized by admin",
		logger.StudentID(studentID), logger.ModuleID(moduleID), logger.AdminUser(adminUserID),
		logger.Int("levels_granted", len(granted)))
	return true, fmt.Sprintf("Module %s authorized successfully", moduleID)
}

// AdminAuthorizeLevel force-unlocks a single level. Unlike the module-level
// authorize, this path emits no monitoring event.
func (m *Manager) AdminAuthorizeLevel(ctx context.Context, studentID, levelID, adminUserID, reason string) (bool, string) {
	lvl, err := m.registry.Level(levelID)
	if err != nil {
		return false, "No such level is registered"
	}

	s, err := m.students.GetByID(ctx, studentID)
	if err != nil {
		m.log.Warn("admin authorize level failed", logger.StudentID(studentID), logger.LevelID(levelID), logger.Err(err))
		return false, err.Error()
	}

	now := m.now()
	added := s.Authorize(student.AuthorizationEntry{
		LevelID:          levelID,
		AuthorizedBy:     student.AuthorizedByAdmin,
		AuthorizedAt:     now,
		IsAdminOverride:  true,
		AuthorizedByUser: adminUserID,
		Reason:           reason,
	})
	if added {
		s.AppendUnlockHistory(student.UnlockHistoryEntry{
			LevelID:        levelID,
			UnlockedAt:     now,
			UnlockedBy:     student.AuthorizedByAdmin,
			UnlockedByUser: adminUserID,
			Reason:         reason,
		})
	}

	s.SetUnlockStatus(lvl.ModuleID, student.UnlockStatusAdminOverride, now)

	if err := m.students.Update(ctx, s); err != nil {
		m.log.Error("admin authorize level failed", logger.StudentID(studentID), logger.LevelID(levelID), logger.Err(err))
		return false, err.Error()
	}

	m.invalidateInsights(ctx, studentID)

	m.log.Info("level authorized by admin",
		logger.StudentID(studentID), logger.LevelID(levelID), logger.AdminUser(adminUserID))
	return true, fmt.Sprintf("Level %s authorized successfully", levelID)
}

// AdminLockModule removes every authorization the student holds in the
// module. The prior unlock records survive only in unlock_history; the
// authorization entries themselves are gone.
func (m *Manager) AdminLockModule(ctx context.Context, studentID, moduleID, adminUserID, reason string) (bool, string) {
	levels := m.registry.LevelsByModule(moduleID)
	if len(levels) == 0 {
		return false, "No levels found for this module"
	}

	s, err := m.students.GetByID(ctx, studentID)
	if err != nil {
		m.log.Warn("admin lock module failed", logger.StudentID(studentID), logger.ModuleID(moduleID), logger.Err(err))
		return false, err.Error()
	}

	levelSet := make(map[string]bool, len(levels))
	for _, lvl := range levels {
		levelSet[lvl.ID] = true
	}

	now := m.now()
	removed := s.RemoveAuthorizations(levelSet)
	s.SetUnlockStatus(moduleID, student.UnlockStatusLocked, now)
	s.AppendLockHistory(student.LockHistoryEntry{
		ModuleID:     moduleID,
		LockedAt:     now,
		LockedByUser: adminUserID,
		Reason:       reason,
	})

	if err := m.students.Update(ctx, s); err != nil {
		m.log.Error("admin lock module failed", logger.StudentID(studentID), logger.ModuleID(moduleID), logger.Err(err))
		return false, err.Error()
	}

	m.invalidateInsights(ctx, studentID)

	m.log.Info("module locked by admin",
		logger.StudentID(studentID), logger.ModuleID(moduleID), logger.AdminUser(adminUserID),
		logger.Int("authorizations_removed", removed))
	return true, fmt.Sprintf("Module %s locked successfully", moduleID)
}

func (m *Manager) invalidateInsights(ctx context.Context, studentID string) {
	if m.cache != nil {
		m.cache.Invalidate(ctx, studentID)
	}
}
