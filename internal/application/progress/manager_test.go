package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versant-edu/versant-hub/internal/domain/event"
	"github.com/versant-edu/versant-hub/internal/domain/registry"
	"github.com/versant-edu/versant-hub/internal/domain/student"
	"github.com/versant-edu/versant-hub/pkg/logger"
)

var testClock = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, reg *registry.Registry, students *fakeStudentRepo) (*Manager, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	m := NewManager(students, &fakeAttemptRepo{}, &fakeExamRepo{}, reg, sink, logger.Default()).
		WithClock(func() time.Time { return testClock })
	return m, sink
}

func studentWithLevels(id string, levelIDs ...string) *student.Student {
	s := &student.Student{ID: id, Name: "Test Student", Email: id + "@example.com"}
	for _, lvl := range levelIDs {
		s.Authorize(student.AuthorizationEntry{
			LevelID:      lvl,
			AuthorizedBy: student.AuthorizedByScore,
			AuthorizedAt: testClock.Add(-24 * time.Hour),
		})
	}
	return s
}

func TestUpdateOnTestCompletion_ThresholdGate(t *testing.T) {
	ctx := context.Background()

	t.Run("below threshold does not unlock", func(t *testing.T) {
		repo := newFakeStudentRepo(studentWithLevels("stu-1", "GRAMMAR_L1"))
		m, sink := newTestManager(t, registry.Default(), repo)

		ok := m.UpdateOnTestCompletion(ctx, "stu-1", "GRAMMAR_L1", 59, "test-1")
		assert.True(t, ok)

		s, _ := repo.GetByID(ctx, "stu-1")
		assert.False(t, s.IsAuthorized("GRAMMAR_L2"))
		assert.Empty(t, sink.ofType(event.TypeUnlock))
	})

	t.Run("exact threshold unlocks", func(t *testing.T) {
		repo := newFakeStudentRepo(studentWithLevels("stu-1", "GRAMMAR_L1"))
		m, sink := newTestManager(t, registry.Default(), repo)

		ok := m.UpdateOnTestCompletion(ctx, "stu-1", "GRAMMAR_L1", 60, "test-1")
		assert.True(t, ok)

		s, _ := repo.GetByID(ctx, "stu-1")
		assert.True(t, s.IsAuthorized("GRAMMAR_L2"))

		unlocks := sink.ofType(event.TypeUnlock)
		require.Len(t, unlocks, 1)
		assert.Equal(t, "GRAMMAR_L2", unlocks[0].LevelID)
		assert.Equal(t, 60.0, unlocks[0].Details["score"])
		assert.Equal(t, "test-1", unlocks[0].Details["test_id"])
		assert.Equal(t, "GRAMMAR_L1", unlocks[0].Details["prerequisite"])
	})
}

func TestUpdateOnTestCompletion_FanOut(t *testing.T) {
	reg := registry.NewRegistry(
		[]registry.Module{{ID: "GRAMMAR"}},
		[]registry.Level{
			{ID: "GRAMMAR_L1", ModuleID: "GRAMMAR"},
			{ID: "GRAMMAR_L2A", ModuleID: "GRAMMAR", DependsOn: "GRAMMAR_L1", UnlockThreshold: 50},
			{ID: "GRAMMAR_L2B", ModuleID: "GRAMMAR", DependsOn: "GRAMMAR_L1", UnlockThreshold: 70},
		},
		nil,
	)
	ctx := context.Background()

	t.Run("score meets one of two dependents", func(t *testing.T) {
		repo := newFakeStudentRepo(studentWithLevels("stu-1", "GRAMMAR_L1"))
		m, _ := newTestManager(t, reg, repo)

		m.UpdateOnTestCompletion(ctx, "stu-1", "GRAMMAR_L1", 55, "test-1")

		s, _ := repo.GetByID(ctx, "stu-1")
		assert.True(t, s.IsAuthorized("GRAMMAR_L2A"))
		assert.False(t, s.IsAuthorized("GRAMMAR_L2B"))
	})

	t.Run("score meets both dependents in one call", func(t *testing.T) {
		repo := newFakeStudentRepo(studentWithLevels("stu-1", "GRAMMAR_L1"))
		m, sink := newTestManager(t, reg, repo)

		m.UpdateOnTestCompletion(ctx, "stu-1", "GRAMMAR_L1", 80, "test-1")

		s, _ := repo.GetByID(ctx, "stu-1")
		assert.True(t, s.IsAuthorized("GRAMMAR_L2A"))
		assert.True(t, s.IsAuthorized("GRAMMAR_L2B"))
		assert.Len(t, sink.ofType(event.TypeUnlock), 2)
	})

	t.Run("already authorized dependent is skipped", func(t *testing.T) {
		repo := newFakeStudentRepo(studentWithLevels("stu-1", "GRAMMAR_L1", "GRAMMAR_L2A"))
		m, sink := newTestManager(t, reg, repo)

		m.UpdateOnTestCompletion(ctx, "stu-1", "GRAMMAR_L1", 80, "test-1")

		unlocks := sink.ofType(event.TypeUnlock)
		require.Len(t, unlocks, 1)
		assert.Equal(t, "GRAMMAR_L2B", unlocks[0].LevelID)
	})
}

func TestUpdateOnTestCompletion_ProgressRollup(t *testing.T) {
	ctx := context.Background()
	repo := newFakeStudentRepo(studentWithLevels("stu-1", "GRAMMAR_L1"))
	m, _ := newTestManager(t, registry.Default(), repo)

	m.UpdateOnTestCompletion(ctx, "stu-1", "GRAMMAR_L1", 40, "test-1")
	m.UpdateOnTestCompletion(ctx, "stu-1", "GRAMMAR_L1", 90, "test-2")
	m.UpdateOnTestCompletion(ctx, "stu-1", "GRAMMAR_L1", 70, "test-3")

	s, _ := repo.GetByID(ctx, "stu-1")
	mp := s.ModuleProgress["GRAMMAR"]
	require.NotNil(t, mp)
	assert.Equal(t, 70.0, mp.LastScore)
	assert.Equal(t, 90.0, mp.HighestScore)
	assert.Equal(t, 200.0, mp.TotalScore)
	assert.Equal(t, 3, mp.AttemptsCount)

	// Every attempt leaves an unlock-history row for the completed level.
	assert.Len(t, s.UnlockHistory, 3)
	assert.Equal(t, "GRAMMAR_L1", s.UnlockHistory[0].LevelID)
}

func TestUpdateOnTestCompletion_UnknownLevelStillTracks(t *testing.T) {
	// Unregistered levels record progress under their inferred module.
	ctx := context.Background()
	repo := newFakeStudentRepo(studentWithLevels("stu-1"))
	m, _ := newTestManager(t, registry.Default(), repo)

	ok := m.UpdateOnTestCompletion(ctx, "stu-1", "LISTENING_EXTRA", 85, "test-1")
	assert.True(t, ok)

	s, _ := repo.GetByID(ctx, "stu-1")
	require.NotNil(t, s.ModuleProgress["LISTENING"])
	assert.Equal(t, 85.0, s.ModuleProgress["LISTENING"].LastScore)
}

func TestUpdateOnTestCompletion_MissingStudent(t *testing.T) {
	repo := newFakeStudentRepo()
	m, sink := newTestManager(t, registry.Default(), repo)

	ok := m.UpdateOnTestCompletion(context.Background(), "ghost", "GRAMMAR_L1", 90, "test-1")
	assert.False(t, ok)
	assert.Empty(t, sink.events)
}

func TestUpdateOnTestCompletion_UpdateFailure(t *testing.T) {
	repo := newFakeStudentRepo(studentWithLevels("stu-1", "GRAMMAR_L1"))
	repo.updateErr = errors.New("write concern failed")
	m, sink := newTestManager(t, registry.Default(), repo)

	ok := m.UpdateOnTestCompletion(context.Background(), "stu-1", "GRAMMAR_L1", 95, "test-1")
	assert.False(t, ok)

	// No unlock events on a failed write; one error event with context.
	assert.Empty(t, sink.ofType(event.TypeUnlock))
	errs := sink.ofType(event.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, "update_on_test_completion", errs[0].Details["operation"])
	assert.Contains(t, errs[0].Details["error"], "write concern failed")
}

func TestUpdateOnTestCompletion_LegacyEntriesRespected(t *testing.T) {
	ctx := context.Background()
	s := &student.Student{
		ID: "stu-1",
		AuthorizedLevels: []student.AuthorizationEntry{
			{LevelID: "GRAMMAR_L1", Legacy: true},
			{LevelID: "GRAMMAR_L2", Legacy: true},
		},
		HasAuthorizedField: true,
	}
	repo := newFakeStudentRepo(s)
	m, sink := newTestManager(t, registry.Default(), repo)

	// L2 is already held as a legacy entry; completing L1 must not re-grant.
	m.UpdateOnTestCompletion(ctx, "stu-1", "GRAMMAR_L1", 95, "test-1")
	assert.Empty(t, sink.ofType(event.TypeUnlock))

	got, _ := repo.GetByID(ctx, "stu-1")
	assert.Len(t, got.AuthorizedLevels, 2)
}

func TestUpdateOnTestCompletion_InvalidatesCache(t *testing.T) {
	repo := newFakeStudentRepo(studentWithLevels("stu-1", "VOCABULARY_L1"))
	m, _ := newTestManager(t, registry.Default(), repo)
	inv := &fakeInvalidator{}
	m.WithInsightsCache(inv)

	m.UpdateOnTestCompletion(context.Background(), "stu-1", "VOCABULARY_L1", 75, "test-1")

	require.Len(t, inv.ids, 1)
	assert.Equal(t, "stu-1", inv.ids[0])
}

func TestUpdateOnTestCompletion_EndToEnd(t *testing.T) {
	ctx := context.Background()
	repo := newFakeStudentRepo(studentWithLevels("stu-1", "VOCABULARY_L1"))
	m, sink := newTestManager(t, registry.Default(), repo)

	ok := m.UpdateOnTestCompletion(ctx, "stu-1", "VOCABULARY_L1", 75, "test-42")
	require.True(t, ok)

	s, _ := repo.GetByID(ctx, "stu-1")
	assert.True(t, s.IsAuthorized("VOCABULARY_L2"))

	var entry student.AuthorizationEntry
	for _, e := range s.AuthorizedLevels {
		if e.LevelID == "VOCABULARY_L2" {
			entry = e
		}
	}
	assert.Equal(t, student.AuthorizedByScore, entry.AuthorizedBy)
	require.NotNil(t, entry.ScoreUnlocked)
	assert.Equal(t, 75.0, *entry.ScoreUnlocked)
	assert.Equal(t, "test-42", entry.TestID)
	assert.Equal(t, testClock, entry.AuthorizedAt)

	require.Len(t, sink.ofType(event.TypeUnlock), 1)
}

func TestAdminAuthorizeModule(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown module", func(t *testing.T) {
		repo := newFakeStudentRepo(studentWithLevels("stu-1"))
		m, _ := newTestManager(t, registry.Default(), repo)

		ok, msg := m.AdminAuthorizeModule(ctx, "stu-1", "ALGEBRA", "admin-1", "typo")
		assert.False(t, ok)
		assert.Equal(t, "No levels found for this module", msg)
	})

	t.Run("grants every level with history and events", func(t *testing.T) {
		repo := newFakeStudentRepo(studentWithLevels("stu-1"))
		m, sink := newTestManager(t, registry.Default(), repo)

		ok, msg := m.AdminAuthorizeModule(ctx, "stu-1", "SPEAKING", "admin-1", "placement test")
		assert.True(t, ok)
		assert.Equal(t, "Module SPEAKING authorized successfully", msg)

		s, _ := repo.GetByID(ctx, "stu-1")
		for _, lvl := range []string{"SPEAKING_L1", "SPEAKING_L2", "SPEAKING_L3", "SPEAKING_L4"} {
			assert.True(t, s.IsAuthorized(lvl), lvl)
		}
		assert.Len(t, s.UnlockHistory, 4)
		assert.Equal(t, student.UnlockStatusAdminOverride, s.ModuleProgress["SPEAKING"].UnlockStatus)
		require.NotNil(t, s.ModuleProgress["SPEAKING"].AdminOverrideAt)

		auths := sink.ofType(event.TypeAuthorize)
		require.Len(t, auths, 4)
		assert.Equal(t, "SPEAKING", auths[0].Details["module_id"])
		assert.Equal(t, "admin-1", auths[0].Details["admin_user_id"])
	})

	t.Run("repeat call grants nothing new", func(t *testing.T) {
		repo := newFakeStudentRepo(studentWithLevels("stu-1"))
		m, sink := newTestManager(t, registry.Default(), repo)

		m.AdminAuthorizeModule(ctx, "stu-1", "SPEAKING", "admin-1", "first")
		ok, msg := m.AdminAuthorizeModule(ctx, "stu-1", "SPEAKING", "admin-2", "second")

		// Still reported as success; nothing duplicated.
		assert.True(t, ok)
		assert.Equal(t, "Module SPEAKING authorized successfully", msg)

		s, _ := repo.GetByID(ctx, "stu-1")
		assert.Len(t, s.AuthorizedLevels, 4)
		assert.Len(t, s.UnlockHistory, 4)
		assert.Len(t, sink.ofType(event.TypeAuthorize), 4)
	})

	t.Run("missing student", func(t *testing.T) {
		repo := newFakeStudentRepo()
		m, _ := newTestManager(t, registry.Default(), repo)

		ok, _ := m.AdminAuthorizeModule(ctx, "ghost", "SPEAKING", "admin-1", "")
		assert.False(t, ok)
	})
}

func TestAdminAuthorizeLevel(t *testing.T) {
	ctx := context.Background()

	t.Run("unregistered level", func(t *testing.T) {
		repo := newFakeStudentRepo(studentWithLevels("stu-1"))
		m, _ := newTestManager(t, registry.Default(), repo)

		ok, msg := m.AdminAuthorizeLevel(ctx, "stu-1", "GRAMMAR_L9", "admin-1", "")
		assert.False(t, ok)
		assert.Equal(t, "No such level is registered", msg)
	})

	t.Run("grants the level without monitoring events", func(t *testing.T) {
		repo := newFakeStudentRepo(studentWithLevels("stu-1"))
		m, sink := newTestManager(t, registry.Default(), repo)

		ok, msg := m.AdminAuthorizeLevel(ctx, "stu-1", "READING_L3", "admin-1", "skip ahead")
		assert.True(t, ok)
		assert.Equal(t, "Level READING_L3 authorized successfully", msg)

		s, _ := repo.GetByID(ctx, "stu-1")
		assert.True(t, s.IsAuthorized("READING_L3"))
		require.Len(t, s.UnlockHistory, 1)
		assert.Equal(t, "admin-1", s.UnlockHistory[0].UnlockedByUser)
		assert.Equal(t, student.UnlockStatusAdminOverride, s.ModuleProgress["READING"].UnlockStatus)

		// The single-level path stays silent on the event log.
		assert.Empty(t, sink.events)
	})
}

func TestAdminLockModule(t *testing.T) {
	ctx := context.Background()

	t.Run("removes authorizations, keeps history", func(t *testing.T) {
		repo := newFakeStudentRepo(studentWithLevels("stu-1", "GRAMMAR_L1", "GRAMMAR_L2", "READING_L1"))
		m, _ := newTestManager(t, registry.Default(), repo)
		s, _ := repo.GetByID(ctx, "stu-1")
		s.AppendUnlockHistory(student.UnlockHistoryEntry{LevelID: "GRAMMAR_L2", UnlockedAt: testClock.Add(-time.Hour)})

		ok, msg := m.AdminLockModule(ctx, "stu-1", "GRAMMAR", "admin-1", "integrity review")
		assert.True(t, ok)
		assert.Equal(t, "Module GRAMMAR locked successfully", msg)

		s, _ = repo.GetByID(ctx, "stu-1")
		assert.False(t, s.IsAuthorized("GRAMMAR_L1"))
		assert.False(t, s.IsAuthorized("GRAMMAR_L2"))
		assert.True(t, s.IsAuthorized("READING_L1"))

		// Unlock history survives the lock; the lock itself is audited.
		assert.Len(t, s.UnlockHistory, 1)
		require.Len(t, s.LockHistory, 1)
		assert.Equal(t, "GRAMMAR", s.LockHistory[0].ModuleID)
		assert.Equal(t, "integrity review", s.LockHistory[0].Reason)
		assert.Equal(t, student.UnlockStatusLocked, s.ModuleProgress["GRAMMAR"].UnlockStatus)
	})

	t.Run("unknown module", func(t *testing.T) {
		repo := newFakeStudentRepo(studentWithLevels("stu-1"))
		m, _ := newTestManager(t, registry.Default(), repo)

		ok, msg := m.AdminLockModule(ctx, "stu-1", "ALGEBRA", "admin-1", "")
		assert.False(t, ok)
		assert.Equal(t, "No levels found for this module", msg)
	})

	t.Run("lock then re-unlock by score", func(t *testing.T) {
		repo := newFakeStudentRepo(studentWithLevels("stu-1", "GRAMMAR_L1", "GRAMMAR_L2"))
		m, _ := newTestManager(t, registry.Default(), repo)

		m.AdminLockModule(ctx, "stu-1", "GRAMMAR", "admin-1", "review")
		m.UpdateOnTestCompletion(ctx, "stu-1", "GRAMMAR_L1", 80, "test-1")

		// GRAMMAR_L1 itself is not re-granted (nothing depends on scoring it
		// except its dependents), but L2 unlocks again from the fresh score.
		s, _ := repo.GetByID(ctx, "stu-1")
		assert.False(t, s.IsAuthorized("GRAMMAR_L1"))
		assert.True(t, s.IsAuthorized("GRAMMAR_L2"))
	})
}
