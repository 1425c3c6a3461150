package student

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorize_Idempotent(t *testing.T) {
	s := &Student{ID: "stu-1"}
	now := time.Now().UTC()

	added := s.Authorize(AuthorizationEntry{LevelID: "GRAMMAR_L1", AuthorizedBy: AuthorizedByScore, AuthorizedAt: now})
	assert.True(t, added)
	assert.True(t, s.HasAuthorizedField)

	// Second grant for the same level is a no-op regardless of source.
	added = s.Authorize(AuthorizationEntry{LevelID: "GRAMMAR_L1", AuthorizedBy: AuthorizedByAdmin, AuthorizedAt: now})
	assert.False(t, added)
	assert.Len(t, s.AuthorizedLevels, 1)
	assert.Equal(t, AuthorizedByScore, s.AuthorizedLevels[0].AuthorizedBy)
}

func TestAuthorize_LegacyEntryBlocksDuplicate(t *testing.T) {
	s := &Student{
		ID:               "stu-1",
		AuthorizedLevels: []AuthorizationEntry{{LevelID: "GRAMMAR_L1", Legacy: true}},
	}

	added := s.Authorize(AuthorizationEntry{LevelID: "GRAMMAR_L1", AuthorizedBy: AuthorizedByScore})
	assert.False(t, added)
	assert.Len(t, s.AuthorizedLevels, 1)
}

func TestRemoveAuthorizations(t *testing.T) {
	s := &Student{
		ID: "stu-1",
		AuthorizedLevels: []AuthorizationEntry{
			{LevelID: "GRAMMAR_L1", Legacy: true},
			{LevelID: "GRAMMAR_L2"},
			{LevelID: "READING_L1"},
		},
	}

	removed := s.RemoveAuthorizations(map[string]bool{"GRAMMAR_L1": true, "GRAMMAR_L2": true})
	assert.Equal(t, 2, removed)
	require.Len(t, s.AuthorizedLevels, 1)
	assert.Equal(t, "READING_L1", s.AuthorizedLevels[0].LevelID)

	// Removing from an empty set is harmless.
	assert.Equal(t, 0, s.RemoveAuthorizations(map[string]bool{"GRAMMAR_L1": true}))
}

func TestRecordAttempt_Rollup(t *testing.T) {
	s := &Student{ID: "stu-1"}
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	s.RecordAttempt("GRAMMAR", 40, base)
	s.RecordAttempt("GRAMMAR", 90, base.Add(time.Hour))
	s.RecordAttempt("GRAMMAR", 70, base.Add(2*time.Hour))

	mp := s.ModuleProgress["GRAMMAR"]
	require.NotNil(t, mp)
	assert.Equal(t, 70.0, mp.LastScore)
	assert.Equal(t, 90.0, mp.HighestScore)
	assert.Equal(t, 200.0, mp.TotalScore)
	assert.Equal(t, 3, mp.AttemptsCount)
	assert.Equal(t, base.Add(2*time.Hour), mp.LastAttempt)
	assert.Equal(t, UnlockStatusScoreBased, mp.UnlockStatus)
}

func TestRecordAttempt_PreservesUnlockStatus(t *testing.T) {
	s := &Student{ID: "stu-1"}
	now := time.Now().UTC()

	s.SetUnlockStatus("GRAMMAR", UnlockStatusAdminOverride, now)
	s.RecordAttempt("GRAMMAR", 50, now)

	assert.Equal(t, UnlockStatusAdminOverride, s.ModuleProgress["GRAMMAR"].UnlockStatus)
	require.NotNil(t, s.ModuleProgress["GRAMMAR"].AdminOverrideAt)
}

func TestSetUnlockStatus_Locked(t *testing.T) {
	s := &Student{ID: "stu-1"}
	now := time.Now().UTC()

	s.SetUnlockStatus("READING", UnlockStatusLocked, now)

	mp := s.ModuleProgress["READING"]
	require.NotNil(t, mp)
	assert.Equal(t, UnlockStatusLocked, mp.UnlockStatus)
	require.NotNil(t, mp.LockedAt)
	assert.Equal(t, now, *mp.LockedAt)
	assert.Nil(t, mp.AdminOverrideAt)
}

func TestAppendUnlockHistory_CapKeepsNewest(t *testing.T) {
	s := &Student{ID: "stu-1"}
	now := time.Now().UTC()

	for i := 0; i < MaxUnlockHistory+50; i++ {
		s.AppendUnlockHistory(UnlockHistoryEntry{
			LevelID:    fmt.Sprintf("GRAMMAR_L%d", i),
			UnlockedAt: now.Add(time.Duration(i) * time.Minute),
			UnlockedBy: AuthorizedByScore,
		})
	}

	require.Len(t, s.UnlockHistory, MaxUnlockHistory)
	// The oldest 50 rows were evicted; the newest survives at the tail.
	assert.Equal(t, "GRAMMAR_L50", s.UnlockHistory[0].LevelID)
	assert.Equal(t, fmt.Sprintf("GRAMMAR_L%d", MaxUnlockHistory+49), s.UnlockHistory[MaxUnlockHistory-1].LevelID)
}

func TestAppendLockHistory_Cap(t *testing.T) {
	s := &Student{ID: "stu-1"}
	now := time.Now().UTC()

	for i := 0; i < MaxLockHistory+10; i++ {
		s.AppendLockHistory(LockHistoryEntry{
			ModuleID: fmt.Sprintf("MOD%d", i),
			LockedAt: now,
		})
	}

	require.Len(t, s.LockHistory, MaxLockHistory)
	assert.Equal(t, "MOD10", s.LockHistory[0].ModuleID)
}

func TestAuthorizedLevelIDs_MixedShapes(t *testing.T) {
	s := &Student{
		AuthorizedLevels: []AuthorizationEntry{
			{LevelID: "GRAMMAR_L1", Legacy: true},
			{LevelID: "GRAMMAR_L2", AuthorizedBy: AuthorizedByScore},
			{LevelID: ""},
		},
	}

	set := s.AuthorizedLevelIDs()
	assert.Len(t, set, 2)
	assert.True(t, set["GRAMMAR_L1"])
	assert.True(t, set["GRAMMAR_L2"])
}
