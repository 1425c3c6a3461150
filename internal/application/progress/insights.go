package progress

import (
	"context"
	"sort"
	"time"

	"github.com/versant-edu/versant-hub/internal/domain/attempt"
	"github.com/versant-edu/versant-hub/internal/domain/registry"
	"github.com/versant-edu/versant-hub/internal/domain/student"
	"github.com/versant-edu/versant-hub/pkg/logger"
)

// Recommendation priorities and actions for the advisory unlock suggestions.
const (
	ActionAutoUnlock    = "auto_unlock"
	ActionAdminOverride = "admin_override"

	PriorityHigh   = "high"
	PriorityMedium = "medium"
)

// TestBreakdown aggregates one test's attempts within a module and mode.
type TestBreakdown struct {
	BestScore   float64    `json:"best_score"`
	Attempts    int        `json:"attempts"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
}

// ModeInsights aggregates either the practice or the online attempts of one
// module.
type ModeInsights struct {
	TotalAttempts int                       `json:"total_attempts"`
	DistinctTests int                       `json:"distinct_tests"`
	AverageScore  float64                   `json:"average_score"`
	HighestScore  float64                   `json:"highest_score"`
	LastAttempt   *time.Time                `json:"last_attempt,omitempty"`
	Tests         map[string]*TestBreakdown `json:"tests,omitempty"`
}

// ModuleInsights is the per-module slice of the report.
type ModuleInsights struct {
	ModuleID string       `json:"module_id"`
	Practice ModeInsights `json:"practice"`
	Online   ModeInsights `json:"online"`

	// AverageScore is the combined mean over all scored attempts in the
	// module, used by the overall average and the recommendations.
	AverageScore float64 `json:"average_score"`

	CurrentLevelID string `json:"current_level_id,omitempty"`
	NextLevelID    string `json:"next_level_id,omitempty"`
	UnlockedLevels int    `json:"unlocked_levels"`

	Progress *student.ModuleProgress `json:"progress,omitempty"`
}

// Recommendation is an advisory unlock suggestion. The engine never acts on
// these.
type Recommendation struct {
	ModuleID     string  `json:"module_id"`
	LevelID      string  `json:"level_id"`
	Action       string  `json:"action"`
	Priority     string  `json:"priority"`
	CurrentScore float64 `json:"current_score"`
}

// AdminAction is one admin-attributable row of the unlock/lock histories.
type AdminAction struct {
	Action   string    `json:"action"` // "unlock" or "lock"
	LevelID  string    `json:"level_id,omitempty"`
	ModuleID string    `json:"module_id,omitempty"`
	At       time.Time `json:"at"`
	ByUser   string    `json:"by_user"`
	Reason   string    `json:"reason,omitempty"`
}

// AssignedExam is the informational exam-assignment listing.
type AssignedExam struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ModuleID    string    `json:"module_id,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at,omitempty"`
}

// Insights is the full per-student report for admin dashboards.
type Insights struct {
	StudentID string `json:"student_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`

	Modules map[string]*ModuleInsights `json:"modules"`

	TotalAttempts       int     `json:"total_attempts"`
	OverallAverageScore float64 `json:"overall_average_score"`
	ModulesAttempted    int     `json:"modules_attempted"`
	TotalUnlockedLevels int     `json:"total_unlocked_levels"`

	AssignedExams     []AssignedExam `json:"assigned_exams"`
	AssignedExamCount int            `json:"assigned_exam_count"`

	Recommendations []Recommendation `json:"recommendations"`
	AdminActions    []AdminAction    `json:"admin_actions"`

	GeneratedAt time.Time `json:"generated_at"`
}

// GetStudentDetailedInsights builds the dashboard report for one student.
// Returns nil when the student does not exist or storage fails; the caller
// translates nil into a not-found response.
func (m *Manager) GetStudentDetailedInsights(ctx context.Context, studentID string) *Insights {
	log := m.log.With(logger.StudentID(studentID), logger.Operation("detailed_insights"))

	s, err := m.students.GetByID(ctx, studentID)
	if err != nil {
		log.Warn("insights unavailable", logger.Err(err))
		return nil
	}

	attempts, err := m.attempts.FindByIdentity(ctx, s.Identities())
	if err != nil {
		log.Error("insights aggregation failed", logger.Err(err))
		return nil
	}

	authorized := s.AuthorizedLevelIDs()

	report := &Insights{
		StudentID:   s.ID,
		Name:        s.Name,
		Email:       s.Email,
		Modules:     make(map[string]*ModuleInsights, len(registry.VersantModuleIDs)),
		GeneratedAt: m.now(),
	}

	byModule := groupByModule(m.registry, attempts)

	var moduleAverages []float64
	for _, moduleID := range registry.VersantModuleIDs {
		mi := m.buildModuleInsights(s, moduleID, byModule[moduleID], authorized)
		report.Modules[moduleID] = mi

		report.TotalAttempts += mi.Practice.TotalAttempts + mi.Online.TotalAttempts
		report.TotalUnlockedLevels += mi.UnlockedLevels
		if mi.Practice.DistinctTests+mi.Online.DistinctTests > 0 {
			report.ModulesAttempted++
		}
		if mi.AverageScore > 0 {
			moduleAverages = append(moduleAverages, mi.AverageScore)
		}

		if rec, ok := recommendFor(mi); ok {
			report.Recommendations = append(report.Recommendations, rec)
		}
	}

	// Overall average is the mean of the modules' nonzero averages, not a
	// flat mean over all attempts.
	if len(moduleAverages) > 0 {
		var sum float64
		for _, avg := range moduleAverages {
			sum += avg
		}
		report.OverallAverageScore = sum / float64(len(moduleAverages))
	}

	report.AdminActions = adminActionHistory(s, 10)

	// Exam assignments are informational; a lookup failure degrades to an
	// empty listing rather than failing the report.
	if exams, err := m.exams.ListAssignedTo(ctx, s); err != nil {
		log.Warn("assigned exam lookup failed", logger.Err(err))
	} else {
		for _, e := range exams {
			report.AssignedExams = append(report.AssignedExams, AssignedExam{
				ID:          e.ID,
				Title:       e.Title,
				ModuleID:    e.ModuleID,
				ScheduledAt: e.ScheduledAt,
			})
		}
		report.AssignedExamCount = len(report.AssignedExams)
	}

	return report
}

func (m *Manager) buildModuleInsights(s *student.Student, moduleID string, attempts []attempt.Attempt, authorized map[string]bool) *ModuleInsights {
	mi := &ModuleInsights{ModuleID: moduleID}

	var practice, online []attempt.Attempt
	for _, a := range attempts {
		if a.Type() == attempt.TypeOnline {
			online = append(online, a)
		} else {
			practice = append(practice, a)
		}
	}
	mi.Practice = aggregateMode(practice)
	mi.Online = aggregateMode(online)
	mi.AverageScore = combinedAverage(attempts)

	if current, ok := m.registry.CurrentUnlockedLevel(moduleID, authorized); ok {
		mi.CurrentLevelID = current.ID
	}
	if next, ok := m.registry.NextCandidateLevel(moduleID, authorized); ok {
		mi.NextLevelID = next.ID
	}
	for _, lvl := range m.registry.LevelsByModule(moduleID) {
		if authorized[lvl.ID] {
			mi.UnlockedLevels++
		}
	}

	if s.ModuleProgress != nil {
		mi.Progress = s.ModuleProgress[moduleID]
	}

	return mi
}

// aggregateMode folds one mode's attempts. Averages ignore zero scores: an
// attempt whose score cannot be parsed extracts as 0, so zero and "missing"
// are indistinguishable in the source data.
func aggregateMode(attempts []attempt.Attempt) ModeInsights {
	mi := ModeInsights{}
	if len(attempts) == 0 {
		return mi
	}

	mi.Tests = make(map[string]*TestBreakdown)
	var scoreSum float64
	var scored int

	for _, a := range attempts {
		mi.TotalAttempts++

		score := a.Score()
		if score > 0 {
			scoreSum += score
			scored++
		}
		if score > mi.HighestScore {
			mi.HighestScore = score
		}

		if !a.AttemptedAt.IsZero() {
			if mi.LastAttempt == nil || a.AttemptedAt.After(*mi.LastAttempt) {
				t := a.AttemptedAt
				mi.LastAttempt = &t
			}
		}

		testID := a.TestID
		if testID == "" {
			testID = a.ID
		}
		tb, ok := mi.Tests[testID]
		if !ok {
			tb = &TestBreakdown{}
			mi.Tests[testID] = tb
		}
		tb.Attempts++
		if score > tb.BestScore {
			tb.BestScore = score
		}
		if !a.AttemptedAt.IsZero() {
			if tb.LastAttempt == nil || a.AttemptedAt.After(*tb.LastAttempt) {
				t := a.AttemptedAt
				tb.LastAttempt = &t
			}
		}
	}

	mi.DistinctTests = len(mi.Tests)
	if scored > 0 {
		mi.AverageScore = scoreSum / float64(scored)
	}
	return mi
}

func combinedAverage(attempts []attempt.Attempt) float64 {
	var sum float64
	var scored int
	for _, a := range attempts {
		if score := a.Score(); score > 0 {
			sum += score
			scored++
		}
	}
	if scored == 0 {
		return 0
	}
	return sum / float64(scored)
}

// groupByModule buckets attempts by module, inferring the module from the
// level ID when the document lacks a module field.
func groupByModule(reg *registry.Registry, attempts []attempt.Attempt) map[string][]attempt.Attempt {
	out := make(map[string][]attempt.Attempt)
	for _, a := range attempts {
		moduleID := a.ModuleID
		if moduleID == "" && a.LevelID != "" {
			moduleID = reg.ModuleOfLevel(a.LevelID)
		}
		if moduleID == "" {
			continue
		}
		out[moduleID] = append(out[moduleID], a)
	}
	return out
}

// recommendFor produces the heuristic unlock suggestion for a module:
// score >= 60 with a locked next level suggests auto_unlock (high priority);
// 30-60 suggests an admin_override for human judgment (medium priority).
func recommendFor(mi *ModuleInsights) (Recommendation, bool) {
	if mi.NextLevelID == "" {
		return Recommendation{}, false
	}
	switch {
	case mi.AverageScore >= 60:
		return Recommendation{
			ModuleID:     mi.ModuleID,
			LevelID:      mi.NextLevelID,
			Action:       ActionAutoUnlock,
			Priority:     PriorityHigh,
			CurrentScore: mi.AverageScore,
		}, true
	case mi.AverageScore >= 30:
		return Recommendation{
			ModuleID:     mi.ModuleID,
			LevelID:      mi.NextLevelID,
			Action:       ActionAdminOverride,
			Priority:     PriorityMedium,
			CurrentScore: mi.AverageScore,
		}, true
	}
	return Recommendation{}, false
}

// adminActionHistory merges admin-attributable unlock and lock rows,
// chronologically descending, capped to limit.
func adminActionHistory(s *student.Student, limit int) []AdminAction {
	var actions []AdminAction

	for _, u := range s.UnlockHistory {
		if u.UnlockedBy != student.AuthorizedByAdmin {
			continue
		}
		actions = append(actions, AdminAction{
			Action:  "unlock",
			LevelID: u.LevelID,
			At:      u.UnlockedAt,
			ByUser:  u.UnlockedByUser,
			Reason:  u.Reason,
		})
	}
	for _, l := range s.LockHistory {
		actions = append(actions, AdminAction{
			Action:   "lock",
			ModuleID: l.ModuleID,
			At:       l.LockedAt,
			ByUser:   l.LockedByUser,
			Reason:   l.Reason,
		})
	}

	sort.Slice(actions, func(i, j int) bool {
		return actions[i].At.After(actions[j].At)
	})
	if len(actions) > limit {
		actions = actions[:limit]
	}
	return actions
}
