// Package monitoring implements the progress event log and the health,
// analytics, and integrity queries over it. Event logging is doubly isolated:
// a failure to record an event never affects the operation being logged.
package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/versant-edu/versant-hub/internal/domain/event"
	"github.com/versant-edu/versant-hub/internal/domain/registry"
	"github.com/versant-edu/versant-hub/internal/domain/student"
	"github.com/versant-edu/versant-hub/pkg/logger"
	"github.com/versant-edu/versant-hub/pkg/timeutil"
)

// Health status values. The error threshold is fixed, not configurable.
const (
	StatusHealthy     = "healthy"
	StatusWarning     = "warning"
	StatusIssuesFound = "issues_found"

	healthErrorThreshold = 5
	recentErrorLimit     = 10
)

// DefaultRetentionDays is how long events are kept by the retention sweep.
const DefaultRetentionDays = 90

// Monitor owns the progress event log and its derived views.
type Monitor struct {
	events   event.Repository
	students student.Repository
	log      *logger.Logger
	now      func() time.Time
}

// NewMonitor creates a Monitor.
func NewMonitor(events event.Repository, students student.Repository, log *logger.Logger) *Monitor {
	return &Monitor{
		events:   events,
		students: students,
		log:      log.With(logger.Component("progress_monitor")),
		now:      timeutil.Now,
	}
}

// WithClock overrides the monitor's clock. Used by tests.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// LogProgressEvent appends one event to the log, fire-and-forget. Storage
// failures are logged and swallowed.
func (m *Monitor) LogProgressEvent(ctx context.Context, t event.Type, studentID, levelID string, details map[string]any) {
	ev := &event.ProgressEvent{
		ID:        uuid.NewString(),
		Type:      t,
		StudentID: studentID,
		LevelID:   levelID,
		Timestamp: m.now(),
		Details:   details,
		Source:    event.SourceProgressSystem,
	}
	if err := m.events.Append(ctx, ev); err != nil {
		m.log.Warn("progress event dropped",
			logger.EventType(string(t)), logger.StudentID(studentID), logger.Err(err))
	}
}

// HealthMetrics is the 24-hour system health snapshot.
type HealthMetrics struct {
	EventsLast24h        map[string]int64      `json:"events_last_24h"`
	TotalStudents        int64                 `json:"total_students"`
	StudentsWithProgress int64                 `json:"students_with_progress"`
	RecentErrors         []event.ProgressEvent `json:"recent_errors"`
	HealthStatus         string                `json:"health_status"`
	GeneratedAt          time.Time             `json:"generated_at"`
}

// SystemHealthMetrics counts events per type over the last 24 hours, student
// coverage, and the most recent error events. Returns nil when the
// underlying queries fail.
func (m *Monitor) SystemHealthMetrics(ctx context.Context) *HealthMetrics {
	since := m.now().Add(-24 * time.Hour)

	counts, err := m.events.CountByTypeSince(ctx, since)
	if err != nil {
		m.log.Error("health metrics query failed", logger.Err(err))
		return nil
	}

	total, err := m.students.CountAll(ctx)
	if err != nil {
		m.log.Error("health metrics query failed", logger.Err(err))
		return nil
	}
	withProgress, err := m.students.CountWithProgress(ctx)
	if err != nil {
		m.log.Error("health metrics query failed", logger.Err(err))
		return nil
	}

	recentErrors, err := m.events.RecentErrors(ctx, recentErrorLimit)
	if err != nil {
		m.log.Error("health metrics query failed", logger.Err(err))
		return nil
	}

	metrics := &HealthMetrics{
		EventsLast24h:        make(map[string]int64, len(counts)),
		TotalStudents:        total,
		StudentsWithProgress: withProgress,
		RecentErrors:         recentErrors,
		HealthStatus:         StatusHealthy,
		GeneratedAt:          m.now(),
	}
	for t, n := range counts {
		metrics.EventsLast24h[string(t)] = n
	}
	if counts[event.TypeError] >= healthErrorThreshold {
		metrics.HealthStatus = StatusWarning
	}

	return metrics
}

// ProgressAnalytics summarizes the event log over a trailing window.
type ProgressAnalytics struct {
	WindowDays          int            `json:"window_days"`
	TotalEvents         int            `json:"total_events"`
	UnlockEvents        int            `json:"unlock_events"`
	AdminAuthorizations int            `json:"admin_authorizations"`
	UnlocksByModule     map[string]int `json:"unlocks_by_module"`
	EventsByDay         map[string]int `json:"events_by_day"`
	AutoUnlockRate      float64        `json:"auto_unlock_rate"`
	GeneratedAt         time.Time      `json:"generated_at"`
}

// StudentProgressAnalytics aggregates events over the trailing window (days,
// default 30 when non-positive). The module histogram infers the module from
// the level ID prefix. Returns nil when the event query fails.
func (m *Monitor) StudentProgressAnalytics(ctx context.Context, days int) *ProgressAnalytics {
	if days <= 0 {
		days = 30
	}
	since := m.now().AddDate(0, 0, -days)

	events, err := m.events.ListSince(ctx, since)
	if err != nil {
		m.log.Error("analytics query failed", logger.Err(err))
		return nil
	}

	analytics := &ProgressAnalytics{
		WindowDays:      days,
		UnlocksByModule: make(map[string]int),
		EventsByDay:     make(map[string]int),
		GeneratedAt:     m.now(),
	}

	for _, ev := range events {
		analytics.TotalEvents++
		analytics.EventsByDay[timeutil.DayKey(ev.Timestamp)]++

		switch ev.Type {
		case event.TypeUnlock:
			analytics.UnlockEvents++
			if ev.LevelID != "" {
				analytics.UnlocksByModule[registry.InferModuleID(ev.LevelID)]++
			}
		case event.TypeAuthorize:
			analytics.AdminAuthorizations++
		}
	}

	// Guard the divide-by-zero on an empty window.
	total := analytics.TotalEvents
	if total < 1 {
		total = 1
	}
	analytics.AutoUnlockRate = float64(analytics.UnlockEvents) / float64(total) * 100

	return analytics
}

// IntegrityIssue is one inconsistency found by the audit.
type IntegrityIssue struct {
	StudentID string `json:"student_id"`
	IssueType string `json:"issue_type"` // "orphaned_level" or "missing_authorized_levels"
	LevelID   string `json:"level_id,omitempty"`
	ModuleID  string `json:"module_id,omitempty"`
	Detail    string `json:"detail"`
}

// IntegrityReport is the result of the read-only audit. It repairs nothing.
type IntegrityReport struct {
	Status          string           `json:"status"`
	StudentsChecked int              `json:"students_checked"`
	Issues          []IntegrityIssue `json:"issues"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// ValidateStudentProgressIntegrity scans for authorized levels whose module
// carries no progress entry, and for students with progress but no
// authorized_levels field at all. Returns nil when the scan fails.
func (m *Monitor) ValidateStudentProgressIntegrity(ctx context.Context) *IntegrityReport {
	snapshots, err := m.students.ListProgressSnapshots(ctx)
	if err != nil {
		m.log.Error("integrity scan failed", logger.Err(err))
		return nil
	}

	report := &IntegrityReport{
		Status:      StatusHealthy,
		GeneratedAt: m.now(),
	}

	for _, snap := range snapshots {
		report.StudentsChecked++

		progressModules := make(map[string]bool, len(snap.ProgressModuleIDs))
		for _, id := range snap.ProgressModuleIDs {
			progressModules[id] = true
		}

		for _, levelID := range snap.AuthorizedLevelIDs {
			moduleID := registry.InferModuleID(levelID)
			if !progressModules[moduleID] {
				report.Issues = append(report.Issues, IntegrityIssue{
					StudentID: snap.StudentID,
					IssueType: "orphaned_level",
					LevelID:   levelID,
					ModuleID:  moduleID,
					Detail:    "authorized level has no module_progress entry for its module",
				})
			}
		}

		if len(snap.ProgressModuleIDs) > 0 && !snap.HasAuthorizedField {
			report.Issues = append(report.Issues, IntegrityIssue{
				StudentID: snap.StudentID,
				IssueType: "missing_authorized_levels",
				Detail:    "student has module_progress but no authorized_levels field",
			})
		}
	}

	if len(report.Issues) > 0 {
		report.Status = StatusIssuesFound
	}

	return report
}

// CleanupOldEvents deletes events older than the retention cutoff and
// returns how many were removed (0 on failure, logged).
func (m *Monitor) CleanupOldEvents(ctx context.Context, daysToKeep int) int64 {
	if daysToKeep <= 0 {
		daysToKeep = DefaultRetentionDays
	}
	cutoff := m.now().AddDate(0, 0, -daysToKeep)

	deleted, err := m.events.DeleteBefore(ctx, cutoff)
	if err != nil {
		m.log.Error("event cleanup failed", logger.Err(err))
		return 0
	}

	m.log.Info("event retention sweep completed",
		logger.Int64("deleted", deleted), logger.Int("days_kept", daysToKeep))
	return deleted
}
