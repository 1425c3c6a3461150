package progress

import (
	"context"
	"sync"

	"github.com/versant-edu/versant-hub/internal/domain/attempt"
	"github.com/versant-edu/versant-hub/internal/domain/event"
	"github.com/versant-edu/versant-hub/internal/domain/exam"
	"github.com/versant-edu/versant-hub/internal/domain/shared"
	"github.com/versant-edu/versant-hub/internal/domain/student"
)

// In-memory collaborators shared by the manager and insights tests.

type fakeStudentRepo struct {
	mu       sync.Mutex
	students map[string]*student.Student

	getErr    error
	updateErr error
	updates   int
}

func newFakeStudentRepo(students ...*student.Student) *fakeStudentRepo {
	r := &fakeStudentRepo{students: make(map[string]*student.Student)}
	for _, s := range students {
		r.students[s.ID] = s
	}
	return r
}

func (r *fakeStudentRepo) GetByID(_ context.Context, id string) (*student.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	s, ok := r.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return s, nil
}

func (r *fakeStudentRepo) Create(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.students[s.ID]; ok {
		return shared.ErrStudentAlreadyExists
	}
	r.students[s.ID] = s
	return nil
}

func (r *fakeStudentRepo) Update(_ context.Context, s *student.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.students[s.ID]; !ok {
		return shared.ErrStudentNotFound
	}
	r.students[s.ID] = s
	r.updates++
	return nil
}

func (r *fakeStudentRepo) CountAll(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.students)), nil
}

func (r *fakeStudentRepo) CountWithProgress(context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.students {
		if len(s.ModuleProgress) > 0 {
			n++
		}
	}
	return n, nil
}

func (r *fakeStudentRepo) ListProgressSnapshots(context.Context) ([]student.ProgressSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []student.ProgressSnapshot
	for _, s := range r.students {
		snap := student.ProgressSnapshot{
			StudentID:          s.ID,
			HasAuthorizedField: s.HasAuthorizedField,
		}
		for _, e := range s.AuthorizedLevels {
			snap.AuthorizedLevelIDs = append(snap.AuthorizedLevelIDs, e.LevelID)
		}
		for moduleID := range s.ModuleProgress {
			snap.ProgressModuleIDs = append(snap.ProgressModuleIDs, moduleID)
		}
		out = append(out, snap)
	}
	return out, nil
}

type fakeAttemptRepo struct {
	attempts []attempt.Attempt
	err      error
}

func (r *fakeAttemptRepo) FindByIdentity(_ context.Context, ids student.IdentitySet) ([]attempt.Attempt, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []attempt.Attempt
	for _, a := range r.attempts {
		if ids.ContainsAny(a.IdentityValues()...) {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeExamRepo struct {
	exams []exam.Exam
	err   error
}

func (r *fakeExamRepo) ListAssignedTo(_ context.Context, s *student.Student) ([]exam.Exam, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []exam.Exam
	for _, e := range r.exams {
		if e.IsAssignedTo(s) {
			out = append(out, e)
		}
	}
	return out, nil
}

type sinkEvent struct {
	Type      event.Type
	StudentID string
	LevelID   string
	Details   map[string]any
}

type fakeSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *fakeSink) LogProgressEvent(_ context.Context, t event.Type, studentID, levelID string, details map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{Type: t, StudentID: studentID, LevelID: levelID, Details: details})
}

func (s *fakeSink) ofType(t event.Type) []sinkEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkEvent
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, studentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, studentID)
}
