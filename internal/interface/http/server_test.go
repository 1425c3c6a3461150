package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versant-edu/versant-hub/internal/application/progress"
	"github.com/versant-edu/versant-hub/internal/domain/attempt"
	"github.com/versant-edu/versant-hub/internal/domain/event"
	"github.com/versant-edu/versant-hub/internal/domain/exam"
	"github.com/versant-edu/versant-hub/internal/domain/registry"
	"github.com/versant-edu/versant-hub/internal/domain/shared"
	"github.com/versant-edu/versant-hub/internal/domain/student"
	"github.com/versant-edu/versant-hub/pkg/logger"
)

type stubStudents struct {
	students map[string]*student.Student
}

func (r *stubStudents) GetByID(_ context.Context, id string) (*student.Student, error) {
	s, ok := r.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return s, nil
}

func (r *stubStudents) Create(_ context.Context, s *student.Student) error {
	r.students[s.ID] = s
	return nil
}

func (r *stubStudents) Update(_ context.Context, s *student.Student) error {
	if _, ok := r.students[s.ID]; !ok {
		return shared.ErrStudentNotFound
	}
	r.students[s.ID] = s
	return nil
}

func (r *stubStudents) CountAll(context.Context) (int64, error) { return 0, nil }

func (r *stubStudents) CountWithProgress(context.Context) (int64, error) { return 0, nil }

func (r *stubStudents) ListProgressSnapshots(context.Context) ([]student.ProgressSnapshot, error) {
	return nil, nil
}

type stubAttempts struct{}

func (stubAttempts) FindByIdentity(context.Context, student.IdentitySet) ([]attempt.Attempt, error) {
	return nil, nil
}

type stubExams struct{}

func (stubExams) ListAssignedTo(context.Context, *student.Student) ([]exam.Exam, error) {
	return nil, nil
}

type noopSink struct{}

func (noopSink) LogProgressEvent(context.Context, event.Type, string, string, map[string]any) {}

type stubHealthChecker struct{ err error }

func (c stubHealthChecker) Ping(context.Context) error { return c.err }

type stubInsightsStore struct {
	cached *progress.Insights
	sets   int
}

func (s *stubInsightsStore) Get(context.Context, string) (*progress.Insights, error) {
	return s.cached, nil
}

func (s *stubInsightsStore) Set(_ context.Context, _ string, ins *progress.Insights) error {
	s.sets++
	s.cached = ins
	return nil
}

func newTestServer(t *testing.T, mutate func(*Config, *Dependencies)) (*Server, *stubStudents) {
	t.Helper()

	students := &stubStudents{students: map[string]*student.Student{
		"stu-1": {ID: "stu-1", Name: "Aruzhan Serik", Email: "aruzhan@versant.edu"},
	}}

	mgr := progress.NewManager(students, stubAttempts{}, stubExams{}, registry.Default(), noopSink{}, logger.Default())

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	deps := Dependencies{
		Progress: mgr,
		Logger:   logger.Default(),
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	return NewServer(cfg, deps), students
}

func (s *Server) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) JSONResponse {
	t.Helper()
	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, path := range []string{"/health", "/healthz", "/live"} {
		rec := srv.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	// No health checker configured: ready always succeeds.
	rec := srv.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReady_BackingStoreDown(t *testing.T) {
	srv, _ := newTestServer(t, func(_ *Config, deps *Dependencies) {
		deps.HealthChecker = stubHealthChecker{err: errors.New("no reachable servers")}
	})

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "not_ready", resp.Error.Code)
}

func TestTestComplete(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		rec := srv.do(httptest.NewRequest(http.MethodPost, "/api/v1/progress/test-complete",
			strings.NewReader("{not json")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing identifiers", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		rec := srv.do(httptest.NewRequest(http.MethodPost, "/api/v1/progress/test-complete",
			strings.NewReader(`{"score": 80}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("qualifying score unlocks and reports tracked", func(t *testing.T) {
		srv, students := newTestServer(t, nil)

		body, _ := json.Marshal(map[string]any{
			"student_id": "stu-1",
			"level_id":   "GRAMMAR_L1",
			"score":      82.0,
			"test_id":    "test-42",
		})
		rec := srv.do(httptest.NewRequest(http.MethodPost, "/api/v1/progress/test-complete",
			bytes.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]any)
		assert.Equal(t, true, data["progress_tracked"])

		s := students.students["stu-1"]
		assert.True(t, s.AuthorizedLevelIDs()["GRAMMAR_L2"])
	})

	t.Run("unknown student still returns 200", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)

		body := `{"student_id": "ghost", "level_id": "GRAMMAR_L1", "score": 90}`
		rec := srv.do(httptest.NewRequest(http.MethodPost, "/api/v1/progress/test-complete",
			strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]any)
		assert.Equal(t, false, data["progress_tracked"])
	})
}

func TestStudentInsights(t *testing.T) {
	t.Run("unknown student", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		rec := srv.do(httptest.NewRequest(http.MethodGet, "/api/v1/students/ghost/insights", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("report generated and cached", func(t *testing.T) {
		cache := &stubInsightsStore{}
		srv, _ := newTestServer(t, func(_ *Config, deps *Dependencies) {
			deps.InsightsCache = cache
		})

		rec := srv.do(httptest.NewRequest(http.MethodGet, "/api/v1/students/stu-1/insights", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, cache.sets)
		require.NotNil(t, cache.cached)
		assert.Equal(t, "stu-1", cache.cached.StudentID)
	})

	t.Run("cache hit skips report generation", func(t *testing.T) {
		cache := &stubInsightsStore{cached: &progress.Insights{StudentID: "ghost"}}
		srv, _ := newTestServer(t, func(_ *Config, deps *Dependencies) {
			deps.InsightsCache = cache
		})

		// "ghost" is not in the repository, so a 200 can only come from the cache.
		rec := srv.do(httptest.NewRequest(http.MethodGet, "/api/v1/students/ghost/insights", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Zero(t, cache.sets)
	})
}

func TestAdminEndpoints_APIKeyGuard(t *testing.T) {
	body := func() *strings.Reader {
		return strings.NewReader(`{"module_id": "GRAMMAR", "admin_user_id": "admin-1"}`)
	}

	t.Run("no keys configured disables the guard", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		rec := srv.do(httptest.NewRequest(http.MethodPost,
			"/api/v1/admin/students/stu-1/authorize-module", body()))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing key rejected", func(t *testing.T) {
		srv, _ := newTestServer(t, func(cfg *Config, _ *Dependencies) {
			cfg.APIKeys = []string{"secret-key"}
		})
		rec := srv.do(httptest.NewRequest(http.MethodPost,
			"/api/v1/admin/students/stu-1/authorize-module", body()))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid key accepted", func(t *testing.T) {
		srv, _ := newTestServer(t, func(cfg *Config, _ *Dependencies) {
			cfg.APIKeys = []string{"secret-key"}
		})
		req := httptest.NewRequest(http.MethodPost,
			"/api/v1/admin/students/stu-1/authorize-module", body())
		req.Header.Set("X-API-Key", "secret-key")
		rec := srv.do(req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAdminOverrides(t *testing.T) {
	t.Run("authorize module grants every level", func(t *testing.T) {
		srv, students := newTestServer(t, nil)

		rec := srv.do(httptest.NewRequest(http.MethodPost,
			"/api/v1/admin/students/stu-1/authorize-module",
			strings.NewReader(`{"module_id": "READING", "admin_user_id": "admin-1", "reason": "placement"}`)))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]any)
		assert.Equal(t, true, data["success"])

		authorized := students.students["stu-1"].AuthorizedLevelIDs()
		assert.True(t, authorized["READING_L1"])
		assert.True(t, authorized["READING_L2"])
	})

	t.Run("unknown module reported in the outcome, not the status", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)

		rec := srv.do(httptest.NewRequest(http.MethodPost,
			"/api/v1/admin/students/stu-1/authorize-module",
			strings.NewReader(`{"module_id": "KNITTING", "admin_user_id": "admin-1"}`)))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeResponse(t, rec)
		data := resp.Data.(map[string]any)
		assert.Equal(t, false, data["success"])
	})

	t.Run("module id required", func(t *testing.T) {
		srv, _ := newTestServer(t, nil)
		rec := srv.do(httptest.NewRequest(http.MethodPost,
			"/api/v1/admin/students/stu-1/lock-module",
			strings.NewReader(`{"admin_user_id": "admin-1"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
