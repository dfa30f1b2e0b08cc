package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/pybridge-app/pybridge/dto"
	"github.com/pybridge-app/pybridge/model"
	"github.com/pybridge-app/pybridge/shared"
)

func newTestMutationService(t *testing.T, handler http.Handler) (*MutationService, *QueryCacheService, *NotifyService, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	notify := &NotifyService{}
	cache := newTestCache(time.Minute)
	upstream := &UpstreamService{
		sessionSvc: &SessionService{kvSvc: newMemoryStore(), SessionDuration: 24 * time.Hour},
		notifySvc:  notify,
		baseURL:    server.URL,
		client:     server.Client(),
	}

	svc := &MutationService{
		cacheSvc:    cache,
		upstreamSvc: upstream,
		notifySvc:   notify,
	}
	return svc, cache, notify, server
}

func testSession() *model.Session {
	return &model.Session{
		ID:          "sess-1",
		UserID:      "u1",
		AccessToken: "token-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
}

func marshalT(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := sonic.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestEnrollCommits(t *testing.T) {
	svc, cache, notify, _ := newTestMutationService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/courses/5/enroll" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	courseKey := shared.CacheKeyCourse(5)
	cache.Set(courseKey, &model.Course{ID: 5, Title: "Functions", StudentsCount: 10})
	cache.Set(shared.CacheKeyCourses(), []model.Course{{ID: 5, Title: "Functions", StudentsCount: 10}})
	cache.Set(shared.CacheKeyEnrollments("u1"), []model.Enrollment{})

	resp, err := svc.Enroll(context.Background(), testSession(), 5)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if !resp.Committed || resp.Action != shared.MutationEnroll {
		t.Errorf("response = %+v, want committed enroll", resp)
	}

	cached, _ := cache.Peek(courseKey)
	course := cached.(*model.Course)
	if course.StudentsCount != 11 {
		t.Errorf("students count = %d, want 11", course.StudentsCount)
	}

	cached, _ = cache.Peek(shared.CacheKeyEnrollments("u1"))
	enrollments := cached.([]model.Enrollment)
	if len(enrollments) != 1 {
		t.Fatalf("enrollments = %d, want 1", len(enrollments))
	}
	if !enrollments[0].IsActiveEnrollment || enrollments[0].CourseID != 5 {
		t.Errorf("enrollment = %+v, want active for course 5", enrollments[0])
	}
	if enrollments[0].ProgressPercentage == nil || *enrollments[0].ProgressPercentage != 0 {
		t.Error("placeholder enrollment should start at 0%")
	}

	// Commit marks the affected prefixes stale so the next read confirms.
	cache.mu.Lock()
	if !cache.entries[courseKey].stale {
		t.Error("course entry should be stale after commit")
	}
	cache.mu.Unlock()

	recent := notify.Recent()
	if len(recent) == 0 || recent[len(recent)-1].Level != shared.NotifySuccess {
		t.Errorf("notifications = %+v, want trailing success", recent)
	}
}

func TestEnrollRollsBackOnFailure(t *testing.T) {
	svc, cache, notify, _ := newTestMutationService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"enrollment closed"}`))
	}))

	courseKey := shared.CacheKeyCourse(5)
	cache.Set(courseKey, &model.Course{ID: 5, StudentsCount: 10})
	// Enrollments deliberately not cached: the optimistic write creates the
	// key and rollback must remove it again.

	beforeCourse := marshalT(t, func() interface{} { v, _ := cache.Peek(courseKey); return v }())

	_, err := svc.Enroll(context.Background(), testSession(), 5)
	if err == nil {
		t.Fatal("expected enroll to fail")
	}
	appErr, ok := shared.GetAppError(err)
	if !ok || appErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("err = %v, want AppError 500", err)
	}

	afterCourse := marshalT(t, func() interface{} { v, _ := cache.Peek(courseKey); return v }())
	if beforeCourse != afterCourse {
		t.Errorf("course not restored byte for byte:\n before %s\n after  %s", beforeCourse, afterCourse)
	}

	if _, ok := cache.Peek(shared.CacheKeyEnrollments("u1")); ok {
		t.Error("optimistically created enrollments key survived rollback")
	}

	recent := notify.Recent()
	last := recent[len(recent)-1]
	if last.Level != shared.NotifyError || last.Detail != "enrollment closed" {
		t.Errorf("notification = %+v, want error with upstream detail", last)
	}
}

func TestUnenrollDeactivates(t *testing.T) {
	svc, cache, _, _ := newTestMutationService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	progress := 40.0
	cache.Set(shared.CacheKeyCourse(5), &model.Course{ID: 5, StudentsCount: 1})
	cache.Set(shared.CacheKeyEnrollments("u1"), []model.Enrollment{
		{ID: "e1", CourseID: 5, IsActiveEnrollment: true, ProgressPercentage: &progress},
		{ID: "e2", CourseID: 9, IsActiveEnrollment: true, ProgressPercentage: &progress},
	})

	if _, err := svc.Unenroll(context.Background(), testSession(), 5); err != nil {
		t.Fatalf("unenroll: %v", err)
	}

	cached, _ := cache.Peek(shared.CacheKeyCourse(5))
	if count := cached.(*model.Course).StudentsCount; count != 0 {
		t.Errorf("students count = %d, want 0 (floored)", count)
	}

	cached, _ = cache.Peek(shared.CacheKeyEnrollments("u1"))
	enrollments := cached.([]model.Enrollment)
	if enrollments[0].IsActiveEnrollment || enrollments[0].ProgressPercentage != nil {
		t.Errorf("enrollment e1 = %+v, want deactivated with no progress", enrollments[0])
	}
	if !enrollments[1].IsActiveEnrollment {
		t.Error("unrelated enrollment e2 must stay active")
	}
}

func TestSubmitExercise(t *testing.T) {
	svc, cache, _, _ := newTestMutationService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/lessons/30/submissions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"correct":true,"output":"All tests passed"}`))
	}))

	progressKey := shared.CacheKeyCourseProgress(5, "u1")
	cache.Set(progressKey, &model.CourseProgress{
		CourseID: 5,
		ModuleProgress: []model.ModuleProgress{
			{ModuleID: 3, ExerciseResults: []model.ExerciseResult{{ExerciseID: 77}}},
		},
	})

	result, err := svc.SubmitExercise(context.Background(), testSession(), 5, 3, 30, dto.SubmitExerciseRequest{
		ExerciseID: 77,
		Code:       "print('hi')",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Correct || result.Output != "All tests passed" {
		t.Errorf("result = %+v", result)
	}

	cached, _ := cache.Peek(progressKey)
	progress := cached.(*model.CourseProgress)
	if !progress.ModuleProgress[0].ExerciseResults[0].Attempted {
		t.Error("optimistic attempted flag not applied")
	}
}

func TestSubmitExamHasNoOptimisticWrite(t *testing.T) {
	svc, cache, _, _ := newTestMutationService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cache.Set(shared.CacheKeyCourse(5), &model.Course{ID: 5, StudentsCount: 3})

	resp, err := svc.SubmitExam(context.Background(), testSession(), 5, map[string]interface{}{"q1": "a"})
	if err != nil {
		t.Fatalf("exam: %v", err)
	}
	if !resp.Committed {
		t.Error("exam submission should commit")
	}

	cached, _ := cache.Peek(shared.CacheKeyCourse(5))
	if cached.(*model.Course).StudentsCount != 3 {
		t.Error("exam submission must not touch cached values before confirmation")
	}
}

func TestMutationTxTransitions(t *testing.T) {
	cache := newTestCache(time.Minute)

	t.Run("happy path", func(t *testing.T) {
		tx := newMutationTx(cache, []string{"course:1"}, []string{"course:1"})
		if err := tx.snapshot(); err != nil {
			t.Fatal(err)
		}
		if err := tx.apply(nil); err != nil {
			t.Fatal(err)
		}
		if err := tx.commit(); err != nil {
			t.Fatal(err)
		}
		if tx.state != txCommitted {
			t.Errorf("state = %s, want committed", tx.state)
		}
	})

	t.Run("illegal transitions error", func(t *testing.T) {
		tx := newMutationTx(cache, nil, nil)
		if err := tx.apply(nil); err == nil {
			t.Error("apply before snapshot must fail")
		}
		if err := tx.commit(); err == nil {
			t.Error("commit before apply must fail")
		}
		if err := tx.rollback(); err == nil {
			t.Error("rollback before apply must fail")
		}

		if err := tx.snapshot(); err != nil {
			t.Fatal(err)
		}
		if err := tx.snapshot(); err == nil {
			t.Error("double snapshot must fail")
		}

		if err := tx.apply(nil); err != nil {
			t.Fatal(err)
		}
		if err := tx.rollback(); err != nil {
			t.Fatal(err)
		}
		if err := tx.commit(); err == nil {
			t.Error("commit after rollback must fail")
		}
		if err := tx.rollback(); err == nil {
			t.Error("double rollback must fail")
		}
	})
}
