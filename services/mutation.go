package services

import (
	"context"
	"fmt"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"

	"github.com/pybridge-app/pybridge/dto"
	"github.com/pybridge-app/pybridge/model"
	"github.com/pybridge-app/pybridge/shared"
)

// ==================== MUTATION TRANSACTION ====================

type mutationState int

const (
	txIdle mutationState = iota
	txSnapshotted
	txApplied
	txCommitted
	txRolledBack
)

func (s mutationState) String() string {
	switch s {
	case txIdle:
		return "idle"
	case txSnapshotted:
		return "snapshotted"
	case txApplied:
		return "applied"
	case txCommitted:
		return "committed"
	case txRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// mutationTx is the snapshot/apply/commit-or-rollback state machine around a
// single write. Transitions are strictly ordered; anything else is a
// programming error.
type mutationTx struct {
	cache    *QueryCacheService
	prefixes []string
	keys     []string
	snap     *CacheSnapshot
	state    mutationState
}

func newMutationTx(cache *QueryCacheService, prefixes []string, writeKeys []string) *mutationTx {
	seen := make(map[string]bool)
	var keys []string
	for _, prefix := range prefixes {
		for _, key := range cache.KeysWithPrefix(prefix) {
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	for _, key := range writeKeys {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	return &mutationTx{
		cache:    cache,
		prefixes: prefixes,
		keys:     keys,
		state:    txIdle,
	}
}

func (tx *mutationTx) snapshot() error {
	if tx.state != txIdle {
		return fmt.Errorf("cannot snapshot mutation in state %s", tx.state)
	}
	tx.snap = tx.cache.Snapshot(tx.keys)
	tx.state = txSnapshotted
	return nil
}

func (tx *mutationTx) apply(optimistic func(cache *QueryCacheService)) error {
	if tx.state != txSnapshotted {
		return fmt.Errorf("cannot apply mutation in state %s", tx.state)
	}
	if optimistic != nil {
		optimistic(tx.cache)
	}
	tx.state = txApplied
	return nil
}

// commit discards the snapshot and marks every affected prefix stale so the
// next read returns server-confirmed data.
func (tx *mutationTx) commit() error {
	if tx.state != txApplied {
		return fmt.Errorf("cannot commit mutation in state %s", tx.state)
	}
	tx.snap = nil
	for _, prefix := range tx.prefixes {
		tx.cache.Invalidate(prefix)
	}
	tx.state = txCommitted
	return nil
}

// rollback restores every snapshotted key verbatim. One attempt, never
// partial.
func (tx *mutationTx) rollback() error {
	if tx.state != txApplied {
		return fmt.Errorf("cannot roll back mutation in state %s", tx.state)
	}
	tx.cache.Restore(tx.snap)
	tx.snap = nil
	tx.state = txRolledBack
	return nil
}

// ==================== MUTATION SERVICE ====================

// MutationService coordinates every write: cancel racing fetches, snapshot,
// optimistic apply, upstream call, then commit or full rollback. A mutation
// that fails after the server committed is not reconciled here; the next
// refetch is the only correction.
type MutationService struct {
	appContext.DefaultService

	cacheSvc    *QueryCacheService
	upstreamSvc *UpstreamService
	notifySvc   *NotifyService
}

const MUTATION_SVC = "mutation_svc"

func (svc MutationService) Id() string {
	return MUTATION_SVC
}

func (svc *MutationService) Configure(ctx *appContext.Context) error {
	svc.cacheSvc = ctx.Service(QUERY_CACHE_SVC).(*QueryCacheService)
	svc.upstreamSvc = ctx.Service(UPSTREAM_SVC).(*UpstreamService)
	svc.notifySvc = ctx.Service(NOTIFY_SVC).(*NotifyService)
	return svc.DefaultService.Configure(ctx)
}

func (svc *MutationService) Start() error {
	return nil
}

type mutationPlan struct {
	action     string
	prefixes   []string
	writeKeys  []string
	optimistic func(cache *QueryCacheService)
	call       func(ctx context.Context) error
	successMsg string
	failureMsg string
}

func (svc *MutationService) run(ctx context.Context, plan mutationPlan) (*dto.MutationResponse, error) {
	// Mutation intent wins over any passive refetch already in flight.
	for _, prefix := range plan.prefixes {
		svc.cacheSvc.Cancel(prefix)
	}

	tx := newMutationTx(svc.cacheSvc, plan.prefixes, plan.writeKeys)
	if err := tx.snapshot(); err != nil {
		return nil, err
	}
	if err := tx.apply(plan.optimistic); err != nil {
		return nil, err
	}

	if err := plan.call(ctx); err != nil {
		if rbErr := tx.rollback(); rbErr != nil {
			return nil, rbErr
		}

		detail := ""
		if appErr, ok := shared.GetAppError(err); ok {
			detail = appErr.Message
		}
		svc.notifySvc.Error(plan.failureMsg, detail)
		recordMutation(plan.action, false)
		return nil, err
	}

	if err := tx.commit(); err != nil {
		return nil, err
	}
	svc.notifySvc.Success(plan.successMsg)
	recordMutation(plan.action, true)

	return &dto.MutationResponse{
		Action:       plan.action,
		Committed:    true,
		Notification: plan.successMsg,
	}, nil
}

// ==================== ACTIONS ====================

func (svc *MutationService) Enroll(ctx context.Context, session *model.Session, courseID int64) (*dto.MutationResponse, error) {
	courseKey := shared.CacheKeyCourse(courseID)
	enrollKey := shared.CacheKeyEnrollments(session.UserID)

	return svc.run(ctx, mutationPlan{
		action:    shared.MutationEnroll,
		prefixes:  []string{courseKey, enrollKey, shared.CacheKeyCourses(), shared.CacheKeyDashboard(session.UserID)},
		writeKeys: []string{courseKey, enrollKey, shared.CacheKeyCourses()},
		optimistic: func(cache *QueryCacheService) {
			adjustCachedCourse(cache, courseID, +1)

			zero := 0.0
			placeholder := model.Enrollment{
				ID:                 uuid.NewString(),
				CourseID:           courseID,
				IsActiveEnrollment: true,
				ProgressPercentage: &zero,
				EnrolledAt:         time.Now(),
			}
			upsertCachedEnrollment(cache, enrollKey, placeholder)
		},
		call: func(ctx context.Context) error {
			return svc.upstreamSvc.Enroll(ctx, session, courseID)
		},
		successMsg: "Enrolled in course",
		failureMsg: "Failed to enroll in course",
	})
}

func (svc *MutationService) Unenroll(ctx context.Context, session *model.Session, courseID int64) (*dto.MutationResponse, error) {
	courseKey := shared.CacheKeyCourse(courseID)
	enrollKey := shared.CacheKeyEnrollments(session.UserID)

	return svc.run(ctx, mutationPlan{
		action:    shared.MutationUnenroll,
		prefixes:  []string{courseKey, enrollKey, shared.CacheKeyCourses(), shared.CacheKeyDashboard(session.UserID)},
		writeKeys: []string{courseKey, enrollKey, shared.CacheKeyCourses()},
		optimistic: func(cache *QueryCacheService) {
			adjustCachedCourse(cache, courseID, -1)

			if cached, ok := cache.Peek(enrollKey); ok {
				if enrollments, ok := cached.([]model.Enrollment); ok {
					updated := make([]model.Enrollment, len(enrollments))
					copy(updated, enrollments)
					for i := range updated {
						if updated[i].CourseID == courseID {
							updated[i].IsActiveEnrollment = false
							updated[i].ProgressPercentage = nil
						}
					}
					cache.Set(enrollKey, updated)
				}
			}
		},
		call: func(ctx context.Context) error {
			return svc.upstreamSvc.Unenroll(ctx, session, courseID)
		},
		successMsg: "Unenrolled from course",
		failureMsg: "Failed to unenroll from course",
	})
}

func (svc *MutationService) SubmitExercise(ctx context.Context, session *model.Session, courseID, moduleID, lessonID int64, req dto.SubmitExerciseRequest) (*dto.SubmitExerciseResponse, error) {
	progressKey := shared.CacheKeyCourseProgress(courseID, session.UserID)

	var result *dto.SubmitExerciseResponse
	_, err := svc.run(ctx, mutationPlan{
		action:    shared.MutationSubmitExercise,
		prefixes:  []string{shared.CacheKeyCourse(courseID), shared.CacheKeyDashboard(session.UserID)},
		writeKeys: []string{progressKey},
		optimistic: func(cache *QueryCacheService) {
			markExerciseAttempted(cache, progressKey, moduleID, req.ExerciseID)
		},
		call: func(ctx context.Context) error {
			submitted, err := svc.upstreamSvc.SubmitExercise(ctx, session, lessonID, req)
			if err != nil {
				return err
			}
			result = submitted
			return nil
		},
		successMsg: "Solution submitted",
		failureMsg: "Failed to submit solution",
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (svc *MutationService) SubmitExam(ctx context.Context, session *model.Session, courseID int64, answers map[string]interface{}) (*dto.MutationResponse, error) {
	return svc.run(ctx, mutationPlan{
		action:   shared.MutationSubmitExam,
		prefixes: []string{shared.CacheKeyCourse(courseID), shared.CacheKeyEnrollments(session.UserID), shared.CacheKeyDashboard(session.UserID)},
		call: func(ctx context.Context) error {
			return svc.upstreamSvc.SubmitExam(ctx, session, courseID, answers)
		},
		successMsg: "Exam submitted",
		failureMsg: "Failed to submit exam",
	})
}

// ==================== OPTIMISTIC HELPERS ====================

func adjustCachedCourse(cache *QueryCacheService, courseID int64, delta int) {
	courseKey := shared.CacheKeyCourse(courseID)
	if cached, ok := cache.Peek(courseKey); ok {
		if course, ok := cached.(*model.Course); ok {
			updated := *course
			updated.StudentsCount += delta
			if updated.StudentsCount < 0 {
				updated.StudentsCount = 0
			}
			cache.Set(courseKey, &updated)
		}
	}

	listKey := shared.CacheKeyCourses()
	if cached, ok := cache.Peek(listKey); ok {
		if courses, ok := cached.([]model.Course); ok {
			updated := make([]model.Course, len(courses))
			copy(updated, courses)
			for i := range updated {
				if updated[i].ID == courseID {
					updated[i].StudentsCount += delta
					if updated[i].StudentsCount < 0 {
						updated[i].StudentsCount = 0
					}
				}
			}
			cache.Set(listKey, updated)
		}
	}
}

func upsertCachedEnrollment(cache *QueryCacheService, enrollKey string, placeholder model.Enrollment) {
	var enrollments []model.Enrollment
	if cached, ok := cache.Peek(enrollKey); ok {
		if existing, ok := cached.([]model.Enrollment); ok {
			enrollments = make([]model.Enrollment, len(existing))
			copy(enrollments, existing)
		}
	}

	// Re-enrolling reactivates the prior row rather than duplicating it.
	for i := range enrollments {
		if enrollments[i].CourseID == placeholder.CourseID {
			enrollments[i].IsActiveEnrollment = true
			enrollments[i].ProgressPercentage = placeholder.ProgressPercentage
			cache.Set(enrollKey, enrollments)
			return
		}
	}

	cache.Set(enrollKey, append(enrollments, placeholder))
}

func markExerciseAttempted(cache *QueryCacheService, progressKey string, moduleID, exerciseID int64) {
	cached, ok := cache.Peek(progressKey)
	if !ok {
		return
	}
	progress, ok := cached.(*model.CourseProgress)
	if !ok {
		return
	}

	updated := *progress
	updated.ModuleProgress = make([]model.ModuleProgress, len(progress.ModuleProgress))
	copy(updated.ModuleProgress, progress.ModuleProgress)

	for i := range updated.ModuleProgress {
		if updated.ModuleProgress[i].ModuleID != moduleID {
			continue
		}
		mp := &updated.ModuleProgress[i]
		results := make([]model.ExerciseResult, len(mp.ExerciseResults))
		copy(results, mp.ExerciseResults)
		found := false
		for j := range results {
			if results[j].ExerciseID == exerciseID {
				results[j].Attempted = true
				found = true
			}
		}
		if !found {
			results = append(results, model.ExerciseResult{ExerciseID: exerciseID, Attempted: true})
		}
		mp.ExerciseResults = results
	}

	cache.Set(progressKey, &updated)
}
