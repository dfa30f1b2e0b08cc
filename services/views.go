package services

import (
	"context"
	"fmt"
	"math"

	appContext "github.com/alphabatem/common/context"

	"github.com/pybridge-app/pybridge/dto"
	"github.com/pybridge-app/pybridge/model"
	"github.com/pybridge-app/pybridge/shared"
)

// ViewService is the read side: every method computes presentation state
// from cached entities and owns no data. Lock state and display rounding are
// recomputed on every call, never cached.
type ViewService struct {
	appContext.DefaultService

	cacheSvc    *QueryCacheService
	upstreamSvc *UpstreamService
}

const VIEW_SVC = "view_svc"

func (svc ViewService) Id() string {
	return VIEW_SVC
}

func (svc *ViewService) Configure(ctx *appContext.Context) error {
	svc.cacheSvc = ctx.Service(QUERY_CACHE_SVC).(*QueryCacheService)
	svc.upstreamSvc = ctx.Service(UPSTREAM_SVC).(*UpstreamService)
	return svc.DefaultService.Configure(ctx)
}

func (svc *ViewService) Start() error {
	return nil
}

// ==================== CACHED READS ====================

func (svc *ViewService) Courses(ctx context.Context, session *model.Session) ([]model.Course, error) {
	value, err := svc.cacheSvc.Get(ctx, shared.CacheKeyCourses(), func(fctx context.Context) (interface{}, error) {
		return svc.upstreamSvc.Courses(fctx, session)
	})
	if err != nil {
		return nil, err
	}

	courses, ok := value.([]model.Course)
	if !ok {
		return nil, fmt.Errorf("unexpected cached value for courses")
	}
	return courses, nil
}

func (svc *ViewService) Course(ctx context.Context, session *model.Session, courseID int64) (*model.Course, error) {
	value, err := svc.cacheSvc.Get(ctx, shared.CacheKeyCourse(courseID), func(fctx context.Context) (interface{}, error) {
		return svc.upstreamSvc.Course(fctx, session, courseID)
	})
	if err != nil {
		return nil, err
	}

	course, ok := value.(*model.Course)
	if !ok {
		return nil, fmt.Errorf("unexpected cached value for course %d", courseID)
	}
	return course, nil
}

func (svc *ViewService) Modules(ctx context.Context, session *model.Session, courseID int64) ([]model.Module, error) {
	value, err := svc.cacheSvc.Get(ctx, shared.CacheKeyCourseModules(courseID), func(fctx context.Context) (interface{}, error) {
		return svc.upstreamSvc.Modules(fctx, session, courseID)
	})
	if err != nil {
		return nil, err
	}

	modules, ok := value.([]model.Module)
	if !ok {
		return nil, fmt.Errorf("unexpected cached value for course %d modules", courseID)
	}
	return modules, nil
}

func (svc *ViewService) Enrollments(ctx context.Context, session *model.Session) ([]model.Enrollment, error) {
	value, err := svc.cacheSvc.Get(ctx, shared.CacheKeyEnrollments(session.UserID), func(fctx context.Context) (interface{}, error) {
		return svc.upstreamSvc.Enrollments(fctx, session)
	})
	if err != nil {
		return nil, err
	}

	enrollments, ok := value.([]model.Enrollment)
	if !ok {
		return nil, fmt.Errorf("unexpected cached value for enrollments")
	}
	return enrollments, nil
}

func (svc *ViewService) CourseProgress(ctx context.Context, session *model.Session, courseID int64) (*model.CourseProgress, error) {
	value, err := svc.cacheSvc.Get(ctx, shared.CacheKeyCourseProgress(courseID, session.UserID), func(fctx context.Context) (interface{}, error) {
		return svc.upstreamSvc.CourseProgress(fctx, session, courseID)
	})
	if err != nil {
		return nil, err
	}

	progress, ok := value.(*model.CourseProgress)
	if !ok {
		return nil, fmt.Errorf("unexpected cached value for course %d progress", courseID)
	}
	return progress, nil
}

func (svc *ViewService) Lesson(ctx context.Context, session *model.Session, lessonID int64) (*model.Lesson, error) {
	value, err := svc.cacheSvc.Get(ctx, shared.CacheKeyLesson(lessonID), func(fctx context.Context) (interface{}, error) {
		return svc.upstreamSvc.Lesson(fctx, session, lessonID)
	})
	if err != nil {
		return nil, err
	}

	lesson, ok := value.(*model.Lesson)
	if !ok {
		return nil, fmt.Errorf("unexpected cached value for lesson %d", lessonID)
	}
	return lesson, nil
}

// ==================== DERIVED STATE ====================

// HasAccessToCourse applies the sequential unlock rule: the first course is
// always open, every later one needs a completed enrollment for its
// predecessor. Pure over its inputs.
func HasAccessToCourse(course model.Course, courses []model.Course, enrollments []model.Enrollment) dto.AccessResult {
	if course.Sequence <= 1 {
		return dto.AccessResult{HasAccess: true}
	}

	var previous *model.Course
	for i := range courses {
		if courses[i].Sequence == course.Sequence-1 {
			previous = &courses[i]
			break
		}
	}
	if previous == nil {
		// No known predecessor to gate on.
		return dto.AccessResult{HasAccess: true}
	}

	for _, enrollment := range enrollments {
		if enrollment.CourseID == previous.ID && enrollment.IsCompleted {
			return dto.AccessResult{HasAccess: true}
		}
	}

	return dto.AccessResult{
		HasAccess: false,
		Reason:    fmt.Sprintf("Complete %q before starting this course", previous.Title),
	}
}

// IsModuleLocked combines the backend lock flag with the caller's current
// enrollment. Never derived from cached lock state.
func IsModuleLocked(module model.Module, activelyEnrolled bool) bool {
	return module.Locked || !activelyEnrolled
}

// DisplayProgress rounds for display only; cached percentages stay exact.
func DisplayProgress(percentage float64) int {
	return int(math.Round(percentage))
}

func ActiveEnrollment(enrollments []model.Enrollment, courseID int64) *model.Enrollment {
	for i := range enrollments {
		if enrollments[i].CourseID == courseID && enrollments[i].IsActiveEnrollment {
			return &enrollments[i]
		}
	}
	return nil
}

// ==================== VIEW AGGREGATES ====================

func (svc *ViewService) CourseList(ctx context.Context, session *model.Session) (*dto.CourseListResponse, error) {
	courses, err := svc.Courses(ctx, session)
	if err != nil {
		return nil, err
	}
	enrollments, err := svc.Enrollments(ctx, session)
	if err != nil {
		return nil, err
	}

	responses := make([]dto.CourseResponse, len(courses))
	for i, course := range courses {
		responses[i] = buildCourseResponse(course, courses, enrollments)
	}

	return &dto.CourseListResponse{
		Courses: responses,
		Total:   len(responses),
	}, nil
}

func (svc *ViewService) CourseDetail(ctx context.Context, session *model.Session, courseID int64) (*dto.CourseResponse, error) {
	course, err := svc.Course(ctx, session, courseID)
	if err != nil {
		return nil, err
	}
	courses, err := svc.Courses(ctx, session)
	if err != nil {
		return nil, err
	}
	enrollments, err := svc.Enrollments(ctx, session)
	if err != nil {
		return nil, err
	}

	response := buildCourseResponse(*course, courses, enrollments)
	return &response, nil
}

func (svc *ViewService) ModuleList(ctx context.Context, session *model.Session, courseID int64) (*dto.ModuleListResponse, error) {
	modules, err := svc.Modules(ctx, session, courseID)
	if err != nil {
		return nil, err
	}
	enrollments, err := svc.Enrollments(ctx, session)
	if err != nil {
		return nil, err
	}

	activelyEnrolled := ActiveEnrollment(enrollments, courseID) != nil

	var progress *model.CourseProgress
	if activelyEnrolled {
		if progress, err = svc.CourseProgress(ctx, session, courseID); err != nil {
			return nil, err
		}
	}

	responses := make([]dto.ModuleResponse, len(modules))
	for i, module := range modules {
		responses[i] = dto.ModuleResponse{
			Module:   module,
			IsLocked: IsModuleLocked(module, activelyEnrolled),
		}
		if progress == nil {
			continue
		}
		for _, mp := range progress.ModuleProgress {
			if mp.ModuleID == module.ID {
				responses[i].ProgressPercent = DisplayProgress(mp.ProgressPercentage)
				responses[i].IsCompleted = mp.IsCompleted
			}
		}
	}

	return &dto.ModuleListResponse{
		CourseID: courseID,
		Modules:  responses,
	}, nil
}

func (svc *ViewService) Dashboard(ctx context.Context, session *model.Session) (*dto.DashboardResponse, error) {
	enrollments, err := svc.Enrollments(ctx, session)
	if err != nil {
		return nil, err
	}

	started := 0
	completed := 0
	total := 0.0
	counted := 0
	for _, enrollment := range enrollments {
		if enrollment.IsActiveEnrollment || enrollment.IsCompleted {
			started++
		}
		if enrollment.IsCompleted {
			completed++
		}
		if enrollment.ProgressPercentage != nil {
			total += *enrollment.ProgressPercentage
			counted++
		}
	}

	overall := 0
	if counted > 0 {
		overall = DisplayProgress(total / float64(counted))
	}

	return &dto.DashboardResponse{
		CoursesStarted:   started,
		CoursesCompleted: completed,
		OverallPercent:   overall,
	}, nil
}

// LessonDetail attaches the caller's exercise results to a lesson when the
// owning course is known. courseID 0 skips the progress lookup.
func (svc *ViewService) LessonDetail(ctx context.Context, session *model.Session, lessonID, courseID int64) (*dto.LessonResponse, error) {
	lesson, err := svc.Lesson(ctx, session, lessonID)
	if err != nil {
		return nil, err
	}

	response := &dto.LessonResponse{Lesson: *lesson}
	if courseID == 0 {
		return response, nil
	}

	progress, err := svc.CourseProgress(ctx, session, courseID)
	if err != nil {
		return nil, err
	}

	exerciseIDs := make(map[int64]bool, len(lesson.Exercises))
	for _, exercise := range lesson.Exercises {
		exerciseIDs[exercise.ID] = true
	}
	for _, mp := range progress.ModuleProgress {
		for _, result := range mp.ExerciseResults {
			if exerciseIDs[result.ExerciseID] {
				response.ExerciseResults = append(response.ExerciseResults, result)
			}
		}
	}
	return response, nil
}

func buildCourseResponse(course model.Course, courses []model.Course, enrollments []model.Enrollment) dto.CourseResponse {
	access := HasAccessToCourse(course, courses, enrollments)

	response := dto.CourseResponse{
		Course:       course,
		HasAccess:    access.HasAccess,
		AccessReason: access.Reason,
	}

	if enrollment := ActiveEnrollment(enrollments, course.ID); enrollment != nil {
		response.IsEnrolled = true
		if enrollment.ProgressPercentage != nil {
			response.ProgressPercent = DisplayProgress(*enrollment.ProgressPercentage)
		}
	}

	return response
}
