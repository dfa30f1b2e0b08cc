package model

import "time"

// Enrollment is the cached copy of the upstream (user, course) enrollment.
// Unenrolling flips IsActiveEnrollment off; enrollments are never removed
// from the cached list.
type Enrollment struct {
	ID                   string     `json:"id" validate:"required"`
	CourseID             int64      `json:"course_id" validate:"required"`
	IsActiveEnrollment   bool       `json:"is_active_enrollment"`
	IsCompleted          bool       `json:"is_completed"`
	ProgressPercentage   *float64   `json:"progress_percentage" validate:"omitempty,gte=0,lte=100"`
	ExamUnlocked         bool       `json:"exam_unlocked"`
	LastAccessedModuleID int64      `json:"last_accessed_module_id,omitempty"`
	LastAccessedLessonID int64      `json:"last_accessed_lesson_id,omitempty"`
	EnrolledAt           time.Time  `json:"enrolled_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

type CourseProgress struct {
	CourseID           int64    `json:"course_id" validate:"required"`
	ProgressPercentage float64  `json:"progress_percentage" validate:"gte=0,lte=100"`
	IsCompleted        bool     `json:"is_completed"`
	CompletedModules   int      `json:"completed_modules"`
	TotalModules       int      `json:"total_modules"`
	ExamUnlocked       bool     `json:"exam_unlocked"`
	ModuleProgress     []ModuleProgress `json:"module_progress,omitempty"`
}

type ModuleProgress struct {
	ModuleID           int64            `json:"module_id"`
	ProgressPercentage float64          `json:"progress_percentage"`
	IsCompleted        bool             `json:"is_completed"`
	ExerciseResults    []ExerciseResult `json:"exercise_results,omitempty"`
}

type ExerciseResult struct {
	ExerciseID int64 `json:"exercise_id"`
	Attempted  bool  `json:"attempted"`
	Correct    bool  `json:"correct"`
}
