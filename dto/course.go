package dto

import "github.com/pybridge-app/pybridge/model"

// ==================== COURSE RESPONSE DTOs ====================

type CourseListResponse struct {
	Courses []CourseResponse `json:"courses"`
	Total   int              `json:"total"`
}

type CourseResponse struct {
	model.Course

	HasAccess    bool   `json:"has_access"`
	AccessReason string `json:"access_reason,omitempty"`
	IsEnrolled   bool   `json:"is_enrolled"`

	// Display-rounded. Cached progress stays exact; rounding happens only
	// at this layer.
	ProgressPercent int `json:"progress_percent"`
}

type ModuleListResponse struct {
	CourseID int64            `json:"course_id"`
	Modules  []ModuleResponse `json:"modules"`
}

type ModuleResponse struct {
	model.Module

	// Combined backend lock flag and current enrollment. Recomputed on every
	// read, never cached.
	IsLocked        bool `json:"is_locked"`
	ProgressPercent int  `json:"progress_percent"`
	IsCompleted     bool `json:"is_completed"`
}

type LessonResponse struct {
	model.Lesson

	ExerciseResults []model.ExerciseResult `json:"exercise_results,omitempty"`
}

type AccessResult struct {
	HasAccess bool   `json:"has_access"`
	Reason    string `json:"reason,omitempty"`
}

type DashboardResponse struct {
	CoursesStarted   int `json:"courses_started"`
	CoursesCompleted int `json:"courses_completed"`
	OverallPercent   int `json:"overall_percent"`
}

// ==================== MUTATION DTOs ====================

type SubmitExerciseRequest struct {
	ExerciseID int64  `json:"exercise_id" validate:"required"`
	Code       string `json:"code" validate:"required"`
}

func (s SubmitExerciseRequest) Validate() error {
	return GetValidator().Struct(s)
}

type SubmitExerciseResponse struct {
	Correct bool   `json:"correct"`
	Output  string `json:"output,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

type SubmitExamRequest struct {
	Answers map[string]interface{} `json:"answers" validate:"required"`
}

func (s SubmitExamRequest) Validate() error {
	return GetValidator().Struct(s)
}

type MutationResponse struct {
	Action       string `json:"action"`
	Committed    bool   `json:"committed"`
	Notification string `json:"notification"`
}

// UpstreamDetail is the structured error body the backend attaches to 4xx
// responses.
type UpstreamDetail struct {
	Detail string `json:"detail"`
}
