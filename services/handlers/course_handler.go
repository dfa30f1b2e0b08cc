package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/pybridge-app/pybridge/dto"
	"github.com/pybridge-app/pybridge/shared"
)

type CourseHandler struct {
	viewSvc     ViewServiceInterface
	mutationSvc MutationServiceInterface
}

func NewCourseHandler(viewSvc ViewServiceInterface, mutationSvc MutationServiceInterface) *CourseHandler {
	return &CourseHandler{
		viewSvc:     viewSvc,
		mutationSvc: mutationSvc,
	}
}

// @Summary List courses
// @Description All courses with the caller's access and enrollment state
// @Tags courses
// @Produce json
// @Success 200 {object} shared.Response{data=dto.CourseListResponse}
// @Router /api/v1/courses [get]
func (h *CourseHandler) ListCourses(c *fiber.Ctx) error {
	resp, err := h.viewSvc.CourseList(c.UserContext(), sessionFromCtx(c))
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Course detail
// @Tags courses
// @Produce json
// @Param courseId path int true "Course ID"
// @Success 200 {object} shared.Response{data=dto.CourseResponse}
// @Router /api/v1/courses/{courseId} [get]
func (h *CourseHandler) GetCourse(c *fiber.Ctx) error {
	courseID, err := paramID(c, "courseId")
	if err != nil {
		return err
	}

	resp, err := h.viewSvc.CourseDetail(c.UserContext(), sessionFromCtx(c), courseID)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Course modules
// @Description Modules with per-caller lock state and progress
// @Tags courses
// @Produce json
// @Param courseId path int true "Course ID"
// @Success 200 {object} shared.Response{data=dto.ModuleListResponse}
// @Router /api/v1/courses/{courseId}/modules [get]
func (h *CourseHandler) GetModules(c *fiber.Ctx) error {
	courseID, err := paramID(c, "courseId")
	if err != nil {
		return err
	}

	resp, err := h.viewSvc.ModuleList(c.UserContext(), sessionFromCtx(c), courseID)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Lesson content
// @Tags courses
// @Produce json
// @Param courseId path int true "Course ID"
// @Param lessonId path int true "Lesson ID"
// @Success 200 {object} shared.Response{data=dto.LessonResponse}
// @Router /api/v1/courses/{courseId}/modules/{moduleId}/lessons/{lessonId} [get]
func (h *CourseHandler) GetLesson(c *fiber.Ctx) error {
	courseID, err := paramID(c, "courseId")
	if err != nil {
		return err
	}
	lessonID, err := paramID(c, "lessonId")
	if err != nil {
		return err
	}

	resp, err := h.viewSvc.LessonDetail(c.UserContext(), sessionFromCtx(c), lessonID, courseID)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Enroll in a course
// @Description Applies the enrollment optimistically and confirms upstream
// @Tags courses
// @Produce json
// @Param courseId path int true "Course ID"
// @Success 200 {object} shared.Response{data=dto.MutationResponse}
// @Router /api/v1/courses/{courseId}/enroll [post]
func (h *CourseHandler) Enroll(c *fiber.Ctx) error {
	courseID, err := paramID(c, "courseId")
	if err != nil {
		return err
	}

	resp, err := h.mutationSvc.Enroll(c.UserContext(), sessionFromCtx(c), courseID)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Unenroll from a course
// @Tags courses
// @Produce json
// @Param courseId path int true "Course ID"
// @Success 200 {object} shared.Response{data=dto.MutationResponse}
// @Router /api/v1/courses/{courseId}/unenroll [post]
func (h *CourseHandler) Unenroll(c *fiber.Ctx) error {
	courseID, err := paramID(c, "courseId")
	if err != nil {
		return err
	}

	resp, err := h.mutationSvc.Unenroll(c.UserContext(), sessionFromCtx(c), courseID)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Submit exercise code
// @Tags courses
// @Accept json
// @Produce json
// @Param courseId path int true "Course ID"
// @Param moduleId path int true "Module ID"
// @Param lessonId path int true "Lesson ID"
// @Param submitRequest body dto.SubmitExerciseRequest true "Submission"
// @Success 200 {object} shared.Response{data=dto.SubmitExerciseResponse}
// @Router /api/v1/courses/{courseId}/modules/{moduleId}/lessons/{lessonId}/submissions [post]
func (h *CourseHandler) SubmitExercise(c *fiber.Ctx) error {
	courseID, err := paramID(c, "courseId")
	if err != nil {
		return err
	}
	moduleID, err := paramID(c, "moduleId")
	if err != nil {
		return err
	}
	lessonID, err := paramID(c, "lessonId")
	if err != nil {
		return err
	}

	var req dto.SubmitExerciseRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	resp, err := h.mutationSvc.SubmitExercise(c.UserContext(), sessionFromCtx(c), courseID, moduleID, lessonID, req)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Submit final exam
// @Tags courses
// @Accept json
// @Produce json
// @Param courseId path int true "Course ID"
// @Param examRequest body dto.SubmitExamRequest true "Exam answers"
// @Success 200 {object} shared.Response{data=dto.MutationResponse}
// @Router /api/v1/courses/{courseId}/exam [post]
func (h *CourseHandler) SubmitExam(c *fiber.Ctx) error {
	courseID, err := paramID(c, "courseId")
	if err != nil {
		return err
	}

	var req dto.SubmitExamRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	resp, err := h.mutationSvc.SubmitExam(c.UserContext(), sessionFromCtx(c), courseID, req.Answers)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, resp)
}

// @Summary Learning dashboard
// @Description Aggregate progress across the caller's enrollments
// @Tags me
// @Produce json
// @Success 200 {object} shared.Response{data=dto.DashboardResponse}
// @Router /api/v1/me/dashboard [get]
func (h *CourseHandler) Dashboard(c *fiber.Ctx) error {
	resp, err := h.viewSvc.Dashboard(c.UserContext(), sessionFromCtx(c))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}
