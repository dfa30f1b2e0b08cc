package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/pybridge-app/pybridge/dto"
	"github.com/pybridge-app/pybridge/model"
	"github.com/pybridge-app/pybridge/shared"
)

type AuthServiceInterface interface {
	Login(ctx context.Context, req dto.LoginRequest) (*model.Session, error)
	Logout(ctx context.Context, session *model.Session) error
}

type ViewServiceInterface interface {
	CourseList(ctx context.Context, session *model.Session) (*dto.CourseListResponse, error)
	CourseDetail(ctx context.Context, session *model.Session, courseID int64) (*dto.CourseResponse, error)
	ModuleList(ctx context.Context, session *model.Session, courseID int64) (*dto.ModuleListResponse, error)
	LessonDetail(ctx context.Context, session *model.Session, lessonID, courseID int64) (*dto.LessonResponse, error)
	Dashboard(ctx context.Context, session *model.Session) (*dto.DashboardResponse, error)
}

type MutationServiceInterface interface {
	Enroll(ctx context.Context, session *model.Session, courseID int64) (*dto.MutationResponse, error)
	Unenroll(ctx context.Context, session *model.Session, courseID int64) (*dto.MutationResponse, error)
	SubmitExercise(ctx context.Context, session *model.Session, courseID, moduleID, lessonID int64, req dto.SubmitExerciseRequest) (*dto.SubmitExerciseResponse, error)
	SubmitExam(ctx context.Context, session *model.Session, courseID int64, answers map[string]interface{}) (*dto.MutationResponse, error)
}

type ChatServiceInterface interface {
	Stream(ctx context.Context, session *model.Session, lessonID int64, message string, onChunk func(delta, buffered string) error) (string, error)
	Transcript(ctx context.Context, session *model.Session, lessonID int64) ([]model.TranscriptMessage, error)
	ClearTranscript(ctx context.Context, session *model.Session, lessonID int64) error
}

type NotifyServiceInterface interface {
	Recent() []model.Notification
}

func sessionFromCtx(c *fiber.Ctx) *model.Session {
	session, _ := c.Locals(shared.SessionID).(*model.Session)
	return session
}

func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, shared.NewAppError(fiber.StatusBadRequest, "invalid "+name, nil)
	}
	return int64(id), nil
}
