package services

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/pybridge-app/pybridge/services/handlers"
	"github.com/pybridge-app/pybridge/shared"
)

type HttpService struct {
	appContext.DefaultService

	authSvc     *AuthService
	viewSvc     *ViewService
	mutationSvc *MutationService
	chatSvc     *ChatService
	notifySvc   *NotifyService
	authMw      *AuthMiddleware

	port   int
	server *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *appContext.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 3000
	}

	svc.authSvc = ctx.Service(AUTH_SVC).(*AuthService)
	svc.viewSvc = ctx.Service(VIEW_SVC).(*ViewService)
	svc.mutationSvc = ctx.Service(MUTATION_SVC).(*MutationService)
	svc.chatSvc = ctx.Service(CHAT_SVC).(*ChatService)
	svc.notifySvc = ctx.Service(NOTIFY_SVC).(*NotifyService)
	svc.authMw = ctx.Service(AUTH_MIDDLEWARE_SVC).(*AuthMiddleware)

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	app := fiber.New(fiber.Config{
		ErrorHandler: svc.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(string) bool { return true },
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
	}))

	authHandler := handlers.NewAuthHandler(svc.authSvc)
	courseHandler := handlers.NewCourseHandler(svc.viewSvc, svc.mutationSvc)
	chatHandler := handlers.NewChatHandler(svc.chatSvc)
	notificationHandler := handlers.NewNotificationHandler(svc.notifySvc)

	required := svc.authMw.RequiredAuth()

	//Validation endpoints
	app.Get("/ping", svc.ping)

	// Page routes. Rendering belongs to the frontend bundle; these exist so
	// unauthenticated loads redirect through /login with next= preserved.
	app.Get("/login", svc.loginPage)
	app.Get("/", required, func(c *fiber.Ctx) error {
		return c.Redirect("/courses", fiber.StatusFound)
	})
	app.Get("/courses", required, courseHandler.ListCourses)

	v1 := app.Group("/api/v1")
	v1.Get("/ping", svc.ping)
	v1.Post("/auth/login", authHandler.Login)
	v1.Post("/auth/logout", required, authHandler.Logout)

	v1.Get("/courses", required, courseHandler.ListCourses)
	v1.Get("/courses/:courseId", required, courseHandler.GetCourse)
	v1.Get("/courses/:courseId/modules", required, courseHandler.GetModules)
	v1.Get("/courses/:courseId/modules/:moduleId/lessons/:lessonId", required, courseHandler.GetLesson)
	v1.Post("/courses/:courseId/enroll", required, courseHandler.Enroll)
	v1.Post("/courses/:courseId/unenroll", required, courseHandler.Unenroll)
	v1.Post("/courses/:courseId/modules/:moduleId/lessons/:lessonId/submissions", required, courseHandler.SubmitExercise)
	v1.Post("/courses/:courseId/exam", required, courseHandler.SubmitExam)

	v1.Post("/lessons/:lessonId/chat", required, chatHandler.StreamChat)
	v1.Get("/lessons/:lessonId/transcript", required, chatHandler.GetTranscript)
	v1.Delete("/lessons/:lessonId/transcript", required, chatHandler.ClearTranscript)

	v1.Get("/me/dashboard", required, courseHandler.Dashboard)
	v1.Get("/notifications", required, notificationHandler.GetNotifications)

	svc.server = app

	log.WithField("port", svc.port).Info("Gateway listening")
	return app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set("Cache-Control", "max-age=10")

	return shared.ResponseJSON(c, http.StatusOK, "Success", "pong")
}

func (svc *HttpService) loginPage(c *fiber.Ctx) error {
	return shared.ResponseJSON(c, http.StatusOK, "Login required", fiber.Map{
		"next": c.Query("next", "/"),
	})
}

// handleError maps service errors onto user-facing responses. A dead session
// forces logout everywhere; transport and decode failures surface as generic
// messages, never as raw error text.
func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	if errors.Is(err, shared.ErrSessionExpired) {
		c.Cookie(&fiber.Cookie{
			Name:     shared.SessionCookie,
			Value:    "",
			Expires:  time.Now().Add(-time.Hour),
			HTTPOnly: true,
		})
		if isAPIRequest(c) {
			return shared.ResponseJSON(c, http.StatusUnauthorized, "Your session has expired. Please log in again.", nil)
		}
		return c.Redirect("/login?next="+url.QueryEscape(c.OriginalURL()), fiber.StatusFound)
	}

	if errors.Is(err, shared.ErrUpstreamUnavailable) {
		log.WithError(err).Warn("Upstream unreachable")
		return shared.ResponseJSON(c, http.StatusServiceUnavailable, "The learning platform is unreachable. Please try again.", nil)
	}

	var decodeErr *shared.DecodeError
	if errors.As(err, &decodeErr) {
		log.WithError(err).WithField("path", decodeErr.Path).Error("Bad upstream payload")
		return shared.ResponseJSON(c, http.StatusBadGateway, "Received an invalid response from the learning platform.", nil)
	}

	if appErr, ok := shared.GetAppError(err); ok {
		return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, appErr.Data)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	return shared.ResponseInternalError(c, err)
}
