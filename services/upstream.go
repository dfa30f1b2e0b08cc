package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/pybridge-app/pybridge/dto"
	"github.com/pybridge-app/pybridge/model"
	"github.com/pybridge-app/pybridge/shared"
)

// UpstreamService is the single HTTP transport to the learning API. All
// business logic lives upstream; this client attaches the bearer token,
// enforces the global 401/403 handling and decodes payloads at the boundary.
type UpstreamService struct {
	appContext.DefaultService

	sessionSvc *SessionService
	notifySvc  *NotifyService

	baseURL     string
	client      *http.Client
	readRetries int
}

const UPSTREAM_SVC = "upstream_svc"

const apiPrefix = "/api/v1"

const (
	loginPath  = apiPrefix + "/auth/login"
	logoutPath = apiPrefix + "/auth/logout"
)

func (svc UpstreamService) Id() string {
	return UPSTREAM_SVC
}

func (svc *UpstreamService) Configure(ctx *appContext.Context) error {
	svc.sessionSvc = ctx.Service(SESSION_SVC).(*SessionService)
	svc.notifySvc = ctx.Service(NOTIFY_SVC).(*NotifyService)

	svc.baseURL = os.Getenv("UPSTREAM_BASE_URL")
	if svc.baseURL == "" {
		svc.baseURL = "http://localhost:8000"
	}
	svc.baseURL = strings.TrimRight(svc.baseURL, "/")

	timeout := 30 * time.Second
	if t := os.Getenv("UPSTREAM_TIMEOUT_SECONDS"); t != "" {
		if secs, err := strconv.Atoi(t); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}
	svc.client = &http.Client{Timeout: timeout}

	svc.readRetries = 1
	if r := os.Getenv("UPSTREAM_READ_RETRIES"); r != "" {
		if n, err := strconv.Atoi(r); err == nil && n >= 0 {
			svc.readRetries = n
		}
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *UpstreamService) Start() error {
	return nil
}

type upstreamRequest struct {
	Method     string
	Path       string
	Body       interface{}
	Form       url.Values
	Session    *model.Session
	Idempotent bool
	Accept     string
}

// Send performs one upstream exchange and decodes the response into out.
// Transport failures on idempotent reads are retried once; mutations never
// are. A 401/403 from anything but logout tears the session down and is
// terminal for the caller.
func (svc *UpstreamService) Send(ctx context.Context, req upstreamRequest, out interface{}) error {
	resp, err := svc.do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read upstream response: %w", err)
	}

	if err := svc.checkStatus(ctx, req, resp.StatusCode, body); err != nil {
		return err
	}

	if out == nil || len(body) == 0 {
		return nil
	}

	if err := shared.UnmarshalJSON(body, out); err != nil {
		return &shared.DecodeError{Path: req.Path, Err: err}
	}
	if err := dto.ValidateDecoded(out); err != nil {
		return &shared.DecodeError{Path: req.Path, Err: err}
	}

	return nil
}

// Stream performs the exchange and hands back the raw body for incremental
// consumption. The caller owns closing it.
func (svc *UpstreamService) Stream(ctx context.Context, req upstreamRequest) (io.ReadCloser, error) {
	req.Accept = "text/event-stream"

	resp, err := svc.do(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err := svc.checkStatus(ctx, req, resp.StatusCode, body); err != nil {
			return nil, err
		}
		return nil, shared.NewAppError(resp.StatusCode, "Unexpected upstream status", nil)
	}

	return resp.Body, nil
}

func (svc *UpstreamService) do(ctx context.Context, req upstreamRequest) (*http.Response, error) {
	attempts := 1
	if req.Idempotent {
		attempts += svc.readRetries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		httpReq, err := svc.buildRequest(ctx, req)
		if err != nil {
			return nil, err
		}

		resp, err := svc.client.Do(httpReq)
		if err == nil {
			recordUpstreamRequest(req.Method, resp.StatusCode)
			return resp, nil
		}

		lastErr = err
		if attempt < attempts-1 {
			log.WithError(err).WithField("path", req.Path).Debug("Retrying upstream read")
		}
	}

	recordUpstreamFailure(req.Method)
	return nil, fmt.Errorf("%w: %v", shared.ErrUpstreamUnavailable, lastErr)
}

func (svc *UpstreamService) buildRequest(ctx context.Context, req upstreamRequest) (*http.Request, error) {
	var reader io.Reader
	contentType := ""

	switch {
	case req.Form != nil:
		reader = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		data, err := shared.MarshalJSON(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, svc.baseURL+req.Path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}
	if req.Session != nil {
		httpReq.Header.Set("Authorization", "Bearer "+req.Session.AccessToken)
	}

	return httpReq, nil
}

func (svc *UpstreamService) checkStatus(ctx context.Context, req upstreamRequest, status int, body []byte) error {
	if status < 400 {
		return nil
	}

	if (status == http.StatusUnauthorized || status == http.StatusForbidden) && req.Path != logoutPath {
		if req.Session != nil {
			if err := svc.sessionSvc.Destroy(ctx, req.Session.ID); err != nil {
				log.WithError(err).Warn("Failed to destroy expired session")
			}
		}
		if svc.notifySvc != nil {
			svc.notifySvc.Push(shared.NotifyInfo, "Your session has expired, please sign in again", "")
		}
		return shared.ErrSessionExpired
	}

	detail := extractDetail(body)
	message := detail
	if message == "" {
		message = http.StatusText(status)
	}

	return shared.NewAppError(status, message, detail)
}

func extractDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload dto.UpstreamDetail
	if err := shared.UnmarshalJSON(body, &payload); err != nil {
		return ""
	}
	return payload.Detail
}

// ==================== AUTH ====================

func (svc *UpstreamService) Login(ctx context.Context, username, password string) (*dto.TokenResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var token dto.TokenResponse
	err := svc.Send(ctx, upstreamRequest{
		Method: http.MethodPost,
		Path:   loginPath,
		Form:   form,
	}, &token)
	if err != nil {
		return nil, err
	}

	return &token, nil
}

func (svc *UpstreamService) Logout(ctx context.Context, session *model.Session) error {
	return svc.Send(ctx, upstreamRequest{
		Method:  http.MethodPost,
		Path:    logoutPath,
		Session: session,
	}, nil)
}

// ==================== READS ====================

func (svc *UpstreamService) Courses(ctx context.Context, session *model.Session) ([]model.Course, error) {
	var courses []model.Course
	err := svc.Send(ctx, upstreamRequest{
		Method:     http.MethodGet,
		Path:       apiPrefix + "/courses",
		Session:    session,
		Idempotent: true,
	}, &courses)
	return courses, err
}

func (svc *UpstreamService) Course(ctx context.Context, session *model.Session, courseID int64) (*model.Course, error) {
	var course model.Course
	err := svc.Send(ctx, upstreamRequest{
		Method:     http.MethodGet,
		Path:       fmt.Sprintf("%s/courses/%d", apiPrefix, courseID),
		Session:    session,
		Idempotent: true,
	}, &course)
	if err != nil {
		return nil, err
	}
	return &course, nil
}

func (svc *UpstreamService) Modules(ctx context.Context, session *model.Session, courseID int64) ([]model.Module, error) {
	var modules []model.Module
	err := svc.Send(ctx, upstreamRequest{
		Method:     http.MethodGet,
		Path:       fmt.Sprintf("%s/courses/%d/modules", apiPrefix, courseID),
		Session:    session,
		Idempotent: true,
	}, &modules)
	return modules, err
}

func (svc *UpstreamService) Enrollments(ctx context.Context, session *model.Session) ([]model.Enrollment, error) {
	var enrollments []model.Enrollment
	err := svc.Send(ctx, upstreamRequest{
		Method:     http.MethodGet,
		Path:       apiPrefix + "/me/enrollments",
		Session:    session,
		Idempotent: true,
	}, &enrollments)
	return enrollments, err
}

func (svc *UpstreamService) CourseProgress(ctx context.Context, session *model.Session, courseID int64) (*model.CourseProgress, error) {
	var progress model.CourseProgress
	err := svc.Send(ctx, upstreamRequest{
		Method:     http.MethodGet,
		Path:       fmt.Sprintf("%s/courses/%d/progress", apiPrefix, courseID),
		Session:    session,
		Idempotent: true,
	}, &progress)
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

func (svc *UpstreamService) Lesson(ctx context.Context, session *model.Session, lessonID int64) (*model.Lesson, error) {
	var lesson model.Lesson
	err := svc.Send(ctx, upstreamRequest{
		Method:     http.MethodGet,
		Path:       fmt.Sprintf("%s/lessons/%d", apiPrefix, lessonID),
		Session:    session,
		Idempotent: true,
	}, &lesson)
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

// ==================== MUTATIONS ====================

func (svc *UpstreamService) Enroll(ctx context.Context, session *model.Session, courseID int64) error {
	return svc.Send(ctx, upstreamRequest{
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("%s/courses/%d/enroll", apiPrefix, courseID),
		Session: session,
	}, nil)
}

func (svc *UpstreamService) Unenroll(ctx context.Context, session *model.Session, courseID int64) error {
	return svc.Send(ctx, upstreamRequest{
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("%s/courses/%d/unenroll", apiPrefix, courseID),
		Session: session,
	}, nil)
}

func (svc *UpstreamService) SubmitExercise(ctx context.Context, session *model.Session, lessonID int64, req dto.SubmitExerciseRequest) (*dto.SubmitExerciseResponse, error) {
	var result dto.SubmitExerciseResponse
	err := svc.Send(ctx, upstreamRequest{
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("%s/lessons/%d/submissions", apiPrefix, lessonID),
		Body:    req,
		Session: session,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (svc *UpstreamService) SubmitExam(ctx context.Context, session *model.Session, courseID int64, answers map[string]interface{}) error {
	return svc.Send(ctx, upstreamRequest{
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("%s/courses/%d/exam/submissions", apiPrefix, courseID),
		Body:    answers,
		Session: session,
	}, nil)
}

func (svc *UpstreamService) ChatStream(ctx context.Context, session *model.Session, lessonID int64, message string) (io.ReadCloser, error) {
	return svc.Stream(ctx, upstreamRequest{
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("%s/lessons/%d/chat", apiPrefix, lessonID),
		Body:    dto.ChatRequest{Message: message},
		Session: session,
	})
}
