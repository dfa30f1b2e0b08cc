package services

import (
	"net/url"
	"strings"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"

	"github.com/pybridge-app/pybridge/model"
	"github.com/pybridge-app/pybridge/shared"
)

type AuthMiddleware struct {
	appContext.DefaultService

	sessionSvc *SessionService
}

const AUTH_MIDDLEWARE_SVC = "auth"

func (svc AuthMiddleware) Id() string {
	return AUTH_MIDDLEWARE_SVC
}

func (svc *AuthMiddleware) Configure(ctx *appContext.Context) error {
	svc.sessionSvc = ctx.Service(SESSION_SVC).(*SessionService)
	return svc.DefaultService.Configure(ctx)
}

func (svc *AuthMiddleware) Start() error {
	return nil
}

// RequiredAuth gates a route on a live gateway session. Unauthenticated API
// calls get 401; unauthenticated page loads are sent to the login view with
// the originally requested path preserved for the post-login redirect.
func (svc *AuthMiddleware) RequiredAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Cookies(shared.SessionCookie)

		session, err := svc.sessionSvc.Lookup(c.UserContext(), sessionID)
		if err != nil {
			return shared.ResponseInternalError(c, err)
		}
		if session == nil {
			if isAPIRequest(c) {
				return shared.ResponseUnauthorized(c)
			}
			return c.Redirect("/login?next="+url.QueryEscape(c.OriginalURL()), fiber.StatusFound)
		}

		c.Locals(shared.SessionID, session)
		return c.Next()
	}
}

func isAPIRequest(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), "/api/")
}

// SessionFromCtx returns the session set by RequiredAuth.
func SessionFromCtx(c *fiber.Ctx) *model.Session {
	session, _ := c.Locals(shared.SessionID).(*model.Session)
	return session
}
