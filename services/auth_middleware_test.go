package services

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/pybridge-app/pybridge/shared"
)

func newTestAuthApp(t *testing.T) (*fiber.App, *SessionService) {
	t.Helper()

	sessionSvc := &SessionService{kvSvc: newMemoryStore(), SessionDuration: 24 * time.Hour}
	mw := &AuthMiddleware{sessionSvc: sessionSvc}

	app := fiber.New()
	app.Get("/api/v1/courses", mw.RequiredAuth(), func(c *fiber.Ctx) error {
		session := SessionFromCtx(c)
		if session == nil {
			t.Error("session missing from locals")
		}
		return shared.ResponseOK(c, "ok")
	})
	app.Get("/courses", mw.RequiredAuth(), func(c *fiber.Ctx) error {
		return shared.ResponseOK(c, "page")
	})

	return app, sessionSvc
}

func TestRequiredAuthAPIRequest(t *testing.T) {
	app, sessionSvc := newTestAuthApp(t)

	t.Run("without cookie returns 401", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil))
		if err != nil {
			t.Fatalf("test: %v", err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})

	t.Run("with live session passes through", func(t *testing.T) {
		session, err := sessionSvc.Create(t.Context(), signedToken(t, "u1", time.Hour))
		if err != nil {
			t.Fatalf("create session: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil)
		req.AddCookie(&http.Cookie{Name: shared.SessionCookie, Value: session.ID})

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("test: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("with stale cookie returns 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil)
		req.AddCookie(&http.Cookie{Name: shared.SessionCookie, Value: "gone"})

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("test: %v", err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", resp.StatusCode)
		}
	})
}

func TestRequiredAuthPageRedirect(t *testing.T) {
	app, _ := newTestAuthApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/courses?tab=all", nil))
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}

	location := resp.Header.Get("Location")
	parsed, err := url.Parse(location)
	if err != nil {
		t.Fatalf("parse location %q: %v", location, err)
	}
	if parsed.Path != "/login" {
		t.Errorf("redirect path = %q, want /login", parsed.Path)
	}
	if next := parsed.Query().Get("next"); next != "/courses?tab=all" {
		t.Errorf("next = %q, want the original URL preserved", next)
	}
}
