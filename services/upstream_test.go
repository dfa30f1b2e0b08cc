package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pybridge-app/pybridge/shared"
)

func newTestUpstream(t *testing.T, handler http.Handler) (*UpstreamService, *SessionService, *NotifyService) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sessionSvc := &SessionService{kvSvc: newMemoryStore(), SessionDuration: 24 * time.Hour}
	notifySvc := &NotifyService{}

	return &UpstreamService{
		sessionSvc:  sessionSvc,
		notifySvc:   notifySvc,
		baseURL:     server.URL,
		client:      server.Client(),
		readRetries: 1,
	}, sessionSvc, notifySvc
}

func TestUpstreamAttachesBearerToken(t *testing.T) {
	var authHeader string
	svc, _, _ := newTestUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))

	if _, err := svc.Courses(context.Background(), testSession()); err != nil {
		t.Fatalf("courses: %v", err)
	}
	if authHeader != "Bearer token-1" {
		t.Errorf("authorization = %q, want Bearer token-1", authHeader)
	}
}

// failingTransport fails every request at the transport level, counting
// attempts.
type failingTransport struct {
	attempts int
}

func (f *failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.attempts++
	return nil, errors.New("connection refused")
}

func TestUpstreamRetriesReadsOnly(t *testing.T) {
	t.Run("idempotent read retries once", func(t *testing.T) {
		transport := &failingTransport{}
		svc := &UpstreamService{
			baseURL:     "http://upstream.test",
			client:      &http.Client{Transport: transport},
			readRetries: 1,
		}

		_, err := svc.Courses(context.Background(), testSession())
		if !errors.Is(err, shared.ErrUpstreamUnavailable) {
			t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
		}
		if transport.attempts != 2 {
			t.Errorf("attempts = %d, want 2", transport.attempts)
		}
	})

	t.Run("mutation never retries", func(t *testing.T) {
		transport := &failingTransport{}
		svc := &UpstreamService{
			baseURL:     "http://upstream.test",
			client:      &http.Client{Transport: transport},
			readRetries: 1,
		}

		err := svc.Enroll(context.Background(), testSession(), 5)
		if !errors.Is(err, shared.ErrUpstreamUnavailable) {
			t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
		}
		if transport.attempts != 1 {
			t.Errorf("attempts = %d, want 1", transport.attempts)
		}
	})
}

func TestUpstreamUnauthorizedTearsDownSession(t *testing.T) {
	svc, sessionSvc, notifySvc := newTestUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	ctx := context.Background()

	session, err := sessionSvc.Create(ctx, signedToken(t, "u1", time.Hour))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	_, err = svc.Courses(ctx, session)
	if !errors.Is(err, shared.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}

	stored, err := sessionSvc.Lookup(ctx, session.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored != nil {
		t.Error("session must be destroyed after upstream 401")
	}

	recent := notifySvc.Recent()
	if len(recent) == 0 || recent[len(recent)-1].Level != shared.NotifyInfo {
		t.Errorf("notifications = %+v, want session-expired info", recent)
	}
}

func TestUpstreamLogout401DoesNotRecurse(t *testing.T) {
	svc, sessionSvc, _ := newTestUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	ctx := context.Background()

	session, err := sessionSvc.Create(ctx, signedToken(t, "u1", time.Hour))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	err = svc.Logout(ctx, session)
	if errors.Is(err, shared.ErrSessionExpired) {
		t.Fatal("logout must not trigger the forced-logout path")
	}
	if _, ok := shared.GetAppError(err); !ok {
		t.Fatalf("err = %v, want plain AppError", err)
	}
}

func TestUpstreamErrorDetail(t *testing.T) {
	svc, _, _ := newTestUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"detail":"Already enrolled in this course"}`))
	}))

	err := svc.Enroll(context.Background(), testSession(), 5)
	appErr, ok := shared.GetAppError(err)
	if !ok {
		t.Fatalf("err = %v, want AppError", err)
	}
	if appErr.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", appErr.StatusCode)
	}
	if appErr.Message != "Already enrolled in this course" {
		t.Errorf("message = %q, want the upstream detail", appErr.Message)
	}
}

func TestUpstreamDecodeFailures(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		svc, _, _ := newTestUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		}))

		_, err := svc.Courses(context.Background(), testSession())
		var decodeErr *shared.DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("err = %v, want DecodeError", err)
		}
	})

	t.Run("schema violation", func(t *testing.T) {
		// Courses must carry id and title.
		svc, _, _ := newTestUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"description": "no id or title"}]`))
		}))

		_, err := svc.Courses(context.Background(), testSession())
		var decodeErr *shared.DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("err = %v, want DecodeError", err)
		}
	})
}

func TestUpstreamLogin(t *testing.T) {
	svc, _, _ := newTestUpstream(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/login" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %q, want form encoding", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("username") != "student" || r.PostForm.Get("password") != "secret" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "tok-123", "token_type": "bearer"}`))
	}))

	token, err := svc.Login(context.Background(), "student", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token.AccessToken != "tok-123" {
		t.Errorf("token = %+v", token)
	}
}
