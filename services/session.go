package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pybridge-app/pybridge/model"
)

// SessionService keeps one upstream bearer token per gateway session. The
// token is opaque to us; claims are parsed unverified only to learn the user
// id and expiry, so already-expired tokens are dropped without a round trip.
type SessionService struct {
	appContext.DefaultService

	kvSvc KeyValueStore

	SessionDuration time.Duration
}

const SESSION_SVC = "session_svc"

func (svc SessionService) Id() string {
	return SESSION_SVC
}

func (svc *SessionService) Configure(ctx *appContext.Context) error {
	svc.kvSvc = ctx.Service(REDIS_SVC).(*RedisService)
	svc.SessionDuration = 24 * time.Hour
	return svc.DefaultService.Configure(ctx)
}

func (svc *SessionService) Start() error {
	return nil
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

// Create stores the token under a fresh session id and returns the session.
func (svc *SessionService) Create(ctx context.Context, accessToken string) (*model.Session, error) {
	userID, expiresAt, err := inspectToken(accessToken)
	if err != nil {
		return nil, err
	}

	ttl := svc.SessionDuration
	if !expiresAt.IsZero() {
		if time.Until(expiresAt) <= 0 {
			return nil, errors.New("token has expired")
		}
		if until := time.Until(expiresAt); until < ttl {
			ttl = until
		}
	} else {
		expiresAt = time.Now().Add(ttl)
	}

	sessionID := uuid.NewString()
	if userID == "" {
		// Opaque token with no readable subject; scope cached per-user state
		// to the session instead.
		userID = sessionID
	}

	session := &model.Session{
		ID:          sessionID,
		UserID:      userID,
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
	}

	if err := svc.kvSvc.Set(ctx, sessionKey(session.ID), session, ttl); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	return session, nil
}

// Lookup returns the session for the id, or nil when absent or expired.
// Expired sessions are removed on the way out.
func (svc *SessionService) Lookup(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	var session model.Session
	if err := svc.kvSvc.GetJSON(ctx, sessionKey(sessionID), &session); err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, nil
	}

	if !session.ExpiresAt.IsZero() && time.Until(session.ExpiresAt) <= 0 {
		_ = svc.kvSvc.Delete(ctx, sessionKey(sessionID))
		return nil, nil
	}

	return &session, nil
}

func (svc *SessionService) Destroy(ctx context.Context, sessionID string) error {
	return svc.kvSvc.Delete(ctx, sessionKey(sessionID))
}

func inspectToken(accessToken string) (string, time.Time, error) {
	if accessToken == "" {
		return "", time.Time{}, errors.New("access token is missing")
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		// Not a JWT. The backend owns verification; we just can't read the
		// expiry, so store it as-is.
		return "", time.Time{}, nil
	}

	userID, _ := claims["sub"].(string)

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}

	return userID, expiresAt, nil
}

func ExtractTokenFromHeader(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return "", errors.New("invalid authorization header format")
	}

	return authHeader[7:], nil
}
