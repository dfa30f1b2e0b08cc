package services

import (
	"context"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"

	"github.com/pybridge-app/pybridge/dto"
	"github.com/pybridge-app/pybridge/model"
)

// AuthService exchanges credentials for an upstream token and binds it to a
// gateway session. The gateway never verifies tokens itself.
type AuthService struct {
	appContext.DefaultService

	upstreamSvc *UpstreamService
	sessionSvc  *SessionService
	cacheSvc    *QueryCacheService
}

const AUTH_SVC = "auth_svc"

func (svc AuthService) Id() string {
	return AUTH_SVC
}

func (svc *AuthService) Configure(ctx *appContext.Context) error {
	svc.upstreamSvc = ctx.Service(UPSTREAM_SVC).(*UpstreamService)
	svc.sessionSvc = ctx.Service(SESSION_SVC).(*SessionService)
	svc.cacheSvc = ctx.Service(QUERY_CACHE_SVC).(*QueryCacheService)
	return svc.DefaultService.Configure(ctx)
}

func (svc *AuthService) Start() error {
	return nil
}

func (svc *AuthService) Login(ctx context.Context, req dto.LoginRequest) (*model.Session, error) {
	token, err := svc.upstreamSvc.Login(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	session, err := svc.sessionSvc.Create(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	log.WithField("user_id", session.UserID).Info("User logged in")
	return session, nil
}

// Logout tells the backend, drops the session and flushes everything cached
// for it. Upstream failures are logged, not surfaced; the local session dies
// either way.
func (svc *AuthService) Logout(ctx context.Context, session *model.Session) error {
	if session == nil {
		return nil
	}

	if err := svc.upstreamSvc.Logout(ctx, session); err != nil {
		log.WithError(err).WithField("user_id", session.UserID).Warn("Upstream logout failed")
	}

	svc.cacheSvc.Clear()

	return svc.sessionSvc.Destroy(ctx, session.ID)
}
