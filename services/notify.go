package services

import (
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/pybridge-app/pybridge/model"
	"github.com/pybridge-app/pybridge/shared"
	log "github.com/sirupsen/logrus"
)

// NotifyService is the in-process notification center behind the UI toasts.
// Mutations and the upstream client push into it; the gateway surface reads
// recent entries back out. It owns no rendering.
type NotifyService struct {
	appContext.DefaultService

	mu     sync.Mutex
	recent []model.Notification
	subs   map[int]func(model.Notification)
	nextID int
}

const NOTIFY_SVC = "notify_svc"

const maxRecentNotifications = 50

func (svc NotifyService) Id() string {
	return NOTIFY_SVC
}

func (svc *NotifyService) Configure(ctx *appContext.Context) error {
	svc.subs = make(map[int]func(model.Notification))
	return svc.DefaultService.Configure(ctx)
}

func (svc *NotifyService) Start() error {
	return nil
}

func (svc *NotifyService) Push(level, message, detail string) {
	n := model.Notification{
		Level:     level,
		Message:   message,
		Detail:    detail,
		CreatedAt: time.Now(),
	}

	svc.mu.Lock()
	if svc.subs == nil {
		svc.subs = make(map[int]func(model.Notification))
	}
	svc.recent = append(svc.recent, n)
	if len(svc.recent) > maxRecentNotifications {
		svc.recent = svc.recent[len(svc.recent)-maxRecentNotifications:]
	}
	subs := make([]func(model.Notification), 0, len(svc.subs))
	for _, fn := range svc.subs {
		subs = append(subs, fn)
	}
	svc.mu.Unlock()

	if level == shared.NotifyError {
		log.WithField("detail", detail).Warn(message)
	}

	for _, fn := range subs {
		fn(n)
	}
}

func (svc *NotifyService) Success(message string) {
	svc.Push(shared.NotifySuccess, message, "")
}

func (svc *NotifyService) Error(message, detail string) {
	svc.Push(shared.NotifyError, message, detail)
}

func (svc *NotifyService) Recent() []model.Notification {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	out := make([]model.Notification, len(svc.recent))
	copy(out, svc.recent)
	return out
}

func (svc *NotifyService) Subscribe(fn func(model.Notification)) func() {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if svc.subs == nil {
		svc.subs = make(map[int]func(model.Notification))
	}
	id := svc.nextID
	svc.nextID++
	svc.subs[id] = fn

	return func() {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		delete(svc.subs, id)
	}
}
