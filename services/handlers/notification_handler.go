package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pybridge-app/pybridge/shared"
)

type NotificationHandler struct {
	notifySvc NotifyServiceInterface
}

func NewNotificationHandler(notifySvc NotifyServiceInterface) *NotificationHandler {
	return &NotificationHandler{
		notifySvc: notifySvc,
	}
}

// @Summary Recent notifications
// @Description Transient success and error messages raised by mutations
// @Tags notifications
// @Produce json
// @Success 200 {object} shared.Response{data=[]model.Notification}
// @Router /api/v1/notifications [get]
func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	return shared.ResponseOK(c, h.notifySvc.Recent())
}
