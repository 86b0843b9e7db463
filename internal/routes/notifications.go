package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/docuport/portal-api/internal/distribution"
	"github.com/docuport/portal-api/internal/middleware"
)

// NotificationHandler handles a distributor's document notifications
type NotificationHandler struct {
	distribution *distribution.Service
	logger       *logrus.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(distributionService *distribution.Service, logger *logrus.Logger) *NotificationHandler {
	return &NotificationHandler{
		distribution: distributionService,
		logger:       logger,
	}
}

// List returns the caller's notifications
// @Summary List notifications
// @Description List the caller's notifications, optionally unread only
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread notifications"
// @Success 200 {array} models.Notification "Notifications"
// @Router /api/v1/notifications [get]
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	identity := middleware.Identity(c)
	unreadOnly := c.QueryBool("unread")

	notifications, err := h.distribution.ListNotifications(c.Context(), identity, unreadOnly)
	if err != nil {
		return middleware.RespondError(c, err)
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// MarkRead marks one of the caller's notifications as read
// @Summary Mark notification read
// @Description Mark a notification read; repeat calls are no-ops
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204 "Marked read"
// @Failure 404 {object} errors.ErrorResponse "Not found"
// @Router /api/v1/notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	identity := middleware.Identity(c)

	if err := h.distribution.MarkRead(c.Context(), identity, c.Params("id")); err != nil {
		return middleware.RespondError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
