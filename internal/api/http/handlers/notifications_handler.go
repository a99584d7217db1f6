package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/case-service/internal/api/dto"
	"github.com/spec-kit/case-service/internal/domain"
	"github.com/spec-kit/case-service/internal/service"
)

// NotificationsHandler serves the durable notification ledger.
type NotificationsHandler struct {
	notifications *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notifications *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications}
}

// List GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	filter := service.NotificationListFilter{
		UnreadOnly: c.QueryBool("unread_only", false),
		Limit:      c.QueryInt("limit", 50),
		Offset:     c.QueryInt("offset", 0),
	}
	result, err := h.notifications.List(c.UserContext(), principal.Identity(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": toNotificationResponses(result)})
}

// UnreadCount GET /notifications/unread-count.
func (h *NotificationsHandler) UnreadCount(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	count, err := h.notifications.UnreadCount(c.UserContext(), principal.Identity())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UnreadCountResponse{Unread: count}})
}

// MarkRead POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if err := h.notifications.MarkRead(c.UserContext(), principal.Identity(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"read": true}})
}

// MarkAllRead POST /notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if err := h.notifications.MarkAllRead(c.UserContext(), principal.Identity()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"read": true}})
}

// Delete DELETE /notifications/:id.
func (h *NotificationsHandler) Delete(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if err := h.notifications.Delete(c.UserContext(), principal.Identity(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

// ClearRead DELETE /notifications/read.
func (h *NotificationsHandler) ClearRead(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if err := h.notifications.ClearRead(c.UserContext(), principal.Identity()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"cleared": true}})
}

func toNotificationResponses(items []domain.Notification) []dto.NotificationResponse {
	out := make([]dto.NotificationResponse, 0, len(items))
	for i := range items {
		n := &items[i]
		out = append(out, dto.NotificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Body:      n.Body,
			CaseID:    n.CaseID,
			Read:      n.Read,
			Metadata:  n.Metadata,
			CreatedAt: n.CreatedAt,
		})
	}
	return out
}
