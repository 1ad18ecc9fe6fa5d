package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/notifygov/delivery-engine/internal/domain"
)

type NotificationService interface {
	Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
}

type CallbackService interface {
	Register(ctx context.Context, serviceID string, callbackType domain.ServiceCallbackType, callbackURL string, bearerToken string) (*domain.ServiceCallback, error)
}

type NotificationHandler struct {
	notifications NotificationService
	callbacks     CallbackService
}

func NewNotificationHandler(notifications NotificationService, callbacks CallbackService) (*NotificationHandler, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	if callbacks == nil {
		return nil, fmt.Errorf("callback service is required")
	}
	return &NotificationHandler{notifications: notifications, callbacks: callbacks}, nil
}

func RegisterNotificationRoutes(router fiber.Router, notifications NotificationService, callbacks CallbackService) error {
	h, err := NewNotificationHandler(notifications, callbacks)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.CreateNotification)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Put("/services/:serviceId/callbacks", h.RegisterCallback)

	return nil
}

type createNotificationRequest struct {
	ServiceID       string  `json:"serviceId"`
	TemplateID      string  `json:"templateId"`
	ClientReference *string `json:"reference"`
	IdempotencyKey  *string `json:"idempotencyKey"`
	Type            string  `json:"notificationType"`
	Priority        string  `json:"priority"`
	Recipient       string  `json:"to"`
	Subject         *string `json:"subject"`
	Content         string  `json:"content"`
	MaxRetries      *int    `json:"maxRetries,omitempty"`
}

type notificationResponse struct {
	ID                string     `json:"id"`
	ServiceID         string     `json:"serviceId"`
	TemplateID        string     `json:"templateId"`
	ClientReference   *string    `json:"reference,omitempty"`
	IdempotencyKey    *string    `json:"idempotencyKey,omitempty"`
	Type              string     `json:"notificationType"`
	Priority          string     `json:"priority"`
	Recipient         string     `json:"to"`
	Status            string     `json:"status"`
	StatusReason      *string    `json:"statusReason,omitempty"`
	SentBy            *string    `json:"sentBy,omitempty"`
	ProviderReference *string    `json:"providerReference,omitempty"`
	AttemptCount      int        `json:"attemptCount"`
	MaxRetries        int        `json:"maxRetries"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt,omitempty"`
	UpdatedAt         time.Time  `json:"updatedAt,omitempty"`
}

type registerCallbackRequest struct {
	Type        string `json:"callbackType"`
	URL         string `json:"url"`
	BearerToken string `json:"bearerToken"`
}

func (h *NotificationHandler) CreateNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notification, err := requestToDomainNotification(req)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.notifications.Create(c.Context(), &notification)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toNotificationResponse(created))
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	notification, err := h.notifications.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) RegisterCallback(c *fiber.Ctx) error {
	var req registerCallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	serviceID := strings.TrimSpace(c.Params("serviceId"))
	registration, err := h.callbacks.Register(c.Context(), serviceID, domain.ServiceCallbackType(req.Type), req.URL, req.BearerToken)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":           registration.ID,
		"serviceId":    registration.ServiceID,
		"callbackType": string(registration.Type),
		"url":          registration.URL,
	})
}

func requestToDomainNotification(req createNotificationRequest) (domain.Notification, error) {
	notificationType, err := domain.ParseNotificationTypeFromString(req.Type)
	if err != nil {
		return domain.Notification{}, err
	}

	priority, err := domain.ParsePriorityFromString(req.Priority)
	if err != nil {
		return domain.Notification{}, err
	}

	n := domain.Notification{
		ServiceID:       strings.TrimSpace(req.ServiceID),
		TemplateID:      strings.TrimSpace(req.TemplateID),
		ClientReference: req.ClientReference,
		IdempotencyKey:  req.IdempotencyKey,
		Type:            notificationType,
		Priority:        priority,
		Recipient:       strings.TrimSpace(req.Recipient),
		Subject:         req.Subject,
		Content:         strings.TrimSpace(req.Content),
	}
	if req.MaxRetries != nil {
		n.MaxRetries = *req.MaxRetries
	}

	return n, nil
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	var sentBy *string
	if n.SentBy != nil {
		value := n.SentBy.String()
		sentBy = &value
	}

	return notificationResponse{
		ID:                n.ID,
		ServiceID:         n.ServiceID,
		TemplateID:        n.TemplateID,
		ClientReference:   n.ClientReference,
		IdempotencyKey:    n.IdempotencyKey,
		Type:              n.Type.String(),
		Priority:          n.Priority.String(),
		Recipient:         n.Recipient,
		Status:            n.Status.String(),
		StatusReason:      n.StatusReason,
		SentBy:            sentBy,
		ProviderReference: n.ProviderReference,
		AttemptCount:      n.AttemptCount,
		MaxRetries:        n.MaxRetries,
		SentAt:            n.SentAt,
		CompletedAt:       n.CompletedAt,
		CreatedAt:         n.CreatedAt,
		UpdatedAt:         n.UpdatedAt,
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
