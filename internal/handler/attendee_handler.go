package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stageline/webinar-mailer/internal/domain"
)

type AttendeeService interface {
	Register(ctx context.Context, name, email string) (*domain.Attendee, error)
	Get(ctx context.Context, id string) (*domain.Attendee, error)
	List(ctx context.Context) ([]domain.Attendee, error)
}

type AttendeeHandler struct {
	service AttendeeService
}

func NewAttendeeHandler(service AttendeeService) (*AttendeeHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("attendee service is required")
	}
	return &AttendeeHandler{service: service}, nil
}

func RegisterAttendeeRoutes(router fiber.Router, service AttendeeService) error {
	h, err := NewAttendeeHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/attendees", h.Register)
	v1.Get("/attendees", h.List)
	v1.Get("/attendees/:id", h.Get)

	return nil
}

type registerAttendeeRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type attendeeResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Slot1Sent     bool      `json:"slot1Sent"`
	Slot2Sent     bool      `json:"slot2Sent"`
	Slot3Sent     bool      `json:"slot3Sent"`
	PostEventSent bool      `json:"postEventSent"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (h *AttendeeHandler) Register(c *fiber.Ctx) error {
	var req registerAttendeeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	attendee, err := h.service.Register(c.Context(), req.Name, req.Email)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toAttendeeResponse(attendee))
}

func (h *AttendeeHandler) Get(c *fiber.Ctx) error {
	attendee, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toAttendeeResponse(attendee))
}

func (h *AttendeeHandler) List(c *fiber.Ctx) error {
	attendees, err := h.service.List(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]attendeeResponse, 0, len(attendees))
	for i := range attendees {
		responses = append(responses, toAttendeeResponse(&attendees[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": responses,
	})
}

// The survey token is a secret; it is deliberately absent from responses.
func toAttendeeResponse(a *domain.Attendee) attendeeResponse {
	if a == nil {
		return attendeeResponse{}
	}

	return attendeeResponse{
		ID:            a.ID,
		Name:          a.Name,
		Email:         a.Email,
		Slot1Sent:     a.Slot1Sent,
		Slot2Sent:     a.Slot2Sent,
		Slot3Sent:     a.Slot3Sent,
		PostEventSent: a.PostEventSent,
		CreatedAt:     a.CreatedAt,
	}
}
