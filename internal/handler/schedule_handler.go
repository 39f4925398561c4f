package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stageline/webinar-mailer/internal/domain"
	"github.com/stageline/webinar-mailer/internal/repository"
	"github.com/stageline/webinar-mailer/internal/service"
)

const defaultAttemptLimit = 50

type ControlService interface {
	GetStatus(ctx context.Context) (*service.StatusReport, error)
	EnsureDefaults(ctx context.Context) error
	UpdateSchedule(ctx context.Context, slot domain.SlotID, update repository.ScheduleUpdate) (*domain.Schedule, error)
	TriggerNow(ctx context.Context, slot domain.SlotID) (*service.DispatchSummary, error)
	Reset(ctx context.Context, slot domain.SlotID) error
	SendTest(ctx context.Context, slot domain.SlotID, recipient string) error
	RecentAttempts(ctx context.Context, slot domain.SlotID, limit int) ([]domain.EmailAttempt, error)
}

type ScheduleHandler struct {
	control ControlService
}

func NewScheduleHandler(control ControlService) (*ScheduleHandler, error) {
	if control == nil {
		return nil, fmt.Errorf("control service is required")
	}
	return &ScheduleHandler{control: control}, nil
}

func RegisterScheduleRoutes(router fiber.Router, control ControlService) error {
	h, err := NewScheduleHandler(control)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/schedules", h.GetStatus)
	v1.Post("/schedules/defaults", h.EnsureDefaults)
	v1.Patch("/schedules/:slot", h.UpdateSchedule)
	v1.Post("/schedules/:slot/trigger", h.TriggerNow)
	v1.Post("/schedules/:slot/reset", h.Reset)
	v1.Post("/schedules/:slot/test", h.SendTest)
	v1.Get("/schedules/:slot/attempts", h.ListAttempts)

	return nil
}

type updateScheduleRequest struct {
	DueAt   *string `json:"dueAt"`
	Subject *string `json:"subject"`
	Enabled *bool   `json:"enabled"`
}

type sendTestRequest struct {
	Recipient string `json:"recipient"`
}

type scheduleViewResponse struct {
	Slot           int        `json:"slot"`
	Kind           string     `json:"kind"`
	DueAt          *time.Time `json:"dueAt,omitempty"`
	DueAtLocal     *time.Time `json:"dueAtLocal,omitempty"`
	Enabled        bool       `json:"enabled"`
	Status         string     `json:"status"`
	Subject        string     `json:"subject"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	LastRunAtLocal *time.Time `json:"lastRunAtLocal,omitempty"`
	Stranded       bool       `json:"stranded,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
}

type statusResponse struct {
	SchedulerRunning bool                   `json:"schedulerRunning"`
	CurrentTime      time.Time              `json:"currentTime"`
	CurrentTimeLocal time.Time              `json:"currentTimeLocal"`
	Schedules        []scheduleViewResponse `json:"schedules"`
}

type scheduleResponse struct {
	Slot      int        `json:"slot"`
	DueAt     *time.Time `json:"dueAt,omitempty"`
	Enabled   bool       `json:"enabled"`
	Status    string     `json:"status"`
	Subject   string     `json:"subject"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
}

type dispatchSummaryResponse struct {
	Slot         int `json:"slot"`
	SuccessCount int `json:"successCount"`
	FailureCount int `json:"failureCount"`
}

type attemptResponse struct {
	ID        string    `json:"id"`
	Slot      int       `json:"slot"`
	Kind      string    `json:"kind"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Success   bool      `json:"success"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *ScheduleHandler) GetStatus(c *fiber.Ctx) error {
	report, err := h.control.GetStatus(c.Context())
	if err != nil {
		return toHTTPError(err)
	}

	schedules := make([]scheduleViewResponse, 0, len(report.Schedules))
	for _, view := range report.Schedules {
		schedules = append(schedules, scheduleViewResponse{
			Slot:           view.Slot.Int(),
			Kind:           view.Kind.String(),
			DueAt:          view.DueAt,
			DueAtLocal:     view.DueAtLocal,
			Enabled:        view.Enabled,
			Status:         view.Status.String(),
			Subject:        view.Subject,
			LastRunAt:      view.LastRunAt,
			LastRunAtLocal: view.LastRunAtLocal,
			Stranded:       view.Stranded,
			LastError:      view.LastError,
		})
	}

	return c.Status(fiber.StatusOK).JSON(statusResponse{
		SchedulerRunning: report.SchedulerRunning,
		CurrentTime:      report.CurrentTime,
		CurrentTimeLocal: report.CurrentTimeLocal,
		Schedules:        schedules,
	})
}

func (h *ScheduleHandler) EnsureDefaults(c *fiber.Ctx) error {
	if err := h.control.EnsureDefaults(c.Context()); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "ok",
	})
}

func (h *ScheduleHandler) UpdateSchedule(c *fiber.Ctx) error {
	slot, err := domain.ParseSlotIDFromString(c.Params("slot"))
	if err != nil {
		return toHTTPError(err)
	}

	var req updateScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	update := repository.ScheduleUpdate{
		Subject: req.Subject,
		Enabled: req.Enabled,
	}
	if req.DueAt != nil {
		dueAt, err := parseRFC3339(*req.DueAt, "dueAt")
		if err != nil {
			return toHTTPError(err)
		}
		update.DueAt = dueAt
	}

	schedule, err := h.control.UpdateSchedule(c.Context(), slot, update)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toScheduleResponse(schedule))
}

func (h *ScheduleHandler) TriggerNow(c *fiber.Ctx) error {
	slot, err := domain.ParseSlotIDFromString(c.Params("slot"))
	if err != nil {
		return toHTTPError(err)
	}

	summary, err := h.control.TriggerNow(c.Context(), slot)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(dispatchSummaryResponse{
		Slot:         slot.Int(),
		SuccessCount: summary.SuccessCount,
		FailureCount: summary.FailureCount,
	})
}

func (h *ScheduleHandler) Reset(c *fiber.Ctx) error {
	slot, err := domain.ParseSlotIDFromString(c.Params("slot"))
	if err != nil {
		return toHTTPError(err)
	}

	if err := h.control.Reset(c.Context(), slot); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"slot":   slot.Int(),
		"status": domain.StatusPending.String(),
	})
}

func (h *ScheduleHandler) SendTest(c *fiber.Ctx) error {
	slot, err := domain.ParseSlotIDFromString(c.Params("slot"))
	if err != nil {
		return toHTTPError(err)
	}

	var req sendTestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.control.SendTest(c.Context(), slot, req.Recipient); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"slot":      slot.Int(),
		"recipient": strings.TrimSpace(req.Recipient),
		"status":    "sent",
	})
}

func (h *ScheduleHandler) ListAttempts(c *fiber.Ctx) error {
	slot, err := domain.ParseSlotIDFromString(c.Params("slot"))
	if err != nil {
		return toHTTPError(err)
	}

	limit := c.QueryInt("limit", defaultAttemptLimit)
	attempts, err := h.control.RecentAttempts(c.Context(), slot, limit)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]attemptResponse, 0, len(attempts))
	for _, attempt := range attempts {
		responses = append(responses, attemptResponse{
			ID:        attempt.ID,
			Slot:      attempt.Slot.Int(),
			Kind:      string(attempt.Kind),
			Recipient: attempt.Recipient,
			Subject:   attempt.Subject,
			Success:   attempt.Success,
			Error:     attempt.Error,
			CreatedAt: attempt.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data": responses,
	})
}

func toScheduleResponse(s *domain.Schedule) scheduleResponse {
	if s == nil {
		return scheduleResponse{}
	}

	return scheduleResponse{
		Slot:      s.Slot.Int(),
		DueAt:     s.DueAt,
		Enabled:   s.Enabled,
		Status:    s.Status.String(),
		Subject:   s.EffectiveSubject(),
		LastRunAt: s.LastRunAt,
	}
}

func parseRFC3339(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	utc := t.UTC()
	return &utc, nil
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
