package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stageline/webinar-mailer/internal/domain"
	"github.com/stageline/webinar-mailer/internal/transport"
	"go.uber.org/zap"
)

func newAttendeeTestApp(t *testing.T, svc AttendeeService) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterAttendeeRoutes(app, svc); err != nil {
		t.Fatalf("RegisterAttendeeRoutes() error = %v", err)
	}

	return app
}

func TestAttendeeIntegration_Register(t *testing.T) {
	t.Parallel()

	svc := &stubAttendeeService{
		registerFn: func(ctx context.Context, name, email string) (*domain.Attendee, error) {
			return &domain.Attendee{
				ID:        "att-1",
				Name:      name,
				Email:     email,
				CreatedAt: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
			}, nil
		},
	}

	app := newAttendeeTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodPost, "/v1/attendees", `{"name":"Ada","email":"ada@example.com"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(body))
	}

	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if got["id"] != "att-1" {
		t.Fatalf("id = %v, want att-1", got["id"])
	}
	if _, present := got["surveyToken"]; present {
		t.Fatal("the survey token must never appear in responses")
	}
}

func TestAttendeeIntegration_RegisterValidationAndConflict(t *testing.T) {
	t.Parallel()

	svc := &stubAttendeeService{
		registerFn: func(ctx context.Context, name, email string) (*domain.Attendee, error) {
			if email == "dup@example.com" {
				return nil, domain.ErrConflict
			}
			return nil, domain.ErrValidation
		},
	}

	app := newAttendeeTestApp(t, svc)

	resp, _ := performRequest(t, app, http.MethodPost, "/v1/attendees", `{"name":"","email":"x@example.com"}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid input", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/attendees", `{"name":"Dup","email":"dup@example.com"}`)
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409 for a duplicate email", resp.StatusCode)
	}
}

func TestAttendeeIntegration_List(t *testing.T) {
	t.Parallel()

	token := "secret-token"
	svc := &stubAttendeeService{
		listFn: func(ctx context.Context) ([]domain.Attendee, error) {
			return []domain.Attendee{
				{ID: "att-1", Name: "Ada", Email: "ada@example.com", SurveyToken: &token, Slot1Sent: true},
				{ID: "att-2", Name: "Grace", Email: "grace@example.com"},
			}, nil
		},
	}

	app := newAttendeeTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/attendees", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	var got map[string][]map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if len(got["data"]) != 2 {
		t.Fatalf("attendees = %d, want 2", len(got["data"]))
	}
	if got["data"][0]["slot1Sent"] != true {
		t.Fatal("sent-flags should be visible in the list")
	}
	if _, present := got["data"][0]["surveyToken"]; present {
		t.Fatal("the survey token must never appear in responses")
	}
}

func TestAttendeeIntegration_GetByID(t *testing.T) {
	t.Parallel()

	svc := &stubAttendeeService{
		getFn: func(ctx context.Context, id string) (*domain.Attendee, error) {
			if id != "att-1" {
				return nil, domain.ErrNotFound
			}
			return &domain.Attendee{ID: "att-1", Name: "Ada", Email: "ada@example.com"}, nil
		},
	}

	app := newAttendeeTestApp(t, svc)

	resp, body := performRequest(t, app, http.MethodGet, "/v1/attendees/att-1", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	resp, _ = performRequest(t, app, http.MethodGet, "/v1/attendees/missing", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404 for an unknown attendee", resp.StatusCode)
	}
}

type stubAttendeeService struct {
	registerFn func(ctx context.Context, name, email string) (*domain.Attendee, error)
	getFn      func(ctx context.Context, id string) (*domain.Attendee, error)
	listFn     func(ctx context.Context) ([]domain.Attendee, error)
}

func (s *stubAttendeeService) Get(ctx context.Context, id string) (*domain.Attendee, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (s *stubAttendeeService) Register(ctx context.Context, name, email string) (*domain.Attendee, error) {
	if s.registerFn != nil {
		return s.registerFn(ctx, name, email)
	}
	return &domain.Attendee{}, nil
}

func (s *stubAttendeeService) List(ctx context.Context) ([]domain.Attendee, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}
