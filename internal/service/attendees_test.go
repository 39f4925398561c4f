package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stageline/webinar-mailer/internal/domain"
	"go.uber.org/zap"
)

func TestAttendeeServiceRegisterNormalizes(t *testing.T) {
	t.Parallel()

	var created *domain.Attendee
	repo := &fakeAttendeeRepo{
		createFn: func(ctx context.Context, a *domain.Attendee) error {
			created = a
			return nil
		},
	}

	svc, err := NewAttendeeService(repo, zap.NewNop())
	if err != nil {
		t.Fatalf("NewAttendeeService() error = %v", err)
	}

	attendee, err := svc.Register(context.Background(), "  Ada Lovelace  ", " Ada@Example.COM ")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if attendee.Name != "Ada Lovelace" {
		t.Fatalf("name = %q, want trimmed", attendee.Name)
	}
	if attendee.Email != "ada@example.com" {
		t.Fatalf("email = %q, want lowercased and trimmed", attendee.Email)
	}
	if attendee.ID == "" {
		t.Fatal("id should be generated")
	}
	if attendee.SurveyToken != nil {
		t.Fatal("survey token should not be minted at registration")
	}
	if attendee.Slot1Sent || attendee.Slot2Sent || attendee.Slot3Sent || attendee.PostEventSent {
		t.Fatal("new attendees start with every sent-flag false")
	}
	if created == nil {
		t.Fatal("expected Create to be called")
	}
}

func TestAttendeeServiceRegisterRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	svc, err := NewAttendeeService(&fakeAttendeeRepo{}, nil)
	if err != nil {
		t.Fatalf("NewAttendeeService() error = %v", err)
	}

	if _, err := svc.Register(context.Background(), "   ", "ada@example.com"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Register(blank name) error = %v, want ErrValidation", err)
	}
	if _, err := svc.Register(context.Background(), "Ada", "not-an-address"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Register(bad email) error = %v, want ErrValidation", err)
	}
}

func TestAttendeeServiceGet(t *testing.T) {
	t.Parallel()

	repo := &fakeAttendeeRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Attendee, error) {
			return &domain.Attendee{ID: id, Name: "Ada", Email: "ada@example.com"}, nil
		},
	}

	svc, err := NewAttendeeService(repo, nil)
	if err != nil {
		t.Fatalf("NewAttendeeService() error = %v", err)
	}

	attendee, err := svc.Get(context.Background(), "att-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if attendee.ID != "att-1" {
		t.Fatalf("id = %s, want att-1", attendee.ID)
	}

	if _, err := svc.Get(context.Background(), "   "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Get(blank) error = %v, want ErrValidation", err)
	}
}

func TestAttendeeServiceRegisterSurfacesDuplicate(t *testing.T) {
	t.Parallel()

	repo := &fakeAttendeeRepo{
		createFn: func(ctx context.Context, a *domain.Attendee) error {
			return domain.ErrConflict
		},
	}

	svc, err := NewAttendeeService(repo, nil)
	if err != nil {
		t.Fatalf("NewAttendeeService() error = %v", err)
	}

	if _, err := svc.Register(context.Background(), "Ada", "ada@example.com"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Register(duplicate) error = %v, want ErrConflict", err)
	}
}
