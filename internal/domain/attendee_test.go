package domain

import (
	"errors"
	"regexp"
	"testing"
)

func TestAttendeeSentForSlot(t *testing.T) {
	t.Parallel()

	a := Attendee{Slot2Sent: true, PostEventSent: true}

	if a.SentForSlot(SlotReminder1) {
		t.Fatal("slot 1 should be pending")
	}
	if !a.SentForSlot(SlotReminder2) {
		t.Fatal("slot 2 should be sent")
	}
	if a.SentForSlot(SlotReminder3) {
		t.Fatal("slot 3 should be pending")
	}
	if !a.SentForSlot(SlotPostEvent) {
		t.Fatal("post-event should be sent")
	}
	if a.SentForSlot(SlotID(9)) {
		t.Fatal("an unknown slot is never sent")
	}
}

func TestAttendeeValidate(t *testing.T) {
	t.Parallel()

	valid := Attendee{Name: "Ada", Email: "ada@example.com"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	noName := Attendee{Email: "ada@example.com"}
	if err := noName.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate(no name) error = %v, want ErrValidation", err)
	}

	badEmail := Attendee{Name: "Ada", Email: "ada@"}
	if err := badEmail.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("Validate(bad email) error = %v, want ErrValidation", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	if got := NormalizeEmail("  Ada@Example.COM  "); got != "ada@example.com" {
		t.Fatalf("NormalizeEmail() = %q, want ada@example.com", got)
	}
}

func TestNewSurveyToken(t *testing.T) {
	t.Parallel()

	hexToken := regexp.MustCompile(`^[0-9a-f]{32}$`)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := NewSurveyToken()
		if err != nil {
			t.Fatalf("NewSurveyToken() error = %v", err)
		}
		if !hexToken.MatchString(token) {
			t.Fatalf("token %q is not 32 lowercase hex characters", token)
		}
		if seen[token] {
			t.Fatalf("token %q minted twice", token)
		}
		seen[token] = true
	}
}
