package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const surveyTokenBytes = 16

// Attendee is a registered webinar participant with one sent-flag per slot.
// The flags are the sole source of truth for "already notified": once true
// the dispatch engine never targets that attendee for that slot again.
type Attendee struct {
	ID            string
	Name          string
	Email         string
	SurveyToken   *string
	Slot1Sent     bool
	Slot2Sent     bool
	Slot3Sent     bool
	PostEventSent bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SentForSlot reports the sent-flag for one slot.
func (a *Attendee) SentForSlot(slot SlotID) bool {
	switch slot {
	case SlotReminder1:
		return a.Slot1Sent
	case SlotReminder2:
		return a.Slot2Sent
	case SlotReminder3:
		return a.Slot3Sent
	case SlotPostEvent:
		return a.PostEventSent
	}
	return false
}

func (a *Attendee) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := ValidateEmail(a.Email); err != nil {
		return err
	}
	return nil
}

// NormalizeEmail lowercases and trims an address so uniqueness is
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) error {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, email)
	}
	return nil
}

// NewSurveyToken mints a cryptographically random token used to authenticate
// survey submissions without a login. 128 bits rendered as 32 hex characters.
func NewSurveyToken() (string, error) {
	buf := make([]byte, surveyTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate survey token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
