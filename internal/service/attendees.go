package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stageline/webinar-mailer/internal/domain"
	"github.com/stageline/webinar-mailer/internal/repository"
	"go.uber.org/zap"
)

// AttendeeService handles registration. New attendees start with every
// sent-flag false and no survey token; the token is minted lazily on first
// send that needs it.
type AttendeeService struct {
	attendees repository.AttendeeRepository
	logger    *zap.Logger
}

func NewAttendeeService(attendees repository.AttendeeRepository, logger *zap.Logger) (*AttendeeService, error) {
	if attendees == nil {
		return nil, fmt.Errorf("attendee repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AttendeeService{
		attendees: attendees,
		logger:    logger,
	}, nil
}

func (s *AttendeeService) Register(ctx context.Context, name, email string) (*domain.Attendee, error) {
	attendee := &domain.Attendee{
		ID:    uuid.NewString(),
		Name:  strings.TrimSpace(name),
		Email: domain.NormalizeEmail(email),
	}

	if err := attendee.Validate(); err != nil {
		return nil, err
	}

	if err := s.attendees.Create(ctx, attendee); err != nil {
		return nil, err
	}

	s.logger.Info("attendee registered", zap.String("attendeeId", attendee.ID))
	return attendee, nil
}

func (s *AttendeeService) Get(ctx context.Context, id string) (*domain.Attendee, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: attendee id is required", domain.ErrValidation)
	}
	return s.attendees.GetByID(ctx, id)
}

func (s *AttendeeService) List(ctx context.Context) ([]domain.Attendee, error) {
	return s.attendees.List(ctx)
}
