package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stageline/webinar-mailer/internal/domain"
	"github.com/stageline/webinar-mailer/internal/mailer"
	"github.com/stageline/webinar-mailer/internal/repository"
	"go.uber.org/zap"
)

// testAttendeeName labels operator test sends in the rendered message.
const testAttendeeName = "Test Recipient"

// ScheduleView is one slot's status as shown to operators. Times are echoed
// both in UTC and converted to the configured display timezone.
type ScheduleView struct {
	Slot           domain.SlotID
	Kind           domain.SlotKind
	DueAt          *time.Time
	DueAtLocal     *time.Time
	Enabled        bool
	Status         domain.ScheduleStatus
	Subject        string
	LastRunAt      *time.Time
	LastRunAtLocal *time.Time
	Stranded       bool
	LastError      string
}

// StatusReport is the full scheduler status view.
type StatusReport struct {
	SchedulerRunning bool
	CurrentTime      time.Time
	CurrentTimeLocal time.Time
	Schedules        []ScheduleView
}

// ControlService is the operator surface: force-run, reset, test-send and
// schedule updates. Every slot id is validated before any state mutation.
type ControlService struct {
	schedules  repository.ScheduleRepository
	attempts   repository.AttemptRepository
	dispatcher *Dispatcher
	scheduler  *Scheduler
	mailer     mailer.Mailer
	composer   *mailer.Composer
	displayLoc *time.Location
	logger     *zap.Logger
	now        func() time.Time
}

func NewControlService(
	schedules repository.ScheduleRepository,
	attempts repository.AttemptRepository,
	dispatcher *Dispatcher,
	scheduler *Scheduler,
	sender mailer.Mailer,
	composer *mailer.Composer,
	displayLoc *time.Location,
	logger *zap.Logger,
) (*ControlService, error) {
	if schedules == nil {
		return nil, fmt.Errorf("schedule repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if composer == nil {
		return nil, fmt.Errorf("composer is required")
	}
	if displayLoc == nil {
		displayLoc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ControlService{
		schedules:  schedules,
		attempts:   attempts,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		mailer:     sender,
		composer:   composer,
		displayLoc: displayLoc,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// GetStatus reports the poller state and every slot, flagging slots stuck in
// Running with no in-process owner as stranded.
func (s *ControlService) GetStatus(ctx context.Context) (*StatusReport, error) {
	schedules, err := s.schedules.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}

	now := s.now().UTC()
	report := &StatusReport{
		SchedulerRunning: s.scheduler != nil && s.scheduler.IsRunning(),
		CurrentTime:      now,
		CurrentTimeLocal: now.In(s.displayLoc),
		Schedules:        make([]ScheduleView, 0, len(schedules)),
	}

	activeSlot := s.dispatcher.ActiveSlot()
	for i := range schedules {
		schedule := schedules[i]
		view := ScheduleView{
			Slot:      schedule.Slot,
			Kind:      schedule.Slot.Kind(),
			DueAt:     schedule.DueAt,
			Enabled:   schedule.Enabled,
			Status:    schedule.Status,
			Subject:   schedule.EffectiveSubject(),
			LastRunAt: schedule.LastRunAt,
			Stranded:  schedule.Status == domain.StatusRunning && schedule.Slot != activeSlot,
			LastError: s.dispatcher.LastError(schedule.Slot),
		}
		if schedule.DueAt != nil {
			local := schedule.DueAt.In(s.displayLoc)
			view.DueAtLocal = &local
		}
		if schedule.LastRunAt != nil {
			local := schedule.LastRunAt.In(s.displayLoc)
			view.LastRunAtLocal = &local
		}
		report.Schedules = append(report.Schedules, view)
	}

	return report, nil
}

// EnsureDefaults seeds a disabled Pending row for every slot. Safe to call
// on every startup.
func (s *ControlService) EnsureDefaults(ctx context.Context) error {
	return s.schedules.EnsureDefaults(ctx)
}

// UpdateSchedule applies a validated partial update to one slot.
func (s *ControlService) UpdateSchedule(ctx context.Context, slot domain.SlotID, update repository.ScheduleUpdate) (*domain.Schedule, error) {
	if !slot.IsValid() {
		return nil, fmt.Errorf("%w: invalid slot %d", domain.ErrValidation, slot)
	}
	if update.Subject != nil && len(*update.Subject) > 255 {
		return nil, fmt.Errorf("%w: subject must be at most 255 characters", domain.ErrValidation)
	}
	return s.schedules.Update(ctx, slot, update)
}

// TriggerNow forces a slot to dispatch immediately, regardless of its due
// time or enabled flag. Sent-flags are still honored: only pending attendees
// are reached.
func (s *ControlService) TriggerNow(ctx context.Context, slot domain.SlotID) (*DispatchSummary, error) {
	if !slot.IsValid() {
		return nil, fmt.Errorf("%w: invalid slot %d", domain.ErrValidation, slot)
	}

	if err := s.schedules.MarkPending(ctx, slot); err != nil {
		return nil, err
	}

	schedule, err := s.schedules.Get(ctx, slot)
	if err != nil {
		return nil, err
	}

	s.logger.Info("manual dispatch triggered", zap.Int("slot", slot.Int()))
	return s.dispatcher.ProcessSlot(ctx, *schedule)
}

// Reset returns a slot to Pending without dispatching. This is the recovery
// path for a slot stranded in Running after a crash, and the way to re-arm
// a Completed slot.
func (s *ControlService) Reset(ctx context.Context, slot domain.SlotID) error {
	if !slot.IsValid() {
		return fmt.Errorf("%w: invalid slot %d", domain.ErrValidation, slot)
	}

	if err := s.schedules.MarkPending(ctx, slot); err != nil {
		return err
	}

	s.logger.Info("slot reset to pending", zap.Int("slot", slot.Int()))
	return nil
}

// SendTest composes and sends exactly one email to an operator-supplied
// address using the slot's production composition. It never reads or writes
// attendee flags and never touches schedule status.
func (s *ControlService) SendTest(ctx context.Context, slot domain.SlotID, recipient string) error {
	if !slot.IsValid() {
		return fmt.Errorf("%w: invalid slot %d", domain.ErrValidation, slot)
	}
	if err := domain.ValidateEmail(recipient); err != nil {
		return err
	}

	schedule, err := s.schedules.Get(ctx, slot)
	if err != nil {
		return err
	}

	token, err := domain.NewSurveyToken()
	if err != nil {
		return err
	}

	attendee := domain.Attendee{
		Name:        testAttendeeName,
		Email:       strings.TrimSpace(recipient),
		SurveyToken: &token,
	}

	msg := s.composer.Compose(&attendee, slot, schedule.EffectiveSubject())
	sendErr := s.mailer.Send(ctx, msg)
	s.recordTestAttempt(ctx, slot, msg, sendErr)

	if sendErr != nil {
		return fmt.Errorf("test send failed: %w", sendErr)
	}

	s.logger.Info("test email sent",
		zap.Int("slot", slot.Int()),
		zap.String("recipient", attendee.Email),
	)
	return nil
}

// RecoverStranded resets every slot left in Running back to Pending. Only
// called at startup, and only when the deployment explicitly opts in: with a
// single enforced instance, a Running slot at boot can have no live owner.
func (s *ControlService) RecoverStranded(ctx context.Context) error {
	schedules, err := s.schedules.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	for i := range schedules {
		schedule := schedules[i]
		if schedule.Status != domain.StatusRunning {
			continue
		}

		if err := s.schedules.MarkPending(ctx, schedule.Slot); err != nil {
			return fmt.Errorf("failed to reset stranded slot %d: %w", schedule.Slot, err)
		}
		s.logger.Warn("stranded slot reset to pending at startup",
			zap.Int("slot", schedule.Slot.Int()),
		)
	}

	return nil
}

// RecentAttempts returns the newest audit entries for one slot.
func (s *ControlService) RecentAttempts(ctx context.Context, slot domain.SlotID, limit int) ([]domain.EmailAttempt, error) {
	if !slot.IsValid() {
		return nil, fmt.Errorf("%w: invalid slot %d", domain.ErrValidation, slot)
	}
	if s.attempts == nil {
		return nil, nil
	}
	return s.attempts.ListBySlot(ctx, slot, limit)
}

func (s *ControlService) recordTestAttempt(ctx context.Context, slot domain.SlotID, msg mailer.Message, sendErr error) {
	if s.attempts == nil {
		return
	}

	var attemptErr *string
	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value
	}

	attempt := &domain.EmailAttempt{
		ID:        uuid.NewString(),
		Slot:      slot,
		Kind:      domain.AttemptKindTest,
		Recipient: msg.ToEmail,
		Subject:   msg.Subject,
		Success:   sendErr == nil,
		Error:     attemptErr,
		CreatedAt: s.now().UTC(),
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		s.logger.Error("failed to record test email attempt", zap.Error(err))
	}
}
