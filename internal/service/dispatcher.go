package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stageline/webinar-mailer/internal/domain"
	"github.com/stageline/webinar-mailer/internal/mailer"
	"github.com/stageline/webinar-mailer/internal/observability"
	"github.com/stageline/webinar-mailer/internal/repository"
	"go.uber.org/zap"
)

const defaultSendDelay = 100 * time.Millisecond

// DispatchSummary reports one slot run's per-recipient outcomes.
type DispatchSummary struct {
	SuccessCount int
	FailureCount int
}

// SlotDispatcher executes one slot's fan-out. Satisfied by *Dispatcher.
type SlotDispatcher interface {
	ProcessSlot(ctx context.Context, schedule domain.Schedule) (*DispatchSummary, error)
}

// Dispatcher fans one due slot out to every pending attendee, exactly once
// per recipient on success, and finalizes the slot's schedule status.
type Dispatcher struct {
	schedules repository.ScheduleRepository
	attendees repository.AttendeeRepository
	attempts  repository.AttemptRepository
	mailer    mailer.Mailer
	composer  *mailer.Composer
	logger    *zap.Logger
	metrics   *observability.Metrics
	sendDelay time.Duration
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	activeSlot domain.SlotID
	lastErrors map[domain.SlotID]string
}

func NewDispatcher(
	schedules repository.ScheduleRepository,
	attendees repository.AttendeeRepository,
	attempts repository.AttemptRepository,
	sender mailer.Mailer,
	composer *mailer.Composer,
	sendDelay time.Duration,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if schedules == nil {
		return nil, fmt.Errorf("schedule repository is required")
	}
	if attendees == nil {
		return nil, fmt.Errorf("attendee repository is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if composer == nil {
		return nil, fmt.Errorf("composer is required")
	}
	if sendDelay <= 0 {
		sendDelay = defaultSendDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		schedules:  schedules,
		attendees:  attendees,
		attempts:   attempts,
		mailer:     sender,
		composer:   composer,
		logger:     logger,
		sendDelay:  sendDelay,
		now:        time.Now,
		sleep:      sleepWithContext,
		lastErrors: make(map[domain.SlotID]string),
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// ProcessSlot runs one slot to completion or safe rollback. Per-recipient
// send failures are counted and never abort the batch; store failures revert
// the slot to Pending so the next poll retries the whole run.
func (d *Dispatcher) ProcessSlot(ctx context.Context, schedule domain.Schedule) (*DispatchSummary, error) {
	slot := schedule.Slot
	logger := observability.WithSlot(d.logger, slot)

	if err := d.schedules.MarkRunning(ctx, slot); err != nil {
		return nil, fmt.Errorf("failed to mark slot running: %w", err)
	}

	d.setActiveSlot(slot)
	defer d.setActiveSlot(0)

	start := d.now()
	summary, err := d.fanOut(ctx, schedule, logger)
	if d.metrics != nil {
		d.metrics.ObserveDispatchDuration(slot, d.now().Sub(start))
	}

	if err != nil {
		// The run itself failed; revert so the next poll retries. Flags
		// already flipped stay flipped, so the retry only reaches the rest.
		d.setLastError(slot, err.Error())
		if d.metrics != nil {
			d.metrics.IncDispatchRun(slot, "reverted")
		}
		if revertErr := d.schedules.MarkPending(ctx, slot); revertErr != nil {
			logger.Error("failed to revert slot to pending after run failure",
				zap.Error(revertErr),
			)
			return nil, fmt.Errorf("dispatch failed: %w (revert to pending also failed: %v)", err, revertErr)
		}
		return nil, err
	}

	if err := d.schedules.MarkCompleted(ctx, slot, d.now()); err != nil {
		d.setLastError(slot, err.Error())
		if revertErr := d.schedules.MarkPending(ctx, slot); revertErr != nil {
			logger.Error("failed to revert slot to pending after completion failure",
				zap.Error(revertErr),
			)
		}
		return nil, fmt.Errorf("failed to mark slot completed: %w", err)
	}

	d.clearLastError(slot)
	if d.metrics != nil {
		d.metrics.IncDispatchRun(slot, "completed")
	}

	logger.Info("slot dispatch completed",
		zap.Int("sent", summary.SuccessCount),
		zap.Int("failed", summary.FailureCount),
	)

	return summary, nil
}

func (d *Dispatcher) fanOut(ctx context.Context, schedule domain.Schedule, logger *zap.Logger) (*DispatchSummary, error) {
	slot := schedule.Slot

	pending, err := d.attendees.FindPendingForSlot(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve pending recipients: %w", err)
	}

	subject := schedule.EffectiveSubject()
	summary := &DispatchSummary{}

	for i := range pending {
		if i > 0 {
			// Throttle between sends to respect provider rate limits.
			if err := d.sleep(ctx, d.sendDelay); err != nil {
				return nil, fmt.Errorf("dispatch interrupted: %w", err)
			}
		}

		attendee := pending[i]

		if slot.Kind() == domain.KindPostEvent {
			token, err := d.attendees.EnsureSurveyToken(ctx, attendee.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to ensure survey token for attendee %s: %w", attendee.ID, err)
			}
			attendee.SurveyToken = &token
		}

		msg := d.composer.Compose(&attendee, slot, subject)
		sendErr := d.mailer.Send(ctx, msg)
		d.recordAttempt(ctx, slot, domain.AttemptKindDispatch, msg, sendErr, logger)

		if sendErr != nil {
			summary.FailureCount++
			if d.metrics != nil {
				d.metrics.IncEmailFailed(slot)
			}
			logger.Warn("recipient send failed",
				zap.String("recipient", attendee.Email),
				zap.Error(sendErr),
			)
			continue
		}

		if err := d.attendees.MarkSlotSent(ctx, attendee.ID, slot); err != nil {
			// The email went out; losing the flag means a manual re-run may
			// reach this attendee again. At-least-once, so log it and keep
			// the success count honest.
			logger.Error("failed to persist sent-flag after successful send",
				zap.String("attendeeId", attendee.ID),
				zap.Error(err),
			)
		}

		summary.SuccessCount++
		if d.metrics != nil {
			d.metrics.IncEmailSent(slot)
		}
	}

	return summary, nil
}

func (d *Dispatcher) recordAttempt(
	ctx context.Context,
	slot domain.SlotID,
	kind domain.AttemptKind,
	msg mailer.Message,
	sendErr error,
	logger *zap.Logger,
) {
	if d.attempts == nil {
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
		Kind:      kind,
		Recipient: msg.ToEmail,
		Subject:   msg.Subject,
		Success:   sendErr == nil,
		Error:     attemptErr,
		CreatedAt: d.now().UTC(),
	}

	// Audit logging is best-effort; it never affects dispatch outcome.
	if err := d.attempts.Create(ctx, attempt); err != nil {
		logger.Error("failed to record email attempt", zap.Error(err))
	}
}

// ActiveSlot returns the slot currently being dispatched, or 0 when idle.
// The status view uses it to tell an in-flight run from a stranded one.
func (d *Dispatcher) ActiveSlot() domain.SlotID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeSlot
}

// LastError returns the most recent run-level error for a slot, cleared on
// the next completed run.
func (d *Dispatcher) LastError(slot domain.SlotID) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErrors[slot]
}

func (d *Dispatcher) setActiveSlot(slot domain.SlotID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activeSlot = slot
}

func (d *Dispatcher) setLastError(slot domain.SlotID, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastErrors[slot] = message
}

func (d *Dispatcher) clearLastError(slot domain.SlotID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastErrors, slot)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
