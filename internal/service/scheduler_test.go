package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stageline/webinar-mailer/internal/domain"
	"go.uber.org/zap"
)

type fakeSlotDispatcher struct {
	processSlotFn func(ctx context.Context, schedule domain.Schedule) (*DispatchSummary, error)
}

func (f *fakeSlotDispatcher) ProcessSlot(ctx context.Context, schedule domain.Schedule) (*DispatchSummary, error) {
	if f.processSlotFn != nil {
		return f.processSlotFn(ctx, schedule)
	}
	return &DispatchSummary{}, nil
}

func TestNewSchedulerAppliesDefaults(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(&fakeScheduleRepo{}, &fakeSlotDispatcher{}, 0, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if s.interval != defaultPollInterval {
		t.Fatalf("interval = %s, want %s", s.interval, defaultPollInterval)
	}
}

func TestNewSchedulerRequiresDeps(t *testing.T) {
	t.Parallel()

	if _, err := NewScheduler(nil, &fakeSlotDispatcher{}, time.Minute, nil); err == nil {
		t.Fatal("expected error for nil schedule repository")
	}
	if _, err := NewScheduler(&fakeScheduleRepo{}, nil, time.Minute, nil); err == nil {
		t.Fatal("expected error for nil dispatcher")
	}
}

func TestSchedulerTickDispatchesDueSlots(t *testing.T) {
	t.Parallel()

	due := time.Date(2026, 9, 15, 16, 0, 0, 0, time.UTC)
	schedules := &fakeScheduleRepo{
		getDueForDispatchFn: func(ctx context.Context, now time.Time) ([]domain.Schedule, error) {
			return []domain.Schedule{
				{Slot: domain.SlotReminder1, DueAt: &due, Enabled: true, Status: domain.StatusPending},
				{Slot: domain.SlotReminder2, DueAt: &due, Enabled: true, Status: domain.StatusPending},
			}, nil
		},
	}

	dispatched := make([]domain.SlotID, 0, 2)
	dispatcher := &fakeSlotDispatcher{
		processSlotFn: func(ctx context.Context, schedule domain.Schedule) (*DispatchSummary, error) {
			dispatched = append(dispatched, schedule.Slot)
			return &DispatchSummary{SuccessCount: 1}, nil
		},
	}

	s, err := NewScheduler(schedules, dispatcher, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	s.tick(context.Background())

	if len(dispatched) != 2 {
		t.Fatalf("dispatched count = %d, want 2", len(dispatched))
	}
	if dispatched[0] != domain.SlotReminder1 || dispatched[1] != domain.SlotReminder2 {
		t.Fatalf("dispatched slots = %v, want [1 2] in order", dispatched)
	}
}

func TestSchedulerTickContinuesPastFailedSlot(t *testing.T) {
	t.Parallel()

	schedules := &fakeScheduleRepo{
		getDueForDispatchFn: func(ctx context.Context, now time.Time) ([]domain.Schedule, error) {
			return []domain.Schedule{
				{Slot: domain.SlotReminder1, Status: domain.StatusPending},
				{Slot: domain.SlotPostEvent, Status: domain.StatusPending},
			}, nil
		},
	}

	dispatched := make([]domain.SlotID, 0, 2)
	dispatcher := &fakeSlotDispatcher{
		processSlotFn: func(ctx context.Context, schedule domain.Schedule) (*DispatchSummary, error) {
			dispatched = append(dispatched, schedule.Slot)
			if schedule.Slot == domain.SlotReminder1 {
				return nil, errors.New("dispatch failed")
			}
			return &DispatchSummary{}, nil
		},
	}

	s, err := NewScheduler(schedules, dispatcher, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	s.tick(context.Background())

	if len(dispatched) != 2 {
		t.Fatalf("dispatched count = %d, want 2 (failure must not block later slots)", len(dispatched))
	}
}

func TestSchedulerTickSkipsOnQueryError(t *testing.T) {
	t.Parallel()

	schedules := &fakeScheduleRepo{
		getDueForDispatchFn: func(ctx context.Context, now time.Time) ([]domain.Schedule, error) {
			return nil, errors.New("db unavailable")
		},
	}

	dispatcher := &fakeSlotDispatcher{
		processSlotFn: func(ctx context.Context, schedule domain.Schedule) (*DispatchSummary, error) {
			t.Fatal("ProcessSlot should not be called when the due query fails")
			return nil, nil
		},
	}

	s, err := NewScheduler(schedules, dispatcher, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	s.tick(context.Background())
}

func TestSchedulerStartStopLifecycle(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(&fakeScheduleRepo{}, &fakeSlotDispatcher{}, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	if s.IsRunning() {
		t.Fatal("scheduler should not be running before Start")
	}

	s.Start(context.Background())
	if !s.IsRunning() {
		t.Fatal("scheduler should be running after Start")
	}

	// Second Start is a no-op.
	s.Start(context.Background())

	s.Stop()
	if s.IsRunning() {
		t.Fatal("scheduler should not be running after Stop")
	}

	// Second Stop is a no-op.
	s.Stop()
}

func TestSchedulerStartAgainAfterStop(t *testing.T) {
	t.Parallel()

	ticked := make(chan struct{}, 1)
	schedules := &fakeScheduleRepo{
		getDueForDispatchFn: func(ctx context.Context, now time.Time) ([]domain.Schedule, error) {
			select {
			case ticked <- struct{}{}:
			default:
			}
			return nil, nil
		},
	}

	s, err := NewScheduler(schedules, &fakeSlotDispatcher{}, 5*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	s.Start(context.Background())
	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never ticked")
	}
	s.Stop()

	// Drain any tick left over from the first run.
	select {
	case <-ticked:
	default:
	}

	s.Start(context.Background())
	defer s.Stop()
	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("restarted scheduler never ticked")
	}
}
