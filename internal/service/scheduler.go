package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stageline/webinar-mailer/internal/observability"
	"github.com/stageline/webinar-mailer/internal/repository"
	"go.uber.org/zap"
)

const defaultPollInterval = time.Minute

// Scheduler is the poller: a minute-granularity timer that asks the schedule
// store for due slots and dispatches them one at a time. It owns its timer
// and lifecycle; there is exactly one per process.
type Scheduler struct {
	schedules  repository.ScheduleRepository
	dispatcher SlotDispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	interval   time.Duration
	now        func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(
	schedules repository.ScheduleRepository,
	dispatcher SlotDispatcher,
	interval time.Duration,
	logger *zap.Logger,
) (*Scheduler, error) {
	if schedules == nil {
		return nil, fmt.Errorf("schedule repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		schedules:  schedules,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
		now:        time.Now,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start launches the poll loop. Calling it while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.logger.Info("scheduler already running, start ignored")
		return
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	// ctx governs the dispatch work; loopCtx only governs the timer, so
	// stopping the scheduler never cancels an in-flight batch.
	go s.run(ctx, loopCtx, done)

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
}

// Stop cancels the periodic timer and waits for any in-flight dispatch to
// finish. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// IsRunning reports whether the poll loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) run(workCtx, loopCtx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-loopCtx.Done():
			return
		case <-workCtx.Done():
			return
		case <-ticker.C:
			s.tick(workCtx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.IncSchedulerTick()
	}

	due, err := s.schedules.GetDueForDispatch(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to query due slots", zap.Error(err))
		return
	}

	// Sequential on purpose: slots never race on the attendee store, and a
	// failed slot never blocks the ones after it.
	for i := range due {
		schedule := due[i]
		summary, err := s.dispatcher.ProcessSlot(ctx, schedule)
		if err != nil {
			s.logger.Error("slot dispatch failed",
				zap.Int("slot", schedule.Slot.Int()),
				zap.Error(err),
			)
			continue
		}

		s.logger.Info("slot dispatched",
			zap.Int("slot", schedule.Slot.Int()),
			zap.Int("sent", summary.SuccessCount),
			zap.Int("failed", summary.FailureCount),
		)
	}
}
