package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SlotID identifies one of the fixed scheduled email campaigns.
type SlotID int

const (
	SlotReminder1 SlotID = 1
	SlotReminder2 SlotID = 2
	SlotReminder3 SlotID = 3
	SlotPostEvent SlotID = 4
)

// AllSlots lists every slot id in dispatch order.
var AllSlots = []SlotID{SlotReminder1, SlotReminder2, SlotReminder3, SlotPostEvent}

func (s SlotID) IsValid() bool {
	return s >= SlotReminder1 && s <= SlotPostEvent
}

func (s SlotID) Int() int { return int(s) }

func (s SlotID) String() string { return strconv.Itoa(int(s)) }

func ParseSlotIDFromString(raw string) (SlotID, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid slot %q", ErrValidation, raw)
	}
	slot := SlotID(value)
	if !slot.IsValid() {
		return 0, fmt.Errorf("%w: slot must be between %d and %d", ErrValidation, SlotReminder1, SlotPostEvent)
	}
	return slot, nil
}

// SlotKind distinguishes pre-event reminders from the post-event survey.
type SlotKind string

const (
	KindReminder  SlotKind = "REMINDER"
	KindPostEvent SlotKind = "POST_EVENT"
)

func (k SlotKind) String() string { return string(k) }

var slotKinds = map[SlotID]SlotKind{
	SlotReminder1: KindReminder,
	SlotReminder2: KindReminder,
	SlotReminder3: KindReminder,
	SlotPostEvent: KindPostEvent,
}

// Kind maps a slot id to its campaign kind. The mapping is the single place
// that knows slot 4 is the survey email.
func (s SlotID) Kind() SlotKind {
	return slotKinds[s]
}

var defaultSubjects = map[SlotID]string{
	SlotReminder1: "Your webinar is coming up",
	SlotReminder2: "Reminder: your webinar starts soon",
	SlotReminder3: "Starting shortly: join your webinar",
	SlotPostEvent: "Thanks for attending - share your feedback",
}

// DefaultSubject returns the built-in subject line used when a schedule
// carries no operator override.
func (s SlotID) DefaultSubject() string {
	return defaultSubjects[s]
}

// ScheduleStatus represents the dispatch lifecycle of one slot.
type ScheduleStatus string

const (
	StatusPending   ScheduleStatus = "PENDING"
	StatusRunning   ScheduleStatus = "RUNNING"
	StatusCompleted ScheduleStatus = "COMPLETED"
)

func (s ScheduleStatus) String() string { return string(s) }

func (s ScheduleStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted:
		return true
	}
	return false
}

func ParseScheduleStatusFromString(raw string) (ScheduleStatus, error) {
	st := ScheduleStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid schedule status %q", ErrValidation, raw)
	}
	return st, nil
}

// Schedule is one slot's persisted dispatch state. DueAt and LastRunAt are
// stored in UTC; presentation timezones are a display concern only.
type Schedule struct {
	Slot      SlotID
	DueAt     *time.Time
	Enabled   bool
	Status    ScheduleStatus
	Subject   *string
	LastRunAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveSubject resolves the operator override, falling back to the
// per-slot default.
func (s *Schedule) EffectiveSubject() string {
	if s.Subject != nil {
		if subject := strings.TrimSpace(*s.Subject); subject != "" {
			return subject
		}
	}
	return s.Slot.DefaultSubject()
}

// DueForAutoDispatch reports whether the poller should pick this slot up.
func (s *Schedule) DueForAutoDispatch(now time.Time) bool {
	if !s.Enabled || s.Status != StatusPending || s.DueAt == nil {
		return false
	}
	return !s.DueAt.After(now)
}

func (s *Schedule) Validate() error {
	if !s.Slot.IsValid() {
		return fmt.Errorf("%w: invalid slot %d", ErrValidation, s.Slot)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("%w: invalid schedule status %q", ErrValidation, s.Status)
	}
	return nil
}
