package repository

import (
	"time"

	"github.com/stageline/webinar-mailer/internal/domain"
)

// ScheduleModel is the persistence model for the schedules table, one row
// per slot.
type ScheduleModel struct {
	Slot      int                   `gorm:"primaryKey"`
	DueAt     *time.Time            `gorm:"type:timestamptz"`
	Enabled   bool                  `gorm:"not null;default:false"`
	Status    domain.ScheduleStatus `gorm:"type:varchar(20);not null"`
	Subject   *string               `gorm:"type:varchar(255)"`
	LastRunAt *time.Time            `gorm:"type:timestamptz"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ScheduleModel) TableName() string {
	return "schedules"
}

// AttendeeModel is the persistence model for the attendees table.
type AttendeeModel struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	Name          string  `gorm:"type:varchar(255);not null"`
	Email         string  `gorm:"type:varchar(255);not null;uniqueIndex"`
	SurveyToken   *string `gorm:"type:varchar(64)"`
	Slot1Sent     bool    `gorm:"not null;default:false"`
	Slot2Sent     bool    `gorm:"not null;default:false"`
	Slot3Sent     bool    `gorm:"not null;default:false"`
	PostEventSent bool    `gorm:"not null;default:false"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (AttendeeModel) TableName() string {
	return "attendees"
}

// EmailAttemptModel is the persistence model for the append-only
// email_attempts audit table.
type EmailAttemptModel struct {
	ID        string             `gorm:"type:uuid;primaryKey"`
	Slot      int                `gorm:"not null"`
	Kind      domain.AttemptKind `gorm:"type:varchar(20);not null"`
	Recipient string             `gorm:"type:varchar(255);not null"`
	Subject   string             `gorm:"type:varchar(255);not null"`
	Success   bool               `gorm:"not null"`
	Error     *string            `gorm:"type:text"`
	CreatedAt time.Time
}

func (EmailAttemptModel) TableName() string {
	return "email_attempts"
}

func scheduleModelFromDomain(s *domain.Schedule) *ScheduleModel {
	if s == nil {
		return nil
	}

	return &ScheduleModel{
		Slot:      s.Slot.Int(),
		DueAt:     s.DueAt,
		Enabled:   s.Enabled,
		Status:    s.Status,
		Subject:   s.Subject,
		LastRunAt: s.LastRunAt,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func scheduleModelToDomain(m *ScheduleModel) *domain.Schedule {
	if m == nil {
		return nil
	}

	return &domain.Schedule{
		Slot:      domain.SlotID(m.Slot),
		DueAt:     m.DueAt,
		Enabled:   m.Enabled,
		Status:    m.Status,
		Subject:   m.Subject,
		LastRunAt: m.LastRunAt,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func attendeeModelFromDomain(a *domain.Attendee) *AttendeeModel {
	if a == nil {
		return nil
	}

	return &AttendeeModel{
		ID:            a.ID,
		Name:          a.Name,
		Email:         a.Email,
		SurveyToken:   a.SurveyToken,
		Slot1Sent:     a.Slot1Sent,
		Slot2Sent:     a.Slot2Sent,
		Slot3Sent:     a.Slot3Sent,
		PostEventSent: a.PostEventSent,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func attendeeModelToDomain(m *AttendeeModel) *domain.Attendee {
	if m == nil {
		return nil
	}

	return &domain.Attendee{
		ID:            m.ID,
		Name:          m.Name,
		Email:         m.Email,
		SurveyToken:   m.SurveyToken,
		Slot1Sent:     m.Slot1Sent,
		Slot2Sent:     m.Slot2Sent,
		Slot3Sent:     m.Slot3Sent,
		PostEventSent: m.PostEventSent,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.EmailAttempt) *EmailAttemptModel {
	if a == nil {
		return nil
	}

	return &EmailAttemptModel{
		ID:        a.ID,
		Slot:      a.Slot.Int(),
		Kind:      a.Kind,
		Recipient: a.Recipient,
		Subject:   a.Subject,
		Success:   a.Success,
		Error:     a.Error,
		CreatedAt: a.CreatedAt,
	}
}

// sentFlagColumn maps a slot id to its attendee sent-flag column. Kept next
// to the models so flag naming has a single owner on the persistence side.
func sentFlagColumn(slot domain.SlotID) string {
	switch slot {
	case domain.SlotReminder1:
		return "slot1_sent"
	case domain.SlotReminder2:
		return "slot2_sent"
	case domain.SlotReminder3:
		return "slot3_sent"
	case domain.SlotPostEvent:
		return "post_event_sent"
	}
	return ""
}
