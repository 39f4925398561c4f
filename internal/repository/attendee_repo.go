package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stageline/webinar-mailer/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttendeeRepository interface {
	Create(ctx context.Context, a *domain.Attendee) error
	GetByID(ctx context.Context, id string) (*domain.Attendee, error)
	List(ctx context.Context) ([]domain.Attendee, error)
	// FindPendingForSlot returns every attendee whose sent-flag for the slot
	// is still false, as one consistent read.
	FindPendingForSlot(ctx context.Context, slot domain.SlotID) ([]domain.Attendee, error)
	// EnsureSurveyToken returns the attendee's token, minting and persisting
	// one atomically if absent.
	EnsureSurveyToken(ctx context.Context, attendeeID string) (string, error)
	// MarkSlotSent flips the sent-flag for the slot. Idempotent: flipping an
	// already-true flag is a no-op.
	MarkSlotSent(ctx context.Context, attendeeID string, slot domain.SlotID) error
}

type GormAttendeeRepo struct {
	db *gorm.DB
}

func NewGormAttendeeRepo(db *gorm.DB) *GormAttendeeRepo {
	return &GormAttendeeRepo{db: db}
}

func (r *GormAttendeeRepo) Create(ctx context.Context, a *domain.Attendee) error {
	model := attendeeModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: attendee with email %q already registered", domain.ErrConflict, a.Email)
		}
		return err
	}
	if a != nil {
		*a = *attendeeModelToDomain(model)
	}
	return nil
}

func (r *GormAttendeeRepo) GetByID(ctx context.Context, id string) (*domain.Attendee, error) {
	var model AttendeeModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return attendeeModelToDomain(&model), nil
}

func (r *GormAttendeeRepo) List(ctx context.Context) ([]domain.Attendee, error) {
	var models []AttendeeModel
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attendees := make([]domain.Attendee, 0, len(models))
	for i := range models {
		attendees = append(attendees, *attendeeModelToDomain(&models[i]))
	}

	return attendees, nil
}

func (r *GormAttendeeRepo) FindPendingForSlot(ctx context.Context, slot domain.SlotID) ([]domain.Attendee, error) {
	column := sentFlagColumn(slot)
	if column == "" {
		return nil, fmt.Errorf("%w: invalid slot %d", domain.ErrValidation, slot)
	}

	var models []AttendeeModel
	// Single query keeps the read consistent: registrations that land after
	// it simply wait for the next run.
	err := r.db.WithContext(ctx).
		Where(fmt.Sprintf("NOT %s", column)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attendees := make([]domain.Attendee, 0, len(models))
	for i := range models {
		attendees = append(attendees, *attendeeModelToDomain(&models[i]))
	}

	return attendees, nil
}

func (r *GormAttendeeRepo) EnsureSurveyToken(ctx context.Context, attendeeID string) (string, error) {
	var token string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model AttendeeModel
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&model, "id = ?", attendeeID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		if model.SurveyToken != nil && strings.TrimSpace(*model.SurveyToken) != "" {
			token = *model.SurveyToken
			return nil
		}

		minted, err := domain.NewSurveyToken()
		if err != nil {
			return err
		}
		if err := tx.
			Model(&AttendeeModel{}).
			Where("id = ?", attendeeID).
			Update("survey_token", minted).Error; err != nil {
			return err
		}

		token = minted
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (r *GormAttendeeRepo) MarkSlotSent(ctx context.Context, attendeeID string, slot domain.SlotID) error {
	column := sentFlagColumn(slot)
	if column == "" {
		return fmt.Errorf("%w: invalid slot %d", domain.ErrValidation, slot)
	}

	result := r.db.WithContext(ctx).
		Model(&AttendeeModel{}).
		Where("id = ?", attendeeID).
		Updates(map[string]any{
			column:       true,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
