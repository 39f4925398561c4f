package repository

import (
	"context"
	"errors"
	"time"

	"github.com/stageline/webinar-mailer/internal/domain"
	"gorm.io/gorm"
)

// ScheduleUpdate carries a partial update to one slot. Nil fields are left
// untouched.
type ScheduleUpdate struct {
	DueAt   *time.Time
	Subject *string
	Enabled *bool
}

type ScheduleRepository interface {
	GetAll(ctx context.Context) ([]domain.Schedule, error)
	Get(ctx context.Context, slot domain.SlotID) (*domain.Schedule, error)
	// EnsureDefaults creates a disabled Pending row for every slot that has
	// none. Idempotent, called on every startup.
	EnsureDefaults(ctx context.Context) error
	Update(ctx context.Context, slot domain.SlotID, update ScheduleUpdate) (*domain.Schedule, error)
	// MarkRunning transitions Pending to Running and fails with ErrConflict
	// when the slot is not Pending, so two dispatchers can never own one run.
	MarkRunning(ctx context.Context, slot domain.SlotID) error
	MarkCompleted(ctx context.Context, slot domain.SlotID, at time.Time) error
	MarkPending(ctx context.Context, slot domain.SlotID) error
	GetDueForDispatch(ctx context.Context, now time.Time) ([]domain.Schedule, error)
}

type GormScheduleRepo struct {
	db *gorm.DB
}

func NewGormScheduleRepo(db *gorm.DB) *GormScheduleRepo {
	return &GormScheduleRepo{db: db}
}

func (r *GormScheduleRepo) GetAll(ctx context.Context) ([]domain.Schedule, error) {
	var models []ScheduleModel
	err := r.db.WithContext(ctx).
		Order("slot ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	schedules := make([]domain.Schedule, 0, len(models))
	for i := range models {
		schedules = append(schedules, *scheduleModelToDomain(&models[i]))
	}

	return schedules, nil
}

func (r *GormScheduleRepo) Get(ctx context.Context, slot domain.SlotID) (*domain.Schedule, error) {
	var model ScheduleModel
	err := r.db.WithContext(ctx).First(&model, "slot = ?", slot.Int()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return scheduleModelToDomain(&model), nil
}

func (r *GormScheduleRepo) EnsureDefaults(ctx context.Context) error {
	for _, slot := range domain.AllSlots {
		var count int64
		err := r.db.WithContext(ctx).
			Model(&ScheduleModel{}).
			Where("slot = ?", slot.Int()).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		model := scheduleModelFromDomain(&domain.Schedule{
			Slot:   slot,
			Status: domain.StatusPending,
		})
		if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
			// A concurrent EnsureDefaults may have won the insert.
			if isUniqueViolation(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func (r *GormScheduleRepo) Update(ctx context.Context, slot domain.SlotID, update ScheduleUpdate) (*domain.Schedule, error) {
	changes := map[string]any{}
	if update.DueAt != nil {
		changes["due_at"] = update.DueAt.UTC()
	}
	if update.Subject != nil {
		changes["subject"] = *update.Subject
	}
	if update.Enabled != nil {
		changes["enabled"] = *update.Enabled
		// Enabling with a fresh due time re-arms the slot for the new run.
		if *update.Enabled && update.DueAt != nil {
			changes["status"] = domain.StatusPending
		}
	}

	if len(changes) > 0 {
		result := r.db.WithContext(ctx).
			Model(&ScheduleModel{}).
			Where("slot = ?", slot.Int()).
			Updates(changes)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, domain.ErrNotFound
		}
	}

	return r.Get(ctx, slot)
}

func (r *GormScheduleRepo) MarkRunning(ctx context.Context, slot domain.SlotID) error {
	result := r.db.WithContext(ctx).
		Model(&ScheduleModel{}).
		Where("slot = ? AND status = ?", slot.Int(), domain.StatusPending).
		Update("status", domain.StatusRunning)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		exists, err := r.exists(ctx, slot)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrConflict
	}
	return nil
}

func (r *GormScheduleRepo) MarkCompleted(ctx context.Context, slot domain.SlotID, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&ScheduleModel{}).
		Where("slot = ?", slot.Int()).
		Updates(map[string]any{
			"status":      domain.StatusCompleted,
			"last_run_at": at.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormScheduleRepo) MarkPending(ctx context.Context, slot domain.SlotID) error {
	result := r.db.WithContext(ctx).
		Model(&ScheduleModel{}).
		Where("slot = ?", slot.Int()).
		Update("status", domain.StatusPending)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormScheduleRepo) GetDueForDispatch(ctx context.Context, now time.Time) ([]domain.Schedule, error) {
	var models []ScheduleModel
	err := r.db.WithContext(ctx).
		Where("enabled AND status = ? AND due_at IS NOT NULL AND due_at <= ?", domain.StatusPending, now.UTC()).
		Order("slot ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	schedules := make([]domain.Schedule, 0, len(models))
	for i := range models {
		schedules = append(schedules, *scheduleModelToDomain(&models[i]))
	}

	return schedules, nil
}

func (r *GormScheduleRepo) exists(ctx context.Context, slot domain.SlotID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ScheduleModel{}).
		Where("slot = ?", slot.Int()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
