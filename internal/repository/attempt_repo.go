package repository

import (
	"context"

	"github.com/stageline/webinar-mailer/internal/domain"
	"gorm.io/gorm"
)

type AttemptRepository interface {
	Create(ctx context.Context, a *domain.EmailAttempt) error
	ListBySlot(ctx context.Context, slot domain.SlotID, limit int) ([]domain.EmailAttempt, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.EmailAttempt) error {
	return r.db.WithContext(ctx).Create(attemptModelFromDomain(a)).Error
}

func (r *GormAttemptRepo) ListBySlot(ctx context.Context, slot domain.SlotID, limit int) ([]domain.EmailAttempt, error) {
	if limit <= 0 {
		limit = 50
	}

	var models []EmailAttemptModel
	err := r.db.WithContext(ctx).
		Where("slot = ?", slot.Int()).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.EmailAttempt, 0, len(models))
	for i := range models {
		m := models[i]
		attempts = append(attempts, domain.EmailAttempt{
			ID:        m.ID,
			Slot:      domain.SlotID(m.Slot),
			Kind:      m.Kind,
			Recipient: m.Recipient,
			Subject:   m.Subject,
			Success:   m.Success,
			Error:     m.Error,
			CreatedAt: m.CreatedAt,
		})
	}

	return attempts, nil
}
