package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/stageline/webinar-mailer/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_schedules",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.ScheduleModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ScheduleModel{})
			},
		},
		{
			ID: "000002_create_attendees",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.AttendeeModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_attendees_slot1_pending ON attendees (created_at) WHERE NOT slot1_sent`,
					`CREATE INDEX IF NOT EXISTS idx_attendees_slot2_pending ON attendees (created_at) WHERE NOT slot2_sent`,
					`CREATE INDEX IF NOT EXISTS idx_attendees_slot3_pending ON attendees (created_at) WHERE NOT slot3_sent`,
					`CREATE INDEX IF NOT EXISTS idx_attendees_post_event_pending ON attendees (created_at) WHERE NOT post_event_sent`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.AttendeeModel{})
			},
		},
		{
			ID: "000003_create_email_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.EmailAttemptModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_email_attempts_slot_created ON email_attempts (slot, created_at)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.EmailAttemptModel{})
			},
		},
	})

	return m.Migrate()
}
