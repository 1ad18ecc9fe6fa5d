package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/notifygov/delivery-engine/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_notifications",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.NotificationModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_notifications_status_type_created ON notifications (status, type, created_at)`,
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_idempotency_key ON notifications (idempotency_key) WHERE idempotency_key IS NOT NULL`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_retry ON notifications (next_retry_at) WHERE status = 'created'`,
					`CREATE INDEX IF NOT EXISTS idx_notifications_provider_reference ON notifications (provider_reference) WHERE provider_reference IS NOT NULL`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.NotificationModel{})
			},
		},
		{
			ID: "000002_create_notification_attempts",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.NotificationAttemptModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_notification_id ON notification_attempts (notification_id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.NotificationAttemptModel{})
			},
		},
		{
			ID: "000003_create_service_callbacks",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.ServiceCallbackModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_service_callbacks_service_type ON service_callbacks (service_id, type)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ServiceCallbackModel{})
			},
		},
		{
			ID: "000004_create_complaints",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.ComplaintModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_complaints_notification_id ON complaints (notification_id)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.ComplaintModel{})
			},
		},
	})

	return m.Migrate()
}
