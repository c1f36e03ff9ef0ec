package database

import (
	"errors"
	"time"

	"github.com/classpadhq/classpad/backend/internal/firepads"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationDropOrphanedCollabRows = "2026-07-12_drop_orphaned_collab_rows"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationDropOrphanedCollabRows, apply: dropOrphanedCollabRows},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// dropOrphanedCollabRows removes Collab rows whose firepad was deleted
// outside the cascade path. User removal used to leave these behind.
func dropOrphanedCollabRows(db *gorm.DB) error {
	return db.
		Where("firepad_id NOT IN (?)", db.Model(&firepads.Firepad{}).Select("id")).
		Delete(&firepads.Collab{}).Error
}
