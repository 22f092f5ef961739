package infra

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase opens a GORM connection backed by pgx and applies the schema.
//
// TranslateError is on so unique violations surface as gorm.ErrDuplicatedKey,
// which the repositories map to DuplicateLotNumber / DuplicateSerialNumber.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return db, nil
}

// Open connects without touching the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	return db, nil
}

// Migrate runs every schema step in order. Each step is idempotent, so
// re-running on an up-to-date database is a no-op.
func Migrate(db *gorm.DB) error {
	for _, step := range schemaSteps {
		if err := db.Exec(step.sql).Error; err != nil {
			return fmt.Errorf("schema step %q: %w", step.descr, err)
		}
	}
	return nil
}
