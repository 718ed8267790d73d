package db

import (
	"fmt"

	"github.com/zulandar/council/internal/config"
	"github.com/zulandar/council/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model of the archive schema.
func AllModels() []interface{} {
	return []interface{}{
		&models.ArchivedSession{},
		&models.ArchivedMessage{},
	}
}

// AutoMigrate creates or updates all archive tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// Open connects to the archive database and migrates its schema. For MySQL
// the database itself is created first when missing.
func Open(cfg config.ArchiveConfig) (*gorm.DB, error) {
	if cfg.Driver == "mysql" {
		adminDB, err := ConnectAdmin(cfg.MySQL)
		if err != nil {
			return nil, err
		}
		if err := CreateDatabase(adminDB, cfg.MySQL.Database); err != nil {
			return nil, err
		}
		if sqlDB, err := adminDB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	gormDB, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}
