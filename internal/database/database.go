package database

import (
	"fmt"

	"github.com/arnold/phasetrack-api/internal/config"
	"github.com/arnold/phasetrack-api/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func Connect(cfg *config.Config) error {
	var dialector gorm.Dialector

	// Use PostgreSQL if URL starts with postgres, otherwise SQLite
	if cfg.UsePostgres() {
		dialector = postgres.Open(cfg.DatabaseURL)
	} else {
		dialector = sqlite.Open(cfg.DatabaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return err
	}

	DB = db
	return nil
}

// OpenInMemory opens a private in-memory SQLite database, migrates it and
// installs it as DB. name keeps concurrent callers apart.
func OpenInMemory(name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	DB = db
	if err := Migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate() error {
	return DB.AutoMigrate(
		&models.Department{},
		&models.User{},
		&models.Phase{},
		&models.Project{},
		&models.PhaseHistory{},
		&models.Task{},
		&models.TaskRemark{},
		&models.TaskAttachment{},
		&models.Activity{},
		&models.Notification{},
	)
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	default:
		return logger.Silent
	}
}
