package database

import (
	"github.com/Dungyy/Gerz-platform-sub000/internal/models"
	"github.com/Dungyy/Gerz-platform-sub000/pkg/logger"

	"gorm.io/gorm"
)

// Migrate 执行数据库迁移
func Migrate() error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting database migration...")

	if err := AutoMigrate(DB); err != nil {
		appLogger.Errorf("Database migration failed: %v", err)
		return err
	}

	appLogger.Info("Database migration completed successfully")
	return nil
}

// AutoMigrate 在指定连接上建表，测试里也用它
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Organization{},
		&models.Actor{},
		&models.Property{},
		&models.Unit{},
		&models.MaintenanceRequest{},
		&models.Comment{},
		&models.Invitation{},
		&models.Notification{},
		&models.DomainEvent{},
	)
}
