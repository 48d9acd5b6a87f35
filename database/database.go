package database

import (
	"fmt"
	"time"

	"QQFarmBot/configuration"
	"QQFarmBot/logger"
	"QQFarmBot/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Connect() error {
	logger.Log.Info("Connecting to database...")
	cfg := configuration.Get().Database

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.Var)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	DB = db

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := DB.AutoMigrate(&models.Account{}, &models.AdminUser{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database models: %w", err)
	}

	go monitorDatabaseHealth()

	return nil
}

func monitorDatabaseHealth() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		sqlDB, err := DB.DB()
		if err != nil {
			logger.Log.WithError(err).Error("Failed to get database instance for health check")
			continue
		}

		if err := sqlDB.Ping(); err != nil {
			logger.Log.WithError(err).Error("Database health check failed")
			continue
		}

		stats := sqlDB.Stats()
		logger.Log.Debugf("DB stats - open: %d, in use: %d, idle: %d", stats.OpenConnections, stats.InUse, stats.Idle)
	}
}

func GetDB() *gorm.DB {
	return DB
}
