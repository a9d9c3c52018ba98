// Package database holds the GORM models and connection helper for the
// PostgreSQL/TimescaleDB analysis store.
package database

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/ecogmark/internal/log"
	"go.uber.org/zap"
)

// CreateConnection opens a GORM handle with gorm's logger routed through zap
func CreateConnection(connectionString string) (*gorm.DB, error) {
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Info("connecting to TimescaleDB...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		log.Warn("warning: unable to create a TimescaleDB connection:", err)
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the analysis tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Analysis{}, &Segment{})
}
