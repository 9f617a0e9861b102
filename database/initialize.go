package database

import (
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/umakantv/go-utils/db"
	"github.com/umakantv/go-utils/logger"
	"go.uber.org/zap"

	"taskhub-service/config"
)

// Initialize opens the configured database and applies the schema. The
// returned handle is the single process-wide connection; callers pass it
// down explicitly rather than reaching for a package global.
func Initialize(cfg config.DatabaseConfig) *sqlx.DB {
	dbConn := db.GetDBConnection(db.DatabaseConfig{
		DRIVER: cfg.Driver,
		DB:     cfg.DSN,
	})

	if err := ApplySchema(dbConn); err != nil {
		logger.Error("Error while applying database schema", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Database initialized successfully")
	return dbConn
}
