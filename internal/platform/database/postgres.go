package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"go.uber.org/zap"
)

var DB *sql.DB

// Connect opens the pgx pool and verifies it with a ping.
func Connect(ctx context.Context, connStr string, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	DB = db
	logger.Info("connected to PostgreSQL")
	return db, nil
}

func Close(logger *zap.Logger) {
	if DB != nil {
		if err := DB.Close(); err != nil {
			logger.Warn("closing database", zap.Error(err))
			return
		}
		logger.Info("database connection closed")
	}
}
