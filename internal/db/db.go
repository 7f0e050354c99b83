package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/logger"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	maxOpenConns    = 50
	maxIdleConns    = 10
	connMaxLifetime = 5 * time.Minute
	pingTimeout     = 5 * time.Second
)

// InitDB opens the Postgres pool and exits the process when it is unreachable.
func InitDB(cfg *config.Config) *sql.DB {
	db, err := NewDatabase(cfg)
	if err != nil {
		logger.L().Fatal("database unavailable",
			zap.String("host", cfg.DBHost),
			zap.String("dbname", cfg.DBName),
			zap.Error(err),
		)
	}

	logger.L().Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.String("dbname", cfg.DBName),
	)
	return db
}

func NewDatabase(cfg *config.Config) (*sql.DB, error) {
	return newDatabaseWithDriver(cfg, "postgres")
}

func newDatabaseWithDriver(cfg *config.Config, driver string) (*sql.DB, error) {
	db, err := sql.Open(driver, buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	return db, nil
}

// buildDSN renders a lib/pq key/value connection string. Empty settings are
// left out so the driver defaults apply.
func buildDSN(cfg *config.Config) string {
	sslmode := cfg.DBSSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	pairs := []struct{ key, value string }{
		{"host", cfg.DBHost},
		{"port", cfg.DBPort},
		{"user", cfg.DBUser},
		{"password", cfg.DBPassword},
		{"dbname", cfg.DBName},
		{"sslmode", sslmode},
	}

	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.value == "" {
			continue
		}
		parts = append(parts, p.key+"="+quoteDSNValue(p.value))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
