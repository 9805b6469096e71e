// Package database handles database connections and migrations.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clubhub/internal/config"
	"clubhub/internal/middleware"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQuery = 200 * time.Millisecond

// queryLogger routes GORM output through the process slog logger.
// Missing records are not errors here; repositories translate them.
type queryLogger struct {
	level logger.LogLevel
	slow  time.Duration
}

// NewGormLogger returns the slog-backed GORM logger used by every connection.
func NewGormLogger(level logger.LogLevel) logger.Interface {
	return queryLogger{level: level, slow: slowQuery}
}

func (q queryLogger) LogMode(level logger.LogLevel) logger.Interface {
	q.level = level
	return q
}

func (q queryLogger) emit(ctx context.Context, at logger.LogLevel, msg string, args ...any) {
	if q.level < at {
		return
	}
	switch at {
	case logger.Error:
		middleware.Logger.ErrorContext(ctx, msg, args...)
	case logger.Warn:
		middleware.Logger.WarnContext(ctx, msg, args...)
	default:
		middleware.Logger.DebugContext(ctx, msg, args...)
	}
}

func (q queryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	q.emit(ctx, logger.Info, fmt.Sprintf(msg, data...))
}

func (q queryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	q.emit(ctx, logger.Warn, fmt.Sprintf(msg, data...))
}

func (q queryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	q.emit(ctx, logger.Error, fmt.Sprintf(msg, data...))
}

func (q queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= logger.Silent {
		return
	}
	took := time.Since(begin)
	sql, rows := fc()
	attrs := []any{slog.String("sql", sql), slog.Int64("rows", rows), slog.Duration("took", took)}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		q.emit(ctx, logger.Error, "sql failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	if q.slow > 0 && took > q.slow {
		q.emit(ctx, logger.Warn, "sql slow", attrs...)
		return
	}
	q.emit(ctx, logger.Info, "sql", attrs...)
}

// Connect opens the postgres connection described by cfg and applies pool settings.
// Schema changes are left to ApplySchema.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         NewGormLogger(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}

	middleware.Logger.Info("database connected",
		slog.String("host", cfg.DBHost), slog.String("db", cfg.DBName))
	return db, nil
}

// configurePool applies the non-zero pool limits from cfg.
func configurePool(db *gorm.DB, cfg *config.Config) error {
	pool, err := db.DB()
	if err != nil {
		return fmt.Errorf("database pool: %w", err)
	}
	if n := cfg.DBMaxOpenConns; n > 0 {
		pool.SetMaxOpenConns(n)
	}
	if n := cfg.DBMaxIdleConns; n > 0 {
		pool.SetMaxIdleConns(n)
	}
	if m := cfg.DBConnMaxLifetimeMinutes; m > 0 {
		pool.SetConnMaxLifetime(time.Duration(m) * time.Minute)
	}
	return nil
}

// Ping reports whether the database answers within ctx.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// IsUniqueViolation reports whether err came from a unique index, on postgres or sqlite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
