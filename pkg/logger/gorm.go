package logger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// defaultMaxSQLLength keeps multi-row import batches readable in the log.
const defaultMaxSQLLength = 2000

// GormLogger routes gorm's query log through slog.
type GormLogger struct {
	LogLevel      gormlogger.LogLevel
	SlowThreshold time.Duration
	// MaxSQLLength truncates logged statements; zero logs them whole.
	MaxSQLLength  int
}

func NewGormLogger(logLevel gormlogger.LogLevel, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{
		LogLevel:      logLevel,
		SlowThreshold: slowThreshold,
		MaxSQLLength:  defaultMaxSQLLength,
	}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.LogLevel = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Info {
		Log.Info(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Warn {
		Log.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Error {
		Log.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace logs one statement. Not-found lookups are silent and unique-key
// rejections are warnings: imports probe for existing trading codes and retry
// failed batches row by row, so both are routine.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []any{
		slog.String("sql", l.truncate(sql)),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}

	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = nil
	case isUniqueViolation(err):
		if l.LogLevel >= gormlogger.Warn {
			Log.Warn("SQL unique constraint rejected write", append(fields, slog.String("error", err.Error()))...)
		}
		return
	default:
		if l.LogLevel >= gormlogger.Error {
			Log.Error("SQL error", append(fields, slog.String("error", err.Error()))...)
		}
		return
	}

	if l.SlowThreshold != 0 && elapsed > l.SlowThreshold && l.LogLevel >= gormlogger.Warn {
		Log.Warn("Slow SQL", append(fields, slog.Duration("threshold", l.SlowThreshold))...)
		return
	}
	if l.LogLevel >= gormlogger.Info {
		Log.Debug("SQL", fields...)
	}
}

func (l *GormLogger) truncate(sql string) string {
	if l.MaxSQLLength <= 0 || len(sql) <= l.MaxSQLLength {
		return sql
	}
	return fmt.Sprintf("%s... (%d bytes)", sql[:l.MaxSQLLength], len(sql))
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
