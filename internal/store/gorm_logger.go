package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/feichai0017/rag-service/pkg/logger"
)

const slowThreshold = time.Second

// GormLogger routes gorm's logging through the service logger.
type GormLogger struct {
	log   logger.Logger
	level gormLogger.LogLevel
}

func NewGormLogger(log logger.Logger) *GormLogger {
	return &GormLogger{log: log.Named("gorm"), level: gormLogger.Warn}
}

func (g *GormLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

func (g *GormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormLogger.Info {
		logger.FromContext(ctx, g.log).Info(fmt.Sprintf(msg, args...))
	}
}

func (g *GormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormLogger.Warn {
		logger.FromContext(ctx, g.log).Warn(fmt.Sprintf(msg, args...))
	}
}

func (g *GormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormLogger.Error {
		logger.FromContext(ctx, g.log).Error(fmt.Sprintf(msg, args...))
	}
}

func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormLogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	log := logger.FromContext(ctx, g.log)

	switch {
	case err != nil && g.level >= gormLogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		log.Error("Query failed",
			logger.String("sql", sql),
			logger.Int64("rows", rows),
			logger.Duration("elapsed", elapsed),
			logger.Error(err),
		)
	case elapsed > slowThreshold && g.level >= gormLogger.Warn:
		sql, rows := fc()
		log.Warn("Slow query",
			logger.String("sql", sql),
			logger.Int64("rows", rows),
			logger.Duration("elapsed", elapsed),
		)
	case g.level >= gormLogger.Info:
		sql, rows := fc()
		log.Debug("Query",
			logger.String("sql", sql),
			logger.Int64("rows", rows),
			logger.Duration("elapsed", elapsed),
		)
	}
}
