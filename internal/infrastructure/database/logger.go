package database

import (
	"time"

	"rewardledger/internal/logging"

	"github.com/rs/zerolog"
	"gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// gormLogWriter sends gorm's warnings, errors and slow queries to zerolog.
type gormLogWriter struct {
	logger zerolog.Logger
}

func (w gormLogWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn().Msgf(format, args...)
}

// newGormLogger drops ErrRecordNotFound: a missing balance, grant or
// subscription row is the normal answer for a new account.
func newGormLogger(log zerolog.Logger) logger.Interface {
	return logger.New(gormLogWriter{logger: logging.Component(log, "gorm")}, logger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
