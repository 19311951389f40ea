package client

import (
	"github.com/rs/zerolog"
)

// Logger is an optional package logger.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	// Warnf logs a formatted warning message.
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}

// ZerologLogger adapts a zerolog.Logger to Logger.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger tags every message with component=tvdl.
func NewZerologLogger(l zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{log: l.With().Str("component", "tvdl").Logger()}
}

func (z *ZerologLogger) Debugf(format string, args ...any) {
	z.log.Debug().Msgf(format, args...)
}

func (z *ZerologLogger) Infof(format string, args ...any) {
	z.log.Info().Msgf(format, args...)
}

func (z *ZerologLogger) Warnf(format string, args ...any) {
	z.log.Warn().Msgf(format, args...)
}

// withJobFields attaches job identity to loggers that support fields.
func withJobFields(l Logger, jobID string, mediaID int64) Logger {
	z, ok := l.(*ZerologLogger)
	if !ok {
		return l
	}
	return &ZerologLogger{log: z.log.With().Str("job_id", jobID).Int64("media_id", mediaID).Logger()}
}
