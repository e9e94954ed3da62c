package zerolog

import (
	"fmt"

	"github.com/quantforge/evorun/pkg/logger"
	"github.com/rs/zerolog"
)

// Adapter exposes a zerolog instance through the logger.Logger facade.
type Adapter struct {
	*zerolog.Logger
}

func NewAdapter(logger *zerolog.Logger) *Adapter {
	return &Adapter{logger}
}

// GetLevel implements logger.Logger.
func (z *Adapter) GetLevel() logger.Level {
	return toLevel(z.Logger.GetLevel())
}

// SetLevel implements logger.Logger.
func (z *Adapter) SetLevel(level logger.Level) {
	zerolog.SetGlobalLevel(toZerologLevel(level))
}

// Trace implements logger.Logger.
func (z *Adapter) Trace(args ...any) {
	z.Logger.Trace().Msg(fmt.Sprint(args...))
}

// Tracef implements logger.Logger.
func (z *Adapter) Tracef(format string, args ...any) {
	z.Logger.Trace().Msgf(format, args...)
}

// Print implements logger.Logger.
func (z *Adapter) Print(args ...any) {
	z.Logger.Print(args...)
}

// Debug implements logger.Logger.
func (z *Adapter) Debug(args ...any) {
	z.Logger.Debug().Msg(fmt.Sprint(args...))
}

// Fatal implements logger.Logger.
func (z *Adapter) Fatal(args ...any) {
	z.Logger.Fatal().Msg(fmt.Sprint(args...))
}

// Info implements logger.Logger.
func (z *Adapter) Info(args ...any) {
	z.Logger.Info().Msg(fmt.Sprint(args...))
}

// Warn implements logger.Logger.
func (z *Adapter) Warn(args ...any) {
	z.Logger.Warn().Msg(fmt.Sprint(args...))
}

// Panic implements logger.Logger.
func (z *Adapter) Panic(args ...any) {
	z.Logger.Panic().Msg(fmt.Sprint(args...))
}

// Infof implements logger.Logger.
func (z *Adapter) Infof(format string, args ...any) {
	z.Logger.Info().Msgf(format, args...)
}

// Fatalf implements logger.Logger.
func (z *Adapter) Fatalf(format string, args ...any) {
	z.Logger.Fatal().Msgf(format, args...)
}

// Debugf implements logger.Logger.
func (z *Adapter) Debugf(format string, args ...any) {
	z.Logger.Debug().Msgf(format, args...)
}

// Panicf implements logger.Logger.
func (z *Adapter) Panicf(format string, args ...any) {
	z.Logger.Panic().Msgf(format, args...)
}

// Printf implements logger.Logger.
func (z *Adapter) Printf(format string, args ...any) {
	z.Logger.Printf(format, args...)
}

// Warnf implements logger.Logger.
func (z *Adapter) Warnf(format string, args ...any) {
	z.Logger.Warn().Msgf(format, args...)
}

// Error implements logger.Logger.
func (z *Adapter) Error(args ...any) {
	z.Logger.Error().Msg(fmt.Sprint(args...))
}

// Errorf implements logger.Logger.
func (z *Adapter) Errorf(format string, args ...any) {
	z.Logger.Error().Msgf(format, args...)
}

// WithError implements logger.Logger.
func (z *Adapter) WithError(err error) logger.Logger {
	newLogger := z.With().Err(err).Logger()
	return &Adapter{&newLogger}
}

// WithField implements logger.Logger.
func (z *Adapter) WithField(key string, value any) logger.Logger {
	newLogger := z.With().Interface(key, fmt.Sprint(value)).Logger()
	return &Adapter{&newLogger}
}

// WithFields implements logger.Logger.
func (z *Adapter) WithFields(fields map[string]any) logger.Logger {
	newLogger := z.With().Fields(fields).Logger()
	return &Adapter{&newLogger}
}

// toLevel converts zerolog.Level to logger.Level.
func toLevel(level zerolog.Level) logger.Level {
	levelMap := map[zerolog.Level]logger.Level{
		zerolog.Disabled:   logger.Disabled,
		zerolog.NoLevel:    logger.NoLevel,
		zerolog.TraceLevel: logger.TraceLevel,
		zerolog.DebugLevel: logger.DebugLevel,
		zerolog.InfoLevel:  logger.InfoLevel,
		zerolog.WarnLevel:  logger.WarnLevel,
		zerolog.ErrorLevel: logger.ErrorLevel,
		zerolog.FatalLevel: logger.FatalLevel,
		zerolog.PanicLevel: logger.PanicLevel,
	}

	if level, ok := levelMap[level]; ok {
		return level
	}

	return logger.NoLevel
}

// toZerologLevel converts logger.Level to zerolog.Level.
func toZerologLevel(level logger.Level) zerolog.Level {
	levelMap := map[logger.Level]zerolog.Level{
		logger.Disabled:   zerolog.Disabled,
		logger.NoLevel:    zerolog.NoLevel,
		logger.TraceLevel: zerolog.TraceLevel,
		logger.DebugLevel: zerolog.DebugLevel,
		logger.InfoLevel:  zerolog.InfoLevel,
		logger.WarnLevel:  zerolog.WarnLevel,
		logger.ErrorLevel: zerolog.ErrorLevel,
		logger.FatalLevel: zerolog.FatalLevel,
		logger.PanicLevel: zerolog.PanicLevel,
	}

	if level, ok := levelMap[level]; ok {
		return level
	}

	return zerolog.NoLevel
}
