// Package logger defines the logging facade used across the engine.
// Concrete backends live in subpackages and are injected at startup,
// keeping the optimization code free of any particular logging library.
package logger

type Level int8

const (
	Disabled   Level = -1
	TraceLevel Level = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
	PanicLevel
	NoLevel
)

// Logger is the minimal contract every component logs through.
// WithField/WithFields/WithError derive a decorated child logger from
// the receiver; the receiver itself is never mutated.
type Logger interface {
	WithField(key string, value any) Logger
	WithFields(fields map[string]any) Logger
	WithError(err error) Logger

	Print(args ...any)
	Trace(args ...any)
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Fatal(args ...any)
	Panic(args ...any)

	Printf(format string, args ...any)
	Tracef(format string, args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	Panicf(format string, args ...any)

	SetLevel(level Level)
	GetLevel() Level
}
