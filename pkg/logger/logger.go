// Package logger is a process-wide logging facade that fans every call out to
// the configured backends. Calls made before Init are dropped.
package logger

import "sync"

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

type level int

const (
	levelPrint level = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
	levelFatal
)

// Logger holds multiple logging backends and dispatches log calls to all of them.
type Logger struct {
	instances []LoggerInstance
	fields    []any
}

var (
	mu        sync.RWMutex
	singleton *Logger
)

// Init initializes the global logger with one or more logging backends.
func Init(instances ...LoggerInstance) {
	mu.Lock()
	defer mu.Unlock()
	singleton = &Logger{instances: instances}
}

// With returns a logger that prepends keyvals to every call.
func With(keyvals ...any) *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if singleton == nil {
		return &Logger{fields: keyvals}
	}
	return singleton.With(keyvals...)
}

// With returns a child logger sharing the backends of l.
func (l *Logger) With(keyvals ...any) *Logger {
	fields := make([]any, 0, len(l.fields)+len(keyvals))
	fields = append(fields, l.fields...)
	fields = append(fields, keyvals...)
	return &Logger{instances: l.instances, fields: fields}
}

func (l *Logger) dispatch(lvl level, message string, keyvals []any) {
	if l == nil {
		return
	}
	if len(l.fields) > 0 {
		keyvals = append(append([]any{}, l.fields...), keyvals...)
	}
	for _, instance := range l.instances {
		switch lvl {
		case levelPrint:
			instance.Log(message, keyvals...)
		case levelDebug:
			instance.Debug(message, keyvals...)
		case levelInfo:
			instance.Info(message, keyvals...)
		case levelWarn:
			instance.Warn(message, keyvals...)
		case levelError:
			instance.Error(message, keyvals...)
		case levelFatal:
			instance.Fatal(message, keyvals...)
		}
	}
}

func (l *Logger) Log(message string, keyvals ...any)   { l.dispatch(levelPrint, message, keyvals) }
func (l *Logger) Debug(message string, keyvals ...any) { l.dispatch(levelDebug, message, keyvals) }
func (l *Logger) Info(message string, keyvals ...any)  { l.dispatch(levelInfo, message, keyvals) }
func (l *Logger) Warn(message string, keyvals ...any)  { l.dispatch(levelWarn, message, keyvals) }
func (l *Logger) Error(message string, keyvals ...any) { l.dispatch(levelError, message, keyvals) }
func (l *Logger) Fatal(message string, keyvals ...any) { l.dispatch(levelFatal, message, keyvals) }

func global() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return singleton
}

// Log writes a message at the default log level to all configured backends.
func Log(message string, keyvals ...any) { global().dispatch(levelPrint, message, keyvals) }

// Info writes a message at INFO level to all configured backends.
func Info(message string, keyvals ...any) { global().dispatch(levelInfo, message, keyvals) }

// Warn writes a message at WARN level to all configured backends.
func Warn(message string, keyvals ...any) { global().dispatch(levelWarn, message, keyvals) }

// Error writes a message at ERROR level to all configured backends.
func Error(message string, keyvals ...any) { global().dispatch(levelError, message, keyvals) }

// Debug writes a message at DEBUG level to all configured backends.
func Debug(message string, keyvals ...any) { global().dispatch(levelDebug, message, keyvals) }

// Fatal writes a message at FATAL level and terminates the program.
func Fatal(message string, keyvals ...any) { global().dispatch(levelFatal, message, keyvals) }
