package logx

import "fmt"

// Fields is the structured payload attached to an entry.
type Fields map[string]any

// Entry accumulates fields before emitting a log line.
type Entry struct {
	logger *Logger
	fields Fields
}

func newEntry(logger *Logger) *Entry {
	return &Entry{logger: logger, fields: make(Fields)}
}

// WithField adds a field (chainable).
func (e *Entry) WithField(key string, value any) *Entry {
	e.fields[key] = value
	return e
}

// WithFields adds multiple fields (chainable).
func (e *Entry) WithFields(fields Fields) *Entry {
	for k, v := range fields {
		e.fields[k] = v
	}
	return e
}

// WithError adds an "error" field (chainable).
func (e *Entry) WithError(err error) *Entry {
	if err != nil {
		e.fields["error"] = err.Error()
	}
	return e
}

func (e *Entry) Debug(msg string) { e.logger.log(LevelDebug, msg, e.fields) }
func (e *Entry) Info(msg string)  { e.logger.log(LevelInfo, msg, e.fields) }
func (e *Entry) Warn(msg string)  { e.logger.log(LevelWarn, msg, e.fields) }
func (e *Entry) Error(msg string) { e.logger.log(LevelError, msg, e.fields) }
func (e *Entry) Fatal(msg string) {
	e.logger.log(LevelFatal, msg, e.fields)
	e.logger.exit(1)
}

func (e *Entry) Debugf(format string, args ...any) {
	e.logger.log(LevelDebug, fmt.Sprintf(format, args...), e.fields)
}
func (e *Entry) Infof(format string, args ...any) {
	e.logger.log(LevelInfo, fmt.Sprintf(format, args...), e.fields)
}
func (e *Entry) Warnf(format string, args ...any) {
	e.logger.log(LevelWarn, fmt.Sprintf(format, args...), e.fields)
}
func (e *Entry) Errorf(format string, args ...any) {
	e.logger.log(LevelError, fmt.Sprintf(format, args...), e.fields)
}
