package router

import (
	"fmt"

	"github.com/pion/logging"

	"github.com/camroute/camroute/internal/logger"
)

// pionLoggerFactory forwards pion's internal logs to the main logger.
type pionLoggerFactory struct {
	parent logger.Writer
}

func (f *pionLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{parent: f.parent, scope: scope}
}

type pionLogger struct {
	parent logger.Writer
	scope  string
}

func (l *pionLogger) log(level logger.Level, msg string) {
	l.parent.Log(level, "[pion %s] %s", l.scope, msg)
}

func (l *pionLogger) Trace(msg string) {
	l.log(logger.Debug, msg)
}

func (l *pionLogger) Tracef(format string, args ...interface{}) {
	l.log(logger.Debug, fmt.Sprintf(format, args...))
}

func (l *pionLogger) Debug(msg string) {
	l.log(logger.Debug, msg)
}

func (l *pionLogger) Debugf(format string, args ...interface{}) {
	l.log(logger.Debug, fmt.Sprintf(format, args...))
}

func (l *pionLogger) Info(msg string) {
	l.log(logger.Debug, msg)
}

func (l *pionLogger) Infof(format string, args ...interface{}) {
	l.log(logger.Debug, fmt.Sprintf(format, args...))
}

func (l *pionLogger) Warn(msg string) {
	l.log(logger.Warn, msg)
}

func (l *pionLogger) Warnf(format string, args ...interface{}) {
	l.log(logger.Warn, fmt.Sprintf(format, args...))
}

func (l *pionLogger) Error(msg string) {
	l.log(logger.Error, msg)
}

func (l *pionLogger) Errorf(format string, args ...interface{}) {
	l.log(logger.Error, fmt.Sprintf(format, args...))
}
