package embedded

import (
	"fmt"
	"log/slog"
)

// serverLogger forwards broker-internal log lines to the engine's slog
// logger at their native levels.
type serverLogger struct {
	logger *slog.Logger
}

func newServerLogger(logger *slog.Logger) *serverLogger {
	return &serverLogger{logger: logger.With("component", "broker")}
}

func (l *serverLogger) Noticef(format string, v ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *serverLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

func (l *serverLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l *serverLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "fatal", true)
}

func (l *serverLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l *serverLogger) Tracef(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}
