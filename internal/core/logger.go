package core

import (
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// Logger is the structured logging surface used by the core packages. Both
// gofulmen's *logging.Logger and *zap.Logger satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// LoggerOrNop returns l, or a no-op logger when l is nil or a nil
// *zap.Logger or *logging.Logger.
func LoggerOrNop(l Logger) Logger {
	switch v := l.(type) {
	case nil:
		return zap.NewNop()
	case *zap.Logger:
		if v == nil {
			return zap.NewNop()
		}
	case *logging.Logger:
		if v == nil {
			return zap.NewNop()
		}
	}
	return l
}
