package badgerstore

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// logger routes badger's printf-style logging into zap.
type logger struct {
	log *zap.Logger
}

func newLogger(log *zap.Logger) *logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &logger{log: log.Named("badger")}
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.log.Error(message(format, args))
}

func (l *logger) Warningf(format string, args ...interface{}) {
	l.log.Warn(message(format, args))
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.log.Info(message(format, args))
}

func (l *logger) Debugf(format string, args ...interface{}) {
	l.log.Debug(message(format, args))
}

func message(format string, args []interface{}) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
