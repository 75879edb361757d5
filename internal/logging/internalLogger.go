package logging

import (
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var internalLogger atomic.Value

func init() {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	internalLogger.Store(logrus.FieldLogger(l))
}

// InternalLogger returns the logger used to report problems inside the
// forwarding stack itself. It is never wired to the handler it reports on, so
// a failing push cannot feed back into the buffer.
func InternalLogger() logrus.FieldLogger {
	return internalLogger.Load().(logrus.FieldLogger)
}

// SetInternalLogger replaces the internal logger.
func SetInternalLogger(l logrus.FieldLogger) {
	if l == nil {
		return
	}
	internalLogger.Store(l)
}
