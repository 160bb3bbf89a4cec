package httpcore

import "github.com/sirupsen/logrus"

// Logger is the diagnostic sink used for the server's own operational
// messages — accept-loop transient errors and transport-wrap failures. It
// never logs served-request access lines; that is the
// served-request-logging Non-goal, not a restriction on the server's own
// diagnostics. Shape matches atreugo's Logger so an embedder that already
// has one of those lying around can pass it straight through.
type Logger interface {
	Print(v ...interface{})
	Printf(format string, args ...interface{})
}

// logrusLogger adapts a *logrus.Logger to Logger.
type logrusLogger struct {
	l *logrus.Logger
}

func (l *logrusLogger) Print(v ...interface{})                 { l.l.Debug(v...) }
func (l *logrusLogger) Printf(format string, args ...interface{}) { l.l.Debugf(format, args...) }

// NewLogrusLogger wraps l as a Logger. Pass nil to get a default
// logrus.Logger configured at Warn level.
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.New()
		l.SetLevel(logrus.WarnLevel)
	}
	return &logrusLogger{l: l}
}

var defaultLogger = NewLogrusLogger(nil)
