// Package logrus adapts logrus to stash.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/stash"
)

var _ stash.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New returns a Logger writing to l, tagged with component=stash.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "stash")}
}

func (l Logger) Debug(msg string, f stash.Fields) { l.log(logrus.DebugLevel, msg, f) }
func (l Logger) Info(msg string, f stash.Fields)  { l.log(logrus.InfoLevel, msg, f) }
func (l Logger) Warn(msg string, f stash.Fields)  { l.log(logrus.WarnLevel, msg, f) }
func (l Logger) Error(msg string, f stash.Fields) { l.log(logrus.ErrorLevel, msg, f) }

func (l Logger) log(lvl logrus.Level, msg string, f stash.Fields) {
	if !l.E.Logger.IsLevelEnabled(lvl) {
		return
	}
	e := l.E
	if err, ok := f["err"].(error); ok {
		e = e.WithError(err)
	}
	for k, v := range f {
		if k == "err" {
			continue
		}
		e = e.WithField(k, v)
	}
	e.Log(lvl, msg)
}
