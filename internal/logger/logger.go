// Package logger provides the leveled logger used throughout the session
// runtime. It wraps github.com/cenkalti/log, the logging library the
// upstream rain client itself imports.
package logger

import (
	"github.com/cenkalti/log"
)

// Logger is the subset of cenkalti/log's API that the runtime calls. Every
// call site in the reactor, checker and façade existed in the teacher code
// before this package did; this interface exists so tests can substitute a
// recording logger without touching cenkalti/log.
type Logger interface {
	Debug(args ...interface{})
	Debugln(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infoln(args ...interface{})
	Infof(format string, args ...interface{})
	Notice(args ...interface{})
	Warning(args ...interface{})
	Warningln(args ...interface{})
	Warningf(format string, args ...interface{})
	Error(args ...interface{})
	Errorln(args ...interface{})
	Errorf(format string, args ...interface{})
}

type wrapper struct {
	l *log.Logger
}

// New returns a logger tagged with name, e.g. "session" or "checker".
func New(name string) Logger {
	return &wrapper{l: log.NewLogger(name)}
}

func (w *wrapper) Debug(args ...interface{})                 { w.l.Debug(args...) }
func (w *wrapper) Debugln(args ...interface{})                { w.l.Debugln(args...) }
func (w *wrapper) Debugf(format string, args ...interface{})  { w.l.Debugf(format, args...) }
func (w *wrapper) Info(args ...interface{})                  { w.l.Info(args...) }
func (w *wrapper) Infoln(args ...interface{})                 { w.l.Infoln(args...) }
func (w *wrapper) Infof(format string, args ...interface{})   { w.l.Infof(format, args...) }
func (w *wrapper) Notice(args ...interface{})                { w.l.Notice(args...) }
func (w *wrapper) Warning(args ...interface{})               { w.l.Warning(args...) }
func (w *wrapper) Warningln(args ...interface{})              { w.l.Warningln(args...) }
func (w *wrapper) Warningf(format string, args ...interface{}) { w.l.Warningf(format, args...) }
func (w *wrapper) Error(args ...interface{})                 { w.l.Error(args...) }
func (w *wrapper) Errorln(args ...interface{})                { w.l.Errorln(args...) }
func (w *wrapper) Errorf(format string, args ...interface{})  { w.l.Errorf(format, args...) }
