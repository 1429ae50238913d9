package logger

import (
	"fmt"

	"github.com/pion/logging"
	"go.uber.org/zap"
)

// PionFactory routes pion's internal logging into zap. Trace is folded into
// Debug since zap has no lower level.
type PionFactory struct {
	Base *zap.Logger
}

// NewPionFactory returns a factory writing through base (or the process logger).
func NewPionFactory(base *zap.Logger) *PionFactory {
	return &PionFactory{Base: OrDefault(base, "pion")}
}

// NewLogger implements logging.LoggerFactory.
func (f *PionFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{s: f.Base.Named(scope).Sugar()}
}

type pionLogger struct {
	s *zap.SugaredLogger
}

func (p *pionLogger) Trace(msg string)                          { p.s.Debug(msg) }
func (p *pionLogger) Tracef(format string, args ...interface{}) { p.s.Debug(fmt.Sprintf(format, args...)) }
func (p *pionLogger) Debug(msg string)                          { p.s.Debug(msg) }
func (p *pionLogger) Debugf(format string, args ...interface{}) { p.s.Debugf(format, args...) }
func (p *pionLogger) Info(msg string)                           { p.s.Info(msg) }
func (p *pionLogger) Infof(format string, args ...interface{})  { p.s.Infof(format, args...) }
func (p *pionLogger) Warn(msg string)                           { p.s.Warn(msg) }
func (p *pionLogger) Warnf(format string, args ...interface{})  { p.s.Warnf(format, args...) }
func (p *pionLogger) Error(msg string)                          { p.s.Error(msg) }
func (p *pionLogger) Errorf(format string, args ...interface{}) { p.s.Errorf(format, args...) }
