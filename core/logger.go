package core

import "github.com/hupe1980/messplanner/logging"

// scopedLogger prefixes every entry with fixed key/value pairs identifying
// the run (and, for tools, the function call) so log lines of concurrent
// planner turns can be told apart.
type scopedLogger struct {
	base  logging.Logger
	attrs []any
}

var _ logging.Logger = (*scopedLogger)(nil)

func newScopedLogger(l logging.Logger, attrs ...any) *scopedLogger {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	if s, ok := l.(*scopedLogger); ok {
		return s.with(attrs...)
	}
	return &scopedLogger{base: l, attrs: attrs}
}

func (l *scopedLogger) with(attrs ...any) *scopedLogger {
	merged := make([]any, 0, len(l.attrs)+len(attrs))
	merged = append(merged, l.attrs...)
	merged = append(merged, attrs...)
	return &scopedLogger{base: l.base, attrs: merged}
}

func (l *scopedLogger) args(args []any) []any {
	if len(l.attrs) == 0 {
		return args
	}
	out := make([]any, 0, len(args)+len(l.attrs))
	out = append(out, args...)
	return append(out, l.attrs...)
}

// Logger returns the scoped logger itself.
func (l *scopedLogger) Logger() logging.Logger { return l }

func (l *scopedLogger) Debug(msg string, args ...any) { l.base.Debug(msg, l.args(args)...) }
func (l *scopedLogger) Info(msg string, args ...any)  { l.base.Info(msg, l.args(args)...) }
func (l *scopedLogger) Warn(msg string, args ...any)  { l.base.Warn(msg, l.args(args)...) }
func (l *scopedLogger) Error(msg string, args ...any) { l.base.Error(msg, l.args(args)...) }

// LogDebug logs at debug level with the run attributes attached.
func (l *scopedLogger) LogDebug(msg string, args ...any) { l.Debug(msg, args...) }

// LogInfo logs at info level with the run attributes attached.
func (l *scopedLogger) LogInfo(msg string, args ...any) { l.Info(msg, args...) }

// LogWarn logs at warn level with the run attributes attached.
func (l *scopedLogger) LogWarn(msg string, args ...any) { l.Warn(msg, args...) }

// LogError logs at error level with the run attributes attached.
func (l *scopedLogger) LogError(msg string, args ...any) { l.Error(msg, args...) }
