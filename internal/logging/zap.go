package logging

import "go.uber.org/zap"

// ZapLogger adapts *zap.SugaredLogger to the Logger interface, for
// deployments that want zap's sampling and encoder configuration in
// production.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZap wraps a *zap.Logger. A nil logger builds a production logger
// via zap.NewProduction, falling back to a no-op core if that fails.
func NewZap(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		built, err := zap.NewProduction()
		if err != nil {
			built = zap.NewNop()
		}
		logger = built
	}
	return &ZapLogger{sugar: logger.Sugar()}
}

func (l *ZapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
