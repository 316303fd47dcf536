package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Logger wraps a zap.SugaredLogger so call sites never import zap directly.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar()}, nil
}

func (l *Logger) Sync() {
	if l == nil || l.SugaredLogger == nil {
		return
	}
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.log(l.SugaredLogger.Debugw, msg, kv) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.log(l.SugaredLogger.Infow, msg, kv) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.log(l.SugaredLogger.Warnw, msg, kv) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.log(l.SugaredLogger.Errorw, msg, kv) }
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.log(l.SugaredLogger.Fatalw, msg, kv) }

func (l *Logger) log(fn func(string, ...interface{}), msg string, kv []interface{}) {
	if l == nil || l.SugaredLogger == nil {
		return
	}
	fn(msg, sanitizeKVs(kv)...)
}

func (l *Logger) With(kv ...interface{}) *Logger {
	if l == nil || l.SugaredLogger == nil {
		return l
	}
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitizeKVs(kv)...)}
}

var redactedKeys = map[string]struct{}{
	"password": {}, "token": {}, "secret": {}, "override_token": {}, "authorization": {},
}

var kvPool = sync.Pool{New: func() any { return make([]interface{}, 0, 16) }}

// sanitizeKVs redacts values for keys that look sensitive so logs never leak
// override tokens or credentials that flowed through a generic kv logger call.
func sanitizeKVs(kv []interface{}) []interface{} {
	out := kvPool.Get().([]interface{})[:0]
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		val := kv[i+1]
		if _, sensitive := redactedKeys[strings.ToLower(key)]; sensitive {
			val = "[redacted]"
		}
		out = append(out, kv[i], val)
	}
	if len(kv)%2 == 1 {
		out = append(out, kv[len(kv)-1])
	}
	result := make([]interface{}, len(out))
	copy(result, out)
	kvPool.Put(out)
	return result
}
