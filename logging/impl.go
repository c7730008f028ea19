package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type (
	impl struct {
		name  string
		level AtomicLevel
		inUTC bool

		appenders []Appender
	}

	// LogEntry embeds a zapcore Entry and slice of Fields.
	LogEntry struct {
		zapcore.Entry
		fields []zapcore.Field
	}
)

func (imp *impl) newLogEntry(logLevel Level, msg string) *LogEntry {
	ret := &LogEntry{}
	ret.Time = time.Now()
	if imp.inUTC {
		ret.Time = ret.Time.UTC()
	}
	ret.LoggerName = imp.name
	ret.Caller = getCaller()
	ret.Level = logLevel.AsZap()
	ret.Message = msg

	return ret
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sublogger(subname string) Logger {
	newName := subname
	if imp.name != "" {
		newName = fmt.Sprintf("%s.%s", imp.name, subname)
	}

	return &impl{
		name:      newName,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
	}
}

func (imp *impl) Sync() error {
	var errs []error
	for _, appender := range imp.appenders {
		if err := appender.Sync(); err != nil {
			errs = append(errs, err)
		}
	}

	return multierr.Combine(errs...)
}

func (imp *impl) enabled(ctx context.Context, logLevel Level) bool {
	if GlobalLogLevel.Level() == zapcore.DebugLevel {
		return true
	}
	if logLevel == DEBUG && IsDebugMode(ctx) {
		return true
	}
	return logLevel >= imp.level.Get()
}

func (imp *impl) write(entry *LogEntry) {
	for _, appender := range imp.appenders {
		if err := appender.Write(entry.Entry, entry.fields); err != nil {
			fmt.Fprint(os.Stderr, err)
		}
	}
}

// Each public method funnels into one of the three emitters below so that `getCaller` always
// sits at the same stack depth relative to the user's call site.

func (imp *impl) emit(ctx context.Context, logLevel Level, args ...interface{}) {
	if !imp.enabled(ctx, logLevel) {
		return
	}
	imp.write(imp.newLogEntry(logLevel, fmt.Sprint(args...)))
}

func (imp *impl) emitf(ctx context.Context, logLevel Level, template string, args ...interface{}) {
	if !imp.enabled(ctx, logLevel) {
		return
	}
	imp.write(imp.newLogEntry(logLevel, fmt.Sprintf(template, args...)))
}

// emitw turns `keysAndValues` into zap fields where the odd elements are the keys and their
// following even counterpart is the value.
func (imp *impl) emitw(ctx context.Context, logLevel Level, msg string, keysAndValues ...interface{}) {
	if !imp.enabled(ctx, logLevel) {
		return
	}
	entry := imp.newLogEntry(logLevel, msg)
	entry.fields = make([]zapcore.Field, 0, len(keysAndValues)/2)
	for keyIdx := 0; keyIdx < len(keysAndValues); keyIdx += 2 {
		var keyStr string
		if stringer, ok := keysAndValues[keyIdx].(fmt.Stringer); ok {
			keyStr = stringer.String()
		} else {
			keyStr = fmt.Sprintf("%v", keysAndValues[keyIdx])
		}

		if keyIdx+1 < len(keysAndValues) {
			entry.fields = append(entry.fields, zap.Any(keyStr, keysAndValues[keyIdx+1]))
		} else {
			// API mis-use. Keep the dangling key visible rather than dropping it.
			entry.fields = append(entry.fields, zap.Any(keyStr, errors.New("unpaired log key")))
		}
	}
	imp.write(entry)
}

func (imp *impl) Debug(args ...interface{}) { imp.emit(context.Background(), DEBUG, args...) }

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.emitf(context.Background(), DEBUG, template, args...)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.emitw(context.Background(), DEBUG, msg, keysAndValues...)
}

func (imp *impl) CDebug(ctx context.Context, args ...interface{}) { imp.emit(ctx, DEBUG, args...) }

func (imp *impl) CDebugf(ctx context.Context, template string, args ...interface{}) {
	imp.emitf(ctx, DEBUG, template, args...)
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	imp.emitw(ctx, DEBUG, msg, keysAndValues...)
}

func (imp *impl) Info(args ...interface{}) { imp.emit(context.Background(), INFO, args...) }

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.emitf(context.Background(), INFO, template, args...)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.emitw(context.Background(), INFO, msg, keysAndValues...)
}

func (imp *impl) Warn(args ...interface{}) { imp.emit(context.Background(), WARN, args...) }

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.emitf(context.Background(), WARN, template, args...)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.emitw(context.Background(), WARN, msg, keysAndValues...)
}

func (imp *impl) Error(args ...interface{}) { imp.emit(context.Background(), ERROR, args...) }

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.emitf(context.Background(), ERROR, template, args...)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.emitw(context.Background(), ERROR, msg, keysAndValues...)
}

// These Fatal* methods log as errors then exit the process.
func (imp *impl) Fatal(args ...interface{}) {
	imp.emit(context.Background(), ERROR, args...)
	os.Exit(1)
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.emitf(context.Background(), ERROR, template, args...)
	os.Exit(1)
}

func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	imp.emitw(context.Background(), ERROR, msg, keysAndValues...)
	os.Exit(1)
}

// Return example: "logging/impl_test.go:36".
func getCaller() zapcore.EntryCaller {
	var ok bool
	var entryCaller zapcore.EntryCaller
	// getCaller <- newLogEntry <- emit* <- public method <- user code.
	const skipToLogCaller = 4
	entryCaller.PC, entryCaller.File, entryCaller.Line, ok = runtime.Caller(skipToLogCaller)
	if !ok {
		return entryCaller
	}
	entryCaller.Defined = true

	runtimeFunc := runtime.FuncForPC(entryCaller.PC)
	if runtimeFunc != nil {
		entryCaller.Function = runtimeFunc.Name()
	}

	return entryCaller
}
