package otel

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const loggerName = "pmt/backend"

// Emitter is the subset of otellog.Logger used by LogHook.
type Emitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// LogHook forwards logrus entries to an OpenTelemetry logger so they leave with the traces.
type LogHook struct {
	logger Emitter
	levels []logrus.Level
}

// NewLogHook returns a hook over provider's logger for entries at minLevel or more severe.
// A nil provider yields nil; logrus.Logger.AddHook must then be skipped.
func NewLogHook(provider *sdklog.LoggerProvider, minLevel logrus.Level) *LogHook {
	if provider == nil {
		return nil
	}
	return NewLogHookWithEmitter(provider.Logger(loggerName), minLevel)
}

// NewLogHookWithEmitter returns a hook writing to e.
func NewLogHookWithEmitter(e Emitter, minLevel logrus.Level) *LogHook {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= minLevel {
			levels = append(levels, l)
		}
	}
	return &LogHook{logger: e, levels: levels}
}

// Levels implements logrus.Hook.
func (h *LogHook) Levels() []logrus.Level { return h.levels }

// Fire implements logrus.Hook. It never fails.
func (h *LogHook) Fire(entry *logrus.Entry) error {
	rec := otellog.Record{}
	rec.SetTimestamp(entry.Time)
	rec.SetObservedTimestamp(entry.Time)
	rec.SetBody(otellog.StringValue(entry.Message))
	rec.SetSeverity(severity(entry.Level))
	rec.SetSeverityText(entry.Level.String())
	for k, v := range entry.Data {
		rec.AddAttributes(attribute(k, v))
	}
	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}
	h.logger.Emit(ctx, rec)
	return nil
}

func attribute(k string, v interface{}) otellog.KeyValue {
	switch val := v.(type) {
	case string:
		return otellog.String(k, val)
	case int:
		return otellog.Int(k, val)
	case int64:
		return otellog.Int64(k, val)
	case bool:
		return otellog.Bool(k, val)
	case float64:
		return otellog.Float64(k, val)
	case error:
		return otellog.String(k, val.Error())
	default:
		return otellog.String(k, fmt.Sprint(val))
	}
}

func severity(l logrus.Level) otellog.Severity {
	switch l {
	case logrus.TraceLevel:
		return otellog.SeverityTrace
	case logrus.DebugLevel:
		return otellog.SeverityDebug
	case logrus.InfoLevel:
		return otellog.SeverityInfo
	case logrus.WarnLevel:
		return otellog.SeverityWarn
	case logrus.ErrorLevel:
		return otellog.SeverityError
	case logrus.FatalLevel:
		return otellog.SeverityFatal
	default:
		return otellog.SeverityFatal4
	}
}
