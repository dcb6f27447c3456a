// Package audit records field-level task changes. Recording is best-effort: a failed write is logged
// and counted, and never fails the mutation that produced it.
package audit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pmt/backend/internal/audit/domain"
)

const instrumentationName = "pmt/backend/internal/audit"

// Appender is the write side of the change record repository. Callers pass the transaction-bound repository.
type Appender interface {
	Append(ctx context.Context, c *domain.ChangeRecord) error
}

// Recorder writes change records and reports write failures.
type Recorder struct {
	log      logrus.FieldLogger
	failures metric.Int64Counter
	written  metric.Int64Counter
	now      func() time.Time
}

// NewRecorder returns a Recorder. When meter is nil the global meter provider is used.
func NewRecorder(log logrus.FieldLogger, meter metric.Meter) *Recorder {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	failures, err := meter.Int64Counter("audit.write.failures",
		metric.WithDescription("Change records that could not be written"))
	if err != nil {
		log.WithError(err).Warn("audit: failure counter unavailable")
	}
	written, err := meter.Int64Counter("audit.write.records",
		metric.WithDescription("Change records written"))
	if err != nil {
		log.WithError(err).Warn("audit: record counter unavailable")
	}
	return &Recorder{
		log:      log,
		failures: failures,
		written:  written,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Record appends one change record when oldValue and newValue differ. It reports whether a record was written.
func (r *Recorder) Record(ctx context.Context, sink Appender, taskID, actorID int64, field, oldValue, newValue string) bool {
	if oldValue == newValue {
		return false
	}
	c := &domain.ChangeRecord{
		TaskID:    taskID,
		ChangedBy: actorID,
		FieldName: field,
		OldValue:  oldValue,
		NewValue:  newValue,
		ChangedAt: r.now(),
	}
	attrs := metric.WithAttributes(attribute.String("field", field))
	if err := sink.Append(ctx, c); err != nil {
		r.log.WithFields(logrus.Fields{
			"task_id": taskID,
			"user_id": actorID,
			"field":   field,
		}).WithError(err).Error("audit: failed to record task change")
		if r.failures != nil {
			r.failures.Add(ctx, 1, attrs)
		}
		return false
	}
	if r.written != nil {
		r.written.Add(ctx, 1, attrs)
	}
	return true
}

// RecordAll records each change in order and returns how many were written.
func (r *Recorder) RecordAll(ctx context.Context, sink Appender, taskID, actorID int64, changes []domain.FieldChange) int {
	n := 0
	for _, c := range changes {
		if r.Record(ctx, sink, taskID, actorID, c.Field, c.Old, c.New) {
			n++
		}
	}
	return n
}
