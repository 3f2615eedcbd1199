package logger

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

type StructuredLogger struct {
	*logrus.Logger
}

type LogEntry struct {
	*logrus.Entry
}

func NewStructuredLogger(level string, format string) *StructuredLogger {
	logger := logrus.New()

	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	logger.SetOutput(os.Stdout)

	return &StructuredLogger{Logger: logger}
}

func (l *StructuredLogger) WithContext(ctx context.Context) *LogEntry {
	entry := l.Logger.WithContext(ctx)

	// Add tracing information if available
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		entry = entry.WithFields(logrus.Fields{
			"trace_id": spanCtx.TraceID().String(),
			"span_id":  spanCtx.SpanID().String(),
		})
	}

	return &LogEntry{Entry: entry}
}

func (l *StructuredLogger) WithFields(fields logrus.Fields) *LogEntry {
	return &LogEntry{Entry: l.Logger.WithFields(fields)}
}

func (l *StructuredLogger) WithError(err error) *LogEntry {
	return &LogEntry{Entry: l.Logger.WithError(err)}
}

func (e *LogEntry) WithField(key string, value interface{}) *LogEntry {
	return &LogEntry{Entry: e.Entry.WithField(key, value)}
}

func (e *LogEntry) WithFields(fields logrus.Fields) *LogEntry {
	return &LogEntry{Entry: e.Entry.WithFields(fields)}
}

func (e *LogEntry) WithError(err error) *LogEntry {
	return &LogEntry{Entry: e.Entry.WithError(err)}
}

// Audit records an operator action against the security API (unblocking an
// IP, reloading rules) separately from the detection audit stream.
func (l *StructuredLogger) Audit(action, user, resource string, success bool, details map[string]interface{}) {
	fields := logrus.Fields{
		"event_type": "audit",
		"action":     action,
		"user":       user,
		"resource":   resource,
		"success":    success,
		"timestamp":  time.Now().UTC(),
	}

	for k, v := range details {
		fields[k] = v
	}

	l.WithFields(fields).Info("Security audit event")
}

// Performance logs a timing measurement for a pipeline stage.
func (l *StructuredLogger) Performance(operation string, duration time.Duration, metadata map[string]interface{}) {
	fields := logrus.Fields{
		"event_type":  "performance",
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	}

	for k, v := range metadata {
		fields[k] = v
	}

	l.WithFields(fields).Info("Performance measurement")
}
