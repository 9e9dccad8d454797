package oteladapters_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
	"go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore/oteladapters"
)

type recordingLogger struct {
	embedded.Logger

	mu       sync.Mutex
	minLevel log.Severity
	records  []log.Record
	traceIDs []trace.TraceID
}

func (l *recordingLogger) Emit(ctx context.Context, record log.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, record)
	l.traceIDs = append(l.traceIDs, trace.SpanContextFromContext(ctx).TraceID())
}

func (l *recordingLogger) Enabled(_ context.Context, param log.EnabledParameters) bool {
	return param.Severity >= l.minLevel
}

func (l *recordingLogger) attributes(record log.Record) map[string]log.Value {
	attrs := make(map[string]log.Value)
	record.WalkAttributes(func(kv log.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})

	return attrs
}

func Test_SlogBridgeLoggerWithHandler_WritesAllLevels(t *testing.T) {
	// setup
	var buf bytes.Buffer
	logger := oteladapters.NewSlogBridgeLoggerWithHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "executed sql for: read_events", "duration_ms", 1.5)
	logger.InfoContext(ctx, "business event tracked", "entity_type", "Customer")
	logger.Warn("metadata keys skipped", "skipped_keys", []string{"Missing"})
	logger.ErrorContext(ctx, "tracking event failed", "error", "boom")

	// assert
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[1], &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "business event tracked", entry["msg"])
	assert.Equal(t, "Customer", entry["entity_type"])

	require.NoError(t, json.Unmarshal(lines[2], &entry))
	assert.Equal(t, "WARN", entry["level"])
}

func Test_NewSlogBridgeLogger_When_ProviderIsNoop(t *testing.T) {
	// setup
	logger := oteladapters.NewSlogBridgeLogger(
		oteladapters.InstrumentationName,
		otelslog.WithLoggerProvider(noop.NewLoggerProvider()),
	)

	// act + assert
	assert.NotPanics(t, func() {
		logger.Info("schema inserted", "entity_type", "Customer")
		logger.ErrorContext(context.Background(), "database execution failed", "error", "boom")
	})
}

func Test_OTelLogger_EmitsTypedAttributes(t *testing.T) {
	// setup
	recorder := &recordingLogger{minLevel: log.SeverityDebug}
	logger := oteladapters.NewOTelLogger(recorder)

	// act
	logger.InfoContext(
		context.Background(),
		"business event tracked",
		"entity_type", "Customer",
		"schema_version", 2,
		"metadata_rows", int64(3),
		"duration_ms", 1.25,
		"cached", true,
		"error", errors.New("boom"),
		"skipped_keys", []string{"A", "B"},
		"dangling",
	)

	// assert
	require.Len(t, recorder.records, 1)
	record := recorder.records[0]
	assert.Equal(t, log.SeverityInfo, record.Severity())
	assert.Equal(t, "business event tracked", record.Body().AsString())
	assert.False(t, record.Timestamp().IsZero())

	attrs := recorder.attributes(record)
	assert.Len(t, attrs, 7)
	assert.Equal(t, "Customer", attrs["entity_type"].AsString())
	assert.Equal(t, int64(2), attrs["schema_version"].AsInt64())
	assert.Equal(t, int64(3), attrs["metadata_rows"].AsInt64())
	assert.InDelta(t, 1.25, attrs["duration_ms"].AsFloat64(), 0.0001)
	assert.True(t, attrs["cached"].AsBool())
	assert.Equal(t, "boom", attrs["error"].AsString())
	assert.Len(t, attrs["skipped_keys"].AsSlice(), 2)
}

func Test_OTelLogger_When_SeverityIsDisabled(t *testing.T) {
	// setup
	recorder := &recordingLogger{minLevel: log.SeverityWarn}
	logger := oteladapters.NewOTelLogger(recorder)
	ctx := context.Background()

	// act
	logger.DebugContext(ctx, "executed sql for: append_event")
	logger.InfoContext(ctx, "business event appended")
	logger.WarnContext(ctx, "metadata keys skipped")
	logger.ErrorContext(ctx, "database execution failed")

	// assert
	require.Len(t, recorder.records, 2)
	assert.Equal(t, log.SeverityWarn, recorder.records[0].Severity())
	assert.Equal(t, log.SeverityError, recorder.records[1].Severity())
}
