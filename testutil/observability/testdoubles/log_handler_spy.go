package testdoubles

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"sync"
)

// LogHandlerSpy is a slog.Handler which captures log records.
type LogHandlerSpy struct {
	mu          sync.Mutex
	records     []slog.Record
	logToStdout bool
}

// NewLogHandlerSpy creates a LogHandlerSpy.
// With logToStdout, records are also written as JSON to stdout, which helps when debugging tests.
func NewLogHandlerSpy(logToStdout bool) *LogHandlerSpy {
	return &LogHandlerSpy{logToStdout: logToStdout}
}

// Handle implements slog.Handler.
func (s *LogHandlerSpy) Handle(ctx context.Context, record slog.Record) error {
	s.mu.Lock()
	s.records = append(s.records, record.Clone())
	s.mu.Unlock()

	if s.logToStdout {
		return slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}).Handle(ctx, record)
	}

	return nil
}

// Enabled implements slog.Handler. All levels are captured.
func (s *LogHandlerSpy) Enabled(context.Context, slog.Level) bool {
	return true
}

// WithAttrs implements slog.Handler. Handler attributes are not captured.
func (s *LogHandlerSpy) WithAttrs([]slog.Attr) slog.Handler {
	return s
}

// WithGroup implements slog.Handler. Groups are not captured.
func (s *LogHandlerSpy) WithGroup(string) slog.Handler {
	return s
}

// Records returns a copy of all captured records.
func (s *LogHandlerSpy) Records() []slog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.records)
}

// HasRecord reports whether a record with the level and message was captured.
func (s *LogHandlerSpy) HasRecord(level slog.Level, message string) bool {
	for _, record := range s.Records() {
		if record.Level == level && record.Message == message {
			return true
		}
	}

	return false
}

// AttrOf returns the value of key in the first record with message.
func (s *LogHandlerSpy) AttrOf(message, key string) (slog.Value, bool) {
	for _, record := range s.Records() {
		if record.Message != message {
			continue
		}

		var (
			value slog.Value
			found bool
		)

		record.Attrs(func(attr slog.Attr) bool {
			if attr.Key == key {
				value, found = attr.Value, true
				return false
			}

			return true
		})

		if found {
			return value, true
		}
	}

	return slog.Value{}, false
}
