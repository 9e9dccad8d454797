package testdoubles

import (
	"context"
	"slices"
	"sync"

	"github.com/AntonStoeckl/business-eventstore-go/eventstore"
)

// SpyLogRecord is one captured log call.
type SpyLogRecord struct {
	Level   string
	Message string
	Args    []any
	Context context.Context
}

// Attr returns the value following key in Args.
func (r SpyLogRecord) Attr(key string) (any, bool) {
	for i := 0; i+1 < len(r.Args); i += 2 {
		if r.Args[i] == key {
			return r.Args[i+1], true
		}
	}

	return nil, false
}

// ContextualLoggerSpy captures calls to both logger ports, eventstore.Logger and eventstore.ContextualLogger.
type ContextualLoggerSpy struct {
	mu      sync.Mutex
	records []SpyLogRecord
}

// NewContextualLoggerSpy creates an empty ContextualLoggerSpy.
func NewContextualLoggerSpy() *ContextualLoggerSpy {
	return &ContextualLoggerSpy{}
}

func (s *ContextualLoggerSpy) record(ctx context.Context, level, msg string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, SpyLogRecord{Level: level, Message: msg, Args: slices.Clone(args), Context: ctx})
}

func (s *ContextualLoggerSpy) DebugContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "debug", msg, args)
}

func (s *ContextualLoggerSpy) InfoContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "info", msg, args)
}

func (s *ContextualLoggerSpy) WarnContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "warn", msg, args)
}

func (s *ContextualLoggerSpy) ErrorContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "error", msg, args)
}

func (s *ContextualLoggerSpy) Debug(msg string, args ...any) {
	s.record(context.Background(), "debug", msg, args)
}

func (s *ContextualLoggerSpy) Info(msg string, args ...any) {
	s.record(context.Background(), "info", msg, args)
}

func (s *ContextualLoggerSpy) Warn(msg string, args ...any) {
	s.record(context.Background(), "warn", msg, args)
}

func (s *ContextualLoggerSpy) Error(msg string, args ...any) {
	s.record(context.Background(), "error", msg, args)
}

// Records returns a copy of all captured records.
func (s *ContextualLoggerSpy) Records() []SpyLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.records)
}

// RecordsAt returns the captured records of one level ("debug", "info", "warn", "error").
func (s *ContextualLoggerSpy) RecordsAt(level string) []SpyLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SpyLogRecord, 0)
	for _, record := range s.records {
		if record.Level == level {
			records = append(records, record)
		}
	}

	return records
}

// HasLog reports whether a record with level and message was captured.
func (s *ContextualLoggerSpy) HasLog(level, message string) bool {
	for _, record := range s.RecordsAt(level) {
		if record.Message == message {
			return true
		}
	}

	return false
}

// Reset clears all captured records.
func (s *ContextualLoggerSpy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
}

// Ensure ContextualLoggerSpy implements both logger ports.
var (
	_ eventstore.Logger           = (*ContextualLoggerSpy)(nil)
	_ eventstore.ContextualLogger = (*ContextualLoggerSpy)(nil)
)
