// Package activity delivers audit activity events to observers. Events are
// append-only and nothing reads them for control flow, so delivery errors
// are reported to the caller for logging only.
package activity

import (
	"context"
	"errors"
	"time"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

// Agents label the pipeline phase that produced an event.
const (
	AgentOrchestrator = "orchestrator"
	AgentCrawler      = "crawler"
	AgentImages       = "image_inspector"
	AgentAnalyzer     = "analyzer"
	AgentSuggest      = "suggestion"
	AgentScorer       = "scorer"
	AgentDrafts       = "drafts"
)

// Sink receives activity events.
type Sink interface {
	Emit(ctx context.Context, e *domain.ActivityEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e *domain.ActivityEvent) error

func (f SinkFunc) Emit(ctx context.Context, e *domain.ActivityEvent) error { return f(ctx, e) }

// Nop discards events.
var Nop Sink = SinkFunc(func(context.Context, *domain.ActivityEvent) error { return nil })

// Multi fans an event out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e *domain.ActivityEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the structured log.
type LogSink struct {
	log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log.With(logger.Component("activity"))}
}

func (s *LogSink) Emit(_ context.Context, e *domain.ActivityEvent) error {
	fields := []logger.Field{
		logger.AuditID(e.AuditID),
		logger.String("agent", e.Agent),
	}
	if e.Action != "" {
		fields = append(fields, logger.String("action", e.Action))
	}
	if len(e.Metadata) > 0 {
		fields = append(fields, logger.Any("metadata", map[string]any(e.Metadata)))
	}
	s.log.Info(e.Message, fields...)
	return nil
}

// Appender persists events.
type Appender interface {
	AppendActivity(ctx context.Context, e *domain.ActivityEvent) error
}

// RepositorySink stores events through an Appender (the activity_logs table
// or the in-memory store).
type RepositorySink struct {
	repo Appender
}

func NewRepositorySink(repo Appender) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Emit(ctx context.Context, e *domain.ActivityEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return s.repo.AppendActivity(ctx, e)
}
