package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

// DefaultStream is the Redis stream events are appended to.
const DefaultStream = "rawaudit:activity"

// StreamSink appends events to a Redis stream with XADD. A nil *StreamSink
// is a valid no-op sink.
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
	log    logger.Logger
}

// NewStreamSink returns nil if client is nil.
func NewStreamSink(client *redis.Client, stream string, maxLen int64, log logger.Logger) *StreamSink {
	if client == nil {
		return nil
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamSink{
		client: client,
		stream: stream,
		maxLen: maxLen,
		log:    log.With(logger.Component("activity_stream")),
	}
}

func (s *StreamSink) Emit(ctx context.Context, e *domain.ActivityEvent) error {
	if s == nil || s.client == nil {
		return nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"audit_id": e.AuditID,
			"agent":    e.Agent,
			"event":    string(payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("publish to stream: %w", err)
	}
	s.log.Debug("Published activity",
		logger.AuditID(e.AuditID),
		logger.String("stream_id", id),
	)
	return nil
}
