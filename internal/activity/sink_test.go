package activity_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawinstinctart/rawauditpro/internal/activity"
	"github.com/rawinstinctart/rawauditpro/internal/domain"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
	"github.com/rawinstinctart/rawauditpro/internal/memstore"
)

func event() *domain.ActivityEvent {
	return &domain.ActivityEvent{
		AuditID:   "audit-1",
		WebsiteID: "site-1",
		Agent:     activity.AgentCrawler,
		Message:   "Crawl started",
		Metadata:  domain.JSONBMap{"max_pages": 10},
	}
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	var calls int
	ok := activity.SinkFunc(func(context.Context, *domain.ActivityEvent) error {
		calls++
		return nil
	})
	failing := activity.SinkFunc(func(context.Context, *domain.ActivityEvent) error {
		calls++
		return errors.New("sink down")
	})

	err := activity.Multi{ok, nil, failing, ok}.Emit(context.Background(), event())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink down")
	assert.Equal(t, 3, calls)
}

func TestLogSink(t *testing.T) {
	sink := activity.NewLogSink(logger.NewNop())
	assert.NoError(t, sink.Emit(context.Background(), event()))
}

func TestRepositorySink_Persists(t *testing.T) {
	store := memstore.New()
	sink := activity.NewRepositorySink(store)

	require.NoError(t, sink.Emit(context.Background(), event()))

	events, err := store.ListActivity(context.Background(), "audit-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Crawl started", events[0].Message)
	assert.False(t, events[0].CreatedAt.IsZero())
}

func TestStreamSink_NilIsNoop(t *testing.T) {
	var sink *activity.StreamSink
	assert.NoError(t, sink.Emit(context.Background(), event()))
	assert.Nil(t, activity.NewStreamSink(nil, "", 0, logger.NewNop()))
}

func TestStreamSink_XAdd(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sink := activity.NewStreamSink(client, "test:activity", 100, logger.NewNop())
	require.NoError(t, sink.Emit(context.Background(), event()))

	msgs, err := client.XRange(context.Background(), "test:activity", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "audit-1", msgs[0].Values["audit_id"])
	assert.Equal(t, activity.AgentCrawler, msgs[0].Values["agent"])

	var decoded domain.ActivityEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["event"].(string)), &decoded))
	assert.Equal(t, "Crawl started", decoded.Message)
}
