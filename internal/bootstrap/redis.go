package bootstrap

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rawinstinctart/rawauditpro/internal/activity"
	"github.com/rawinstinctart/rawauditpro/internal/config"
	"github.com/rawinstinctart/rawauditpro/internal/logger"
)

const redisPingTimeout = 2 * time.Second

// EventComponents holds the optional Redis activity stream. Client and
// Stream are nil when Redis is disabled or unreachable.
type EventComponents struct {
	Client *redis.Client
	Stream *activity.StreamSink
}

// SetupActivityStream connects to Redis when enabled. An unreachable Redis
// disables the stream instead of failing startup.
func SetupActivityStream(ctx context.Context, cfg *config.Config, log logger.Logger) *EventComponents {
	if !cfg.Redis.Enabled {
		return &EventComponents{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis not available, activity stream disabled",
			logger.String("redis_address", cfg.Redis.Address),
			logger.Error(err),
		)
		_ = client.Close()
		return &EventComponents{}
	}

	log.Info("Activity stream initialized",
		logger.String("redis_address", cfg.Redis.Address),
		logger.String("stream", cfg.Redis.Stream),
	)
	return &EventComponents{
		Client: client,
		Stream: activity.NewStreamSink(client, cfg.Redis.Stream, cfg.Redis.MaxLen, log),
	}
}

// Ping checks the Redis connection.
func (e *EventComponents) Ping() error {
	if e.Client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	return e.Client.Ping(ctx).Err()
}

func (e *EventComponents) Close() {
	if e.Client != nil {
		_ = e.Client.Close()
	}
}
