// Package cache owns the shared Redis client. Redis backs the cross-instance
// event mirror, presence sets, ingest liveness keys and rate limit counters;
// everything degrades to single-instance behavior when it is absent.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"limelight/internal/observability"

	"github.com/redis/go-redis/v9"
)

var client *redis.Client

// errorCountingHook feeds command failures into the redis error counter so a
// flapping broker shows up on the dashboard before viewers notice dropped
// fan-out.
type errorCountingHook struct{}

func (h errorCountingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h errorCountingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (h errorCountingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// InitRedis connects the shared client. addr may be a bare host:port or a
// redis:// URL. A failed connect leaves the client nil rather than aborting
// startup; callers treat nil as "run without Redis".
func InitRedis(addr string) {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			slog.Warn("invalid redis url, continuing without redis", "error", err)
			client = nil
			return
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client = redis.NewClient(opts)
	client.AddHook(errorCountingHook{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable, continuing without redis", "error", err)
		client = nil
		return
	}
	slog.Info("redis connected", "addr", opts.Addr)
}

// GetClient returns the shared Redis client, nil when Redis is not configured
// or was unreachable at startup.
func GetClient() *redis.Client {
	return client
}
