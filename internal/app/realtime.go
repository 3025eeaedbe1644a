package app

import (
	"context"

	"github.com/adanyl0v/go-todo-share/internal/config"
	"github.com/adanyl0v/go-todo-share/internal/realtime"
	"github.com/adanyl0v/go-todo-share/internal/services"
)

var (
	globalHub         *realtime.Hub
	globalBroadcaster *realtime.RedisBroadcaster
)

// MustStartRealtime starts the hub and, with redis enabled, the
// cross-instance relay in front of it.
func MustStartRealtime() {
	cfg := config.Global()

	globalHub = realtime.NewHub(componentLogger("hub"), realtime.HubOptions{
		QueueSize:    cfg.Realtime.QueueSize,
		WriteTimeout: cfg.Realtime.WriteTimeout,
	})
	globalLogger.Info().
		Int("queue_size", cfg.Realtime.QueueSize).
		Msg("started realtime hub")

	if globalRedisClient == nil {
		return
	}
	globalBroadcaster = realtime.NewRedisBroadcaster(
		componentLogger("redis_broadcaster"),
		globalRedisClient,
		globalHub,
		realtime.RedisOptions{Channel: cfg.Redis.Channel},
	)
	globalBroadcaster.Start(context.Background())
	globalLogger.Info().
		Str("channel", cfg.Redis.Channel).
		Msg("started redis broadcaster")
}

// changePublisher is where the task service sends committed changes.
func changePublisher() services.Publisher {
	if globalBroadcaster != nil {
		return globalBroadcaster
	}
	return globalHub
}

func StopRealtime() {
	if globalBroadcaster != nil {
		globalBroadcaster.Close()
		globalBroadcaster = nil
	}
	if globalHub != nil {
		globalHub.Close()
		globalHub = nil
	}
}
