package ingest

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// PubSubClient opens Redis channel subscriptions.
type PubSubClient interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisSubscriber broadcasts every payload published on a Redis channel.
type RedisSubscriber struct {
	client      PubSubClient
	channel     string
	broadcaster Broadcaster
}

func NewRedisSubscriber(client PubSubClient, channel string, broadcaster Broadcaster) *RedisSubscriber {
	return &RedisSubscriber{client: client, channel: channel, broadcaster: broadcaster}
}

// Run subscribes and forwards messages until ctx is cancelled.
func (r *RedisSubscriber) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	slog.Info("Redis event subscriber started", "channel", r.channel)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Redis event subscriber stopped", "channel", r.channel)
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if _, err := r.broadcaster.Broadcast([]byte(msg.Payload)); err != nil {
				slog.Debug("Redis message dropped", "channel", msg.Channel, "error", err)
			}
		}
	}
}
