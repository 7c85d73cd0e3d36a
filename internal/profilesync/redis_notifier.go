package profilesync

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultChannel is the pub/sub channel carrying parent IDs
const DefaultChannel = "teachme:children-changed"

// RedisNotifier publishes child changes over Redis pub/sub so that every
// instance, this one included, wakes its local subscribers
type RedisNotifier struct {
	client  *redis.Client
	channel string
	local   *Broker
}

// NewRedisNotifier creates a notifier that relays channel messages to local
func NewRedisNotifier(client *redis.Client, channel string, local *Broker) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel, local: local}
}

// NewRedisClient parses a redis:// URL and checks the connection
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Publish sends parentID to every instance
func (n *RedisNotifier) Publish(ctx context.Context, parentID string) error {
	if err := n.client.Publish(ctx, n.channel, parentID).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", n.channel, err)
	}
	return nil
}

// Run relays channel messages to the local broker until ctx is cancelled
func (n *RedisNotifier) Run(ctx context.Context) error {
	pubsub := n.client.Subscribe(ctx, n.channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed before relaying
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", n.channel, err)
	}
	log.Info().Str("channel", n.channel).Msg("Relaying children changes from redis")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n.local.Notify(msg.Payload)
		}
	}
}
