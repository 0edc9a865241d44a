package broadcast

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// RedisRegistry shares groups across instances through Redis pub/sub.
// Membership stays local; Publish goes through Redis and every instance,
// this one included, delivers to its own members when the message returns.
type RedisRegistry struct {
	*Hub
	client *redis.Client
	prefix string
	pubsub *redis.PubSub
	wg     sync.WaitGroup
	logger types.Logger
}

var _ Registry = (*RedisRegistry)(nil)

// RedisOptions configures a RedisRegistry.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisRegistry creates a registry backed by a new Redis client.
func NewRedisRegistry(opts RedisOptions, logger types.Logger) *RedisRegistry {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     20,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return NewRedisRegistryWithClient(client, opts.Prefix, logger)
}

// NewRedisRegistryWithClient creates a registry on an existing client.
func NewRedisRegistryWithClient(client *redis.Client, prefix string, logger types.Logger) *RedisRegistry {
	return &RedisRegistry{
		Hub:    NewHub(logger),
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Connect pings Redis and starts forwarding group messages to local members.
func (r *RedisRegistry) Connect(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	r.pubsub = r.client.PSubscribe(ctx, r.prefix+":*")
	// Wait for the subscription so that no publish races ahead of it.
	if _, err := r.pubsub.Receive(ctx); err != nil {
		_ = r.pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s:*: %w", r.prefix, err)
	}

	r.wg.Add(1)
	go r.forward(r.pubsub.Channel())
	r.logger.Info("Redis registry connected", "pattern", r.prefix+":*")
	return nil
}

func (r *RedisRegistry) forward(ch <-chan *redis.Message) {
	defer r.wg.Done()
	for msg := range ch {
		groupID := strings.TrimPrefix(msg.Channel, r.prefix+":")
		r.deliver(groupID, []byte(msg.Payload))
	}
}

// Publish sends payload to every instance subscribed to groupID.
func (r *RedisRegistry) Publish(ctx context.Context, groupID string, payload any) error {
	data, err := encode(payload)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel(groupID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", r.channel(groupID), err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close stops forwarding and closes the Redis client.
func (r *RedisRegistry) Close() error {
	if r.pubsub != nil {
		if err := r.pubsub.Close(); err != nil {
			r.logger.Warn("Failed to close Redis subscription", "error", err)
		}
		r.wg.Wait()
	}
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	return nil
}

func (r *RedisRegistry) channel(groupID string) string {
	return r.prefix + ":" + groupID
}
