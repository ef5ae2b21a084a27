package topic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tombee/remediator/internal/log"
)

// subscribeTimeout bounds the wait for Redis to confirm a subscription.
const subscribeTimeout = 5 * time.Second

// RedisConfig locates the Redis server backing a RedisBus.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RedisBus implements Bus with Redis PUBLISH/SUBSCRIBE. A publish counts
// as delivered when Redis reports at least one receiving client.
type RedisBus struct {
	client *redis.Client
	owned  bool
	logger *slog.Logger

	mu   sync.Mutex
	subs map[*redis.PubSub]struct{}
}

// NewRedisBus creates a bus on an existing client. Close does not close
// the client.
func NewRedisBus(client *redis.Client, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client: client,
		logger: log.WithComponent(logger, "redis-bus"),
		subs:   make(map[*redis.PubSub]struct{}),
	}
}

// DialRedis creates a bus owning a new client for cfg.
func DialRedis(cfg RedisConfig, logger *slog.Logger) *RedisBus {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	b := NewRedisBus(client, logger)
	b.owned = true
	return b
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, topic, payload string) (bool, error) {
	receivers, err := b.client.Publish(ctx, topic, payload).Result()
	if err != nil {
		return false, fmt.Errorf("redis publish to %s: %w", topic, err)
	}
	return receivers > 0, nil
}

// Subscribe implements Bus. It returns once Redis confirmed the
// subscription, so messages published afterwards are not missed.
func (b *RedisBus) Subscribe(topic string, h Handler) (func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()

	ps := b.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe to %s: %w", topic, err)
	}

	b.mu.Lock()
	b.subs[ps] = struct{}{}
	b.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			h(msg.Payload)
		}
		b.logger.Debug("subscription closed", "topic", topic)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ps)
			b.mu.Unlock()
			if err := ps.Close(); err != nil {
				b.logger.Warn("closing subscription", "topic", topic, log.Error(err))
			}
		})
	}, nil
}

// Close implements Bus.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*redis.PubSub]struct{})
	b.mu.Unlock()

	for ps := range subs {
		_ = ps.Close()
	}
	if b.owned {
		return b.client.Close()
	}
	return nil
}
