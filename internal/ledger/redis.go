package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jordanhubbard/relay/pkg/models"
)

// RedisLedger stores posted-content ids as SETEX keys so Redis handles the
// expiry itself. The key shape matches the memory backend.
type RedisLedger struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisLedger connects to the Redis at url. Keys are namespaced under
// "relay:ledger:".
func NewRedisLedger(url string, ttl time.Duration) (*RedisLedger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Printf("[Ledger] connected to redis, ttl=%v", ttl)
	return &RedisLedger{client: client, ttl: ttl, prefix: "relay:ledger:"}, nil
}

func (l *RedisLedger) Record(ctx context.Context, provider models.Provider, contentID string) error {
	key := l.prefix + entryKey(provider, contentID)
	if err := l.client.SetEx(ctx, key, "1", l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to record posted content %s: %w", key, err)
	}
	return nil
}

func (l *RedisLedger) Contains(ctx context.Context, provider models.Provider, contentID string) (bool, error) {
	key := l.prefix + entryKey(provider, contentID)
	n, err := l.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check posted content %s: %w", key, err)
	}
	return n > 0, nil
}

func (l *RedisLedger) Close() error { return l.client.Close() }
