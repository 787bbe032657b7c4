package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jordanhubbard/relay/pkg/models"
)

// RedisQueue is a TaskQueue backed by a Redis sorted set. The score is the
// task priority, so BZPOPMIN always yields the most urgent task; members
// with equal scores pop in lexicographic order, and a zero-padded
// enqueue-time prefix on each member turns that into FIFO within a
// priority level.
type RedisQueue struct {
	key string

	mu     sync.Mutex
	client *redis.Client
	opts   *redis.Options
	dirty  bool
	closed bool
}

// NewRedisQueue connects to the Redis at url and uses key as the sorted set
// name.
func NewRedisQueue(url, key string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	q := &RedisQueue{
		key:    key,
		opts:   opts,
		client: redis.NewClient(opts),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.client.Ping(ctx).Err(); err != nil {
		q.client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Printf("[Queue] connected to redis, key=%s", key)
	return q, nil
}

// conn returns a healthy client, rebuilding it after a previous error. The
// go-redis pool already retries individual connections; this handles the
// client being poisoned by a full server restart.
func (q *RedisQueue) conn(ctx context.Context) (*redis.Client, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if !q.dirty {
		return q.client, nil
	}

	if err := q.client.Ping(ctx).Err(); err == nil {
		q.dirty = false
		return q.client, nil
	}

	log.Printf("[Queue] redis connection unhealthy, reconnecting")
	q.client.Close()
	q.client = redis.NewClient(q.opts)
	if err := q.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis reconnect failed: %w", err)
	}
	q.dirty = false
	return q.client, nil
}

func (q *RedisQueue) markDirty() {
	q.mu.Lock()
	q.dirty = true
	q.mu.Unlock()
}

// Enqueue serializes the task and adds it to the sorted set.
func (q *RedisQueue) Enqueue(ctx context.Context, task *models.QueuedTask) error {
	client, err := q.conn(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to serialize task %s: %w", task.TaskID, err)
	}

	member := fmt.Sprintf("%020d:%s", task.CreatedAt.UnixNano(), payload)
	if err := client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(task.Priority),
		Member: member,
	}).Err(); err != nil {
		q.markDirty()
		return fmt.Errorf("failed to enqueue task %s: %w", task.TaskID, err)
	}
	return nil
}

// Dequeue blocks on BZPOPMIN for up to timeout. Redis treats the popped
// member as consumed; delivery is at-most-once.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.QueuedTask, error) {
	client, err := q.conn(ctx)
	if err != nil {
		return nil, err
	}

	res, err := client.BZPopMin(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return nil, nil // timeout, not an error
	}
	if err != nil {
		q.markDirty()
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	member, ok := res.Member.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected member type %T in queue", res.Member)
	}

	parts := strings.SplitN(member, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed queue member %q", member)
	}

	var task models.QueuedTask
	if err := json.Unmarshal([]byte(parts[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to deserialize queued task: %w", err)
	}
	return &task, nil
}

// Size reports the sorted set cardinality.
func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	client, err := q.conn(ctx)
	if err != nil {
		return 0, err
	}

	n, err := client.ZCard(ctx, q.key).Result()
	if err != nil {
		q.markDirty()
		return 0, fmt.Errorf("failed to read queue size: %w", err)
	}
	return int(n), nil
}

// Close shuts down the client.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	return q.client.Close()
}
