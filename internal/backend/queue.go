package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Yudee-19/video-downloader/internal/metrics"
)

const (
	// DefaultQueueKey is the Redis list tasks are pushed to
	DefaultQueueKey = "download:queue"

	defaultBlockTimeout = 5 * time.Second
)

// RedisQueue is the durable backend: tasks are LPUSHed as JSON onto a Redis
// list and popped by worker processes with BRPOP.
type RedisQueue struct {
	client  *redis.Client
	key     string
	metrics *metrics.Metrics
}

// NewRedisQueue creates a queue on the given list key
func NewRedisQueue(client *redis.Client, key string, m *metrics.Metrics) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key, metrics: m}
}

func (q *RedisQueue) Name() string { return NameQueue }

// Ping checks that the queue's Redis server answers
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Submit pushes the task onto the queue
func (q *RedisQueue) Submit(ctx context.Context, task Task) (*Handle, error) {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.metrics.JobSubmitted(NameQueue)
	return &Handle{JobID: task.JobID, Backend: NameQueue, SubmittedAt: task.EnqueuedAt}, nil
}

// Dequeue retrieves and removes the oldest task (blocking up to timeout)
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	if timeout == 0 {
		timeout = defaultBlockTimeout
	}

	result, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQueueEmpty
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	if len(result) < 2 {
		return nil, ErrQueueEmpty
	}

	var task Task
	if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Length returns the number of tasks waiting in the queue
func (q *RedisQueue) Length(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, err
	}
	q.metrics.SetQueueLength(n)
	return n, nil
}
