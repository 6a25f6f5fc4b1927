package mockhorde

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/VilotStar/StableHorder/internal/model"
	"github.com/redis/go-redis/v9"
)

// PendingQueueKey is the Redis list holding pending jobs.
const PendingQueueKey = "mockhorde:queue:pending"

// JobQueue holds jobs waiting to be popped by workers.
type JobQueue interface {
	Push(ctx context.Context, job *model.Job) error
	// Pop returns nil, nil when the queue is empty.
	Pop(ctx context.Context) (*model.Job, error)
	Len(ctx context.Context) (int64, error)
}

// MemoryQueue is a FIFO job queue kept in process memory.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs []*model.Job
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(_ context.Context, job *model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *MemoryQueue) Pop(_ context.Context) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.jobs)), nil
}

// RedisQueue is a FIFO job queue in a Redis list, shared by every mock
// horde process pointed at the same Redis.
type RedisQueue struct {
	rdb *redis.Client
}

func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

func (q *RedisQueue) Push(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.rdb.LPush(ctx, PendingQueueKey, data).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (*model.Job, error) {
	data, err := q.rdb.RPop(ctx, PendingQueueKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, PendingQueueKey).Result()
}
