// Package notification delivers the mails sent when an event is cancelled.
// The cancelling request only enqueues a Job; Dispatcher workers pick jobs up,
// load the participants and mail each of them.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joeyave/event-registration/entity"
	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrQueueClosed = errors.New("notification queue is closed")
)

// Job is a snapshot of a cancelled event. Participants are resolved when
// the job runs.
type Job struct {
	EventID bson.ObjectID `json:"event_id"`
	Title   string        `json:"title"`
	StartAt time.Time     `json:"start_at"`
	EndAt   time.Time     `json:"end_at"`
}

func NewJob(event *entity.Event) Job {
	return Job{
		EventID: event.ID,
		Title:   event.Title,
		StartAt: event.StartAt,
		EndAt:   event.EndAt,
	}
}

type Queue interface {
	// Push must not wait for a consumer.
	Push(ctx context.Context, job Job) error
	// Pop blocks until a job is available, ctx is done or the queue is closed.
	Pop(ctx context.Context) (Job, error)
	Close() error
}

// ChanQueue is an in-process queue. Jobs pending at shutdown are lost.
type ChanQueue struct {
	jobs   chan Job
	closed chan struct{}
	once   sync.Once
}

func NewChanQueue(size int) *ChanQueue {
	if size <= 0 {
		size = 1
	}
	return &ChanQueue{
		jobs:   make(chan Job, size),
		closed: make(chan struct{}),
	}
}

func (q *ChanQueue) Push(_ context.Context, job Job) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *ChanQueue) Pop(ctx context.Context) (Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	default:
	}

	select {
	case job := <-q.jobs:
		return job, nil
	case <-q.closed:
		return Job{}, ErrQueueClosed
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (q *ChanQueue) Close() error {
	q.once.Do(func() { close(q.closed) })
	return nil
}

const DefaultRedisKey = "events:notifications:cancelled"

// RedisQueue keeps jobs in a Redis list, so they survive a restart and can
// be consumed by several processes.
type RedisQueue struct {
	client *redis.Client
	key    string
	// blockFor bounds a single BRPOP so that Pop notices ctx cancellation.
	blockFor time.Duration
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{
		client:   client,
		key:      key,
		blockFor: 5 * time.Second,
	}
}

func (q *RedisQueue) Push(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

func (q *RedisQueue) Pop(ctx context.Context) (Job, error) {
	for {
		res, err := q.client.BRPop(ctx, q.blockFor, q.key).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			continue
		}
		if errors.Is(err, redis.ErrClosed) {
			return Job{}, ErrQueueClosed
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, err
		}

		// res is [key, value].
		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return Job{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
