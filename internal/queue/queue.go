package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobRefreshInsight asks a worker to regenerate the AI insight of a class.
const JobRefreshInsight = "insight.refresh"

// Job is a unit of background work.
type Job struct {
	Kind      string    `json:"kind"`
	ClassID   string    `json:"class_id"`
	SessionID string    `json:"session_id,omitempty"`
	Enqueued  time.Time `json:"enqueued_at"`
}

// ErrFull is returned by TryPublish and Offer when the buffer is full.
var ErrFull = errors.New("queue full")

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, job Job) error
	Consume(ctx context.Context) (<-chan Job, error)
}

// InMemory is a channel-backed queue for dev and tests.
type InMemory struct {
	ch chan Job
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Job, size)}
}

// Publish enqueues a job, blocking while the buffer is full.
func (q *InMemory) Publish(ctx context.Context, job Job) error {
	select {
	case q.ch <- stamp(job):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish enqueues a job without blocking.
func (q *InMemory) TryPublish(job Job) error {
	select {
	case q.ch <- stamp(job):
		return nil
	default:
		return ErrFull
	}
}

// Len reports buffered jobs.
func (q *InMemory) Len() int { return len(q.ch) }

// Offer publishes job without waiting on a full in-memory buffer. Other
// backends fall back to Publish.
func Offer(ctx context.Context, q Queue, job Job) error {
	if mem, ok := q.(*InMemory); ok {
		return mem.TryPublish(job)
	}
	return q.Publish(ctx, job)
}

// Consume returns a channel for workers. It closes when ctx is done.
func (q *InMemory) Consume(ctx context.Context) (<-chan Job, error) {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			select {
			case job := <-q.ch:
				select {
				case out <- job:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue is a Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "smartpresent:jobs"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a job as JSON.
func (q *RedisQueue) Publish(ctx context.Context, job Job) error {
	raw, err := json.Marshal(stamp(job))
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, raw).Err()
}

// Consume streams jobs using BRPOP. Undecodable entries are logged and dropped.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Job, error) {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					log.Printf("queue %s: brpop: %v", q.key, err)
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var job Job
			if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
				log.Printf("queue %s: drop malformed job: %v", q.key, err)
				continue
			}
			select {
			case out <- job:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func stamp(job Job) Job {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	return job
}
