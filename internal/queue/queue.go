package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueueRunJob    = "memesync:queue:run"
	QueueResumeJob = "memesync:queue:resume"
)

type Queue struct {
	client *redis.Client
}

// Message is one unit of dispatched work. Job state itself lives in the job
// store; the queue carries only the id and what to do with it.
type Message struct {
	JobID      uuid.UUID `json:"job_id"`
	Kind       string    `json:"kind"` // "run" or "resume"
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, msg *Message) error {
	msg.EnqueuedAt = time.Now()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Message, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil // No message available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueueRun dispatches a freshly created job to the worker.
func (q *Queue) EnqueueRun(ctx context.Context, jobID uuid.UUID) error {
	return q.Enqueue(ctx, QueueRunJob, &Message{JobID: jobID, Kind: "run"})
}

// EnqueueResume dispatches a reviewed job back to the worker to re-enter the
// pipeline at asset matching.
func (q *Queue) EnqueueResume(ctx context.Context, jobID uuid.UUID) error {
	return q.Enqueue(ctx, QueueResumeJob, &Message{JobID: jobID, Kind: "resume"})
}
