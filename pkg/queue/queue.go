package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	TaskTypeDocumentIngest = "document:ingest"
	TaskTypeDocumentDelete = "document:delete"
	TaskTypeQuestionAnswer = "question:answer"
	TaskTypeQuestionDelete = "question:delete"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

var queues = []string{QueueCritical, QueueDefault, QueueLow}

// Queue dispatches background tasks.
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	Ping(ctx context.Context) error
	Close() error
}

// Task is one unit of background work. ID is unique per submission.
type Task struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	Type       string    `json:"type"`
	Queue      string    `json:"queue"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Result     string    `json:"result,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ProcessTimeout time.Duration
	Retention      time.Duration
}

type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	timeout   time.Duration
	retention time.Duration
}

func NewAsynqQueue(cfg *QueueConfig) *AsynqQueue {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		redis: redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		timeout:   cfg.ProcessTimeout,
		retention: cfg.Retention,
	}
}

// Enqueue submits the task once. Failed tasks are never retried; the handlers record
// failures on the owning record instead.
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}

	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.TaskID(task.ID),
		asynq.Queue(task.Queue),
	}
	if q.timeout > 0 {
		opts = append(opts, asynq.Timeout(q.timeout))
	}
	if q.retention > 0 {
		opts = append(opts, asynq.Retention(q.retention))
	}

	t := asynq.NewTask(task.Type, task.Payload, opts...)
	info, err := q.client.EnqueueContext(ctx, t)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	task.ID = info.ID
	return nil
}

// GetTaskStatus looks the task up in every queue.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var lastErr error
	for _, queueName := range queues {
		info, err := q.inspector.GetTaskInfo(queueName, taskID)
		if err == nil {
			return convertAsynqStatus(info), nil
		}
		lastErr = err
		if !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			break
		}
	}
	return nil, fmt.Errorf("task not found in any queue: %w", lastErr)
}

func (q *AsynqQueue) Ping(ctx context.Context) error {
	return q.redis.Ping(ctx).Err()
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		Type:      info.Type,
		Queue:     info.Queue,
		StartedAt: info.NextProcessAt,
		Result:    string(info.Result),
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled:
		status.Status = "pending"
	case asynq.TaskStateActive:
		status.Status = "running"
	case asynq.TaskStateCompleted:
		status.Status = "completed"
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateRetry, asynq.TaskStateArchived:
		status.Status = "failed"
		status.Error = info.LastErr
		status.FinishedAt = info.LastFailedAt
	default:
		status.Status = info.State.String()
	}

	return status
}
