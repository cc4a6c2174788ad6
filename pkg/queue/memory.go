package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryQueue records enqueued tasks without running them. It backs tests and
// single-process tooling.
type MemoryQueue struct {
	mu    sync.Mutex
	tasks []*Task
	err   error
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// FailWith makes every following Enqueue and Ping return err.
func (q *MemoryQueue) FailWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return fmt.Errorf("failed to enqueue task: %w", q.err)
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	q.tasks = append(q.tasks, task)
	return nil
}

// Tasks returns the enqueued tasks in submission order.
func (q *MemoryQueue) Tasks() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Task, len(q.tasks))
	copy(out, q.tasks)
	return out
}

// Drain returns and forgets the enqueued tasks.
func (q *MemoryQueue) Drain() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.tasks
	q.tasks = nil
	return out
}

func (q *MemoryQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		if t.ID == taskID {
			return &TaskStatus{TaskID: t.ID, Type: t.Type, Queue: t.Queue, Status: "pending", StartedAt: t.CreatedAt}, nil
		}
	}
	return nil, fmt.Errorf("task %s not found", taskID)
}

func (q *MemoryQueue) Ping(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

func (q *MemoryQueue) Close() error { return nil }
