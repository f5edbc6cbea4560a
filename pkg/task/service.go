package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Enqueuer is the producer side of the queue. Services depend on it instead of
// *asynq.Client so tests can capture tasks.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type enqueuerImpl struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) Enqueuer {
	return &enqueuerImpl{client: client}
}

// Enqueue treats a task id conflict as success: the same logical task is
// already waiting in the queue.
func (e *enqueuerImpl) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return info, nil
}

// RetryPolicy maps a task type to the base delay of its exponential backoff.
type RetryPolicy map[string]time.Duration

// RetryDelayFunc returns base * 2^n for task types in the policy, where n is
// the number of retries already made, and asynq's default otherwise.
func RetryDelayFunc(policy RetryPolicy) asynq.RetryDelayFunc {
	return func(n int, err error, t *asynq.Task) time.Duration {
		if base, ok := policy[t.Type()]; ok && base > 0 {
			if n > 16 {
				n = 16
			}
			return base * time.Duration(1<<uint(n))
		}
		return asynq.DefaultRetryDelayFunc(n, err, t)
	}
}
