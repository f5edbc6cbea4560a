package payout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"creatorpay/pkg/config"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/featureflags"
	"creatorpay/pkg/rediskey"
	"creatorpay/pkg/task"
	"creatorpay/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ProcessPayload struct {
	PayoutID string `json:"payout_id"`
}

type BatchPayload struct {
	BatchID string `json:"batch_id"`
}

func NewProcessTask(payoutID string) *asynq.Task {
	payload, _ := json.Marshal(ProcessPayload{PayoutID: payoutID})
	return asynq.NewTask(taskname.PayoutProcess, payload)
}

func NewBatchTask(batchID string) *asynq.Task {
	payload, _ := json.Marshal(BatchPayload{BatchID: batchID})
	return asynq.NewTask(taskname.PayoutBatchRun, payload)
}

// processTaskID is unique per payout attempt, so a redelivered enqueue of the
// same attempt is dropped by the queue.
func processTaskID(payoutID string, retryCount int) string {
	return fmt.Sprintf("%s:%s:%d", taskname.PayoutProcess, payoutID, retryCount)
}

func forceTaskID(payoutID string, now time.Time) string {
	return fmt.Sprintf("%s:%s:force:%d", taskname.PayoutProcess, payoutID, now.UnixNano())
}

func (s *Service) enqueueProcess(ctx context.Context, p *Payout, delay time.Duration, taskID string) error {
	opts := []asynq.Option{
		asynq.Queue(task.QueueCritical),
		asynq.MaxRetry(s.settings.QueueMaxRetry),
		asynq.TaskID(taskID),
	}
	if s.settings.TaskTimeout > 0 {
		opts = append(opts, asynq.Timeout(s.settings.TaskTimeout))
	}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}

	if _, err := s.enqueuer.Enqueue(ctx, NewProcessTask(p.ID), opts...); err != nil {
		return err
	}

	logger(ctx).Debug("payout task enqueued",
		zap.String("payout_id", p.ID),
		zap.String("task_id", taskID),
		zap.Duration("delay", delay),
	)
	return nil
}

// NewRetryPolicy gives payout:process tasks exponential backoff from the
// configured base.
func NewRetryPolicy(cfg *config.Config) task.RetryPolicy {
	return task.RetryPolicy{
		taskname.PayoutProcess: NewSettings(cfg).QueueBackoffBase,
	}
}

// TaskHandler runs payout tasks on the worker.
type TaskHandler struct {
	svc     *Service
	rdb     *redis.Client
	flags   featureflags.FeatureFlag
	lockTTL time.Duration
}

type TaskHandlerParams struct {
	fx.In
	Service *Service
	Redis   *redis.Client            `optional:"true"`
	Flags   featureflags.FeatureFlag `optional:"true"`
}

func NewTaskHandler(p TaskHandlerParams) *TaskHandler {
	return &TaskHandler{
		svc:     p.Service,
		rdb:     p.Redis,
		flags:   p.Flags,
		lockTTL: 24 * time.Hour,
	}
}

func RegisterTaskHandlers(mux *asynq.ServeMux, h *TaskHandler) {
	mux.HandleFunc(taskname.PayoutProcess, h.HandleProcessPayoutTask)
	mux.HandleFunc(taskname.PayoutBatchRun, h.HandleRunBatchTask)
}

func (h *TaskHandler) HandleProcessPayoutTask(ctx context.Context, t *asynq.Task) error {
	var payload ProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.PayoutID == "" {
		return fmt.Errorf("missing payout_id: %w", asynq.SkipRetry)
	}

	log := logger(ctx).With(zap.String("task_type", t.Type()), zap.String("payout_id", payload.PayoutID))

	res, err := h.svc.ProcessPayout(ctx, payload.PayoutID)
	if err != nil {
		if errutil.Is(err, errutil.StatusNotFound) {
			log.Warn("payout not found, dropping task")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		log.Error("payout processing hit an infrastructure error", zap.Error(err))
		return err
	}

	log.Info("payout task finished",
		zap.Bool("success", res.Success),
		zap.Bool("retry_scheduled", res.RetryScheduled),
		zap.String("message", res.Message),
	)
	if res.Terminal && !res.Success {
		return fmt.Errorf("%s: %w", res.Message, asynq.SkipRetry)
	}
	return nil
}

// batchLockKey collapses weekly batch ids (weekly_<date>_<uuid>) to their date,
// so a week is paid out once however often the trigger fires that day.
func batchLockKey(batchID string) string {
	if parts := strings.SplitN(batchID, "_", 3); len(parts) == 3 && parts[0] == "weekly" {
		return rediskey.BuildPayoutBatchLockKey("weekly:" + parts[1])
	}
	return rediskey.BuildPayoutBatchLockKey(batchID)
}

func (h *TaskHandler) HandleRunBatchTask(ctx context.Context, t *asynq.Task) error {
	var payload BatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.BatchID == "" {
		return fmt.Errorf("missing batch_id: %w", asynq.SkipRetry)
	}

	log := logger(ctx).With(zap.String("task_type", t.Type()), zap.String("batch_id", payload.BatchID))

	if h.flags != nil && !h.flags.Enabled(ctx, "", featureflags.PayoutBatch, true) {
		log.Warn("payout batch disabled by feature flag")
		return nil
	}

	if h.rdb != nil {
		lockKey := batchLockKey(payload.BatchID)
		ok, err := h.rdb.SetNX(ctx, lockKey, time.Now().Unix(), h.lockTTL).Result()
		if err != nil {
			return fmt.Errorf("acquire batch lock: %w", err)
		}
		if !ok {
			log.Info("batch already ran, skipping")
			return nil
		}

		running := rediskey.BuildPayoutBatchRunningKey()
		ok, err = h.rdb.SetNX(ctx, running, payload.BatchID, h.svc.settings.TaskTimeout+time.Minute).Result()
		if err != nil {
			return fmt.Errorf("acquire running lock: %w", err)
		}
		if !ok {
			// Release the batch key so the redelivered task can run later.
			h.rdb.Del(ctx, lockKey)
			return errors.New("another payout batch is running")
		}
		defer h.rdb.Del(context.Background(), running)
	}

	stats, err := h.svc.InitiateScheduledPayouts(ctx, payload.BatchID)
	if err != nil {
		if h.rdb != nil {
			h.rdb.Del(context.Background(), batchLockKey(payload.BatchID))
		}
		return err
	}

	log.Info("payout batch task finished",
		zap.Int64("total_payouts", stats.TotalPayouts),
		zap.Int64("skipped", stats.SkippedCount),
		zap.Int64("failed", stats.FailedCount),
	)
	return nil
}
