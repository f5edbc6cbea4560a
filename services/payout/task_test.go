package payout

import (
	"context"
	"errors"
	"testing"
	"time"

	"creatorpay/pkg/config"
	"creatorpay/pkg/featureflags"
	"creatorpay/pkg/gen"
	"creatorpay/pkg/money"
	"creatorpay/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestHandleProcessPayoutTaskSkipsRetry(t *testing.T) {
	f := newFixture(t)
	h := NewTaskHandler(TaskHandlerParams{Service: f.svc})

	err := h.HandleProcessPayoutTask(context.Background(), asynq.NewTask(taskname.PayoutProcess, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = h.HandleProcessPayoutTask(context.Background(), asynq.NewTask(taskname.PayoutProcess, []byte(`{}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = h.HandleProcessPayoutTask(context.Background(), NewProcessTask("missing"))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleProcessPayoutTaskCancelled(t *testing.T) {
	f := newFixture(t)
	f.creator(t, "u1", "acct_u1", money.Units(25))
	p := f.create(t, "u1", money.Units(25))
	_, err := f.svc.CancelPayout(context.Background(), p.ID, "admin")
	require.NoError(t, err)

	h := NewTaskHandler(TaskHandlerParams{Service: f.svc})
	err = h.HandleProcessPayoutTask(context.Background(), NewProcessTask(p.ID))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleRunBatchTask(t *testing.T) {
	f := newFixture(t)
	f.creator(t, "u1", "acct_u1", money.Units(30))

	off := NewTaskHandler(TaskHandlerParams{Service: f.svc, Flags: featureflags.Static{featureflags.PayoutBatch: false}})
	require.NoError(t, off.HandleRunBatchTask(context.Background(), NewBatchTask("weekly_x")))

	var n int64
	require.NoError(t, f.db.Model(&Payout{}).Count(&n).Error)
	require.Zero(t, n)

	on := NewTaskHandler(TaskHandlerParams{Service: f.svc, Flags: featureflags.Static{}})
	require.NoError(t, on.HandleRunBatchTask(context.Background(), NewBatchTask("weekly_x")))
	require.NoError(t, f.db.Model(&Payout{}).Where("batch_id = ?", "weekly_x").Count(&n).Error)
	require.EqualValues(t, 1, n)

	err := on.HandleRunBatchTask(context.Background(), asynq.NewTask(taskname.PayoutBatchRun, []byte(`{}`)))
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestBatchLockKeyIsPerWeek(t *testing.T) {
	monday := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	first := batchLockKey(gen.BatchID("weekly", monday))
	again := batchLockKey(gen.BatchID("weekly", monday.Add(3*time.Hour)))
	require.Equal(t, first, again)
	require.Equal(t, "payout:batch:lock:weekly:2026-10-19", first)

	require.NotEqual(t, first, batchLockKey(gen.BatchID("weekly", monday.AddDate(0, 0, 7))))

	manual := gen.BatchID("manual", monday)
	require.Equal(t, "payout:batch:lock:"+manual, batchLockKey(manual))
	require.NotEqual(t, batchLockKey(manual), batchLockKey(gen.BatchID("manual", monday)))
}

func TestRetryPolicy(t *testing.T) {
	policy := NewRetryPolicy(config.Default())
	require.Equal(t, time.Minute, policy[taskname.PayoutProcess])
}

func TestSettingsRetryDelay(t *testing.T) {
	s := NewSettings(config.Default())
	require.Equal(t, money.Units(20), s.MinimumPayout)
	require.Equal(t, 10*time.Minute, s.RetryDelay(1))
	require.Equal(t, 20*time.Minute, s.RetryDelay(2))
	require.Equal(t, 40*time.Minute, s.RetryDelay(3))
}
