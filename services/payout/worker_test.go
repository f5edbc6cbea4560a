package payout

import (
	"context"
	"testing"
	"time"

	"creatorpay/pkg/errutil"
	"creatorpay/pkg/money"
	"creatorpay/pkg/provider"
	"creatorpay/services/transaction"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func (f *fixture) expectTransfer(t *testing.T, p *Payout, id string) *gomock.Call {
	return f.provider.EXPECT().Transfer(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req provider.TransferRequest) (*provider.TransferResult, error) {
			require.Equal(t, p.IdempotencyKey+"-transfer", req.IdempotencyKey)
			require.Equal(t, p.StripeConnectAccountID, req.Destination)
			require.Equal(t, p.Amount.MinorUnits(), req.Amount)
			require.Equal(t, p.ID, req.Metadata["payout_id"])
			return &provider.TransferResult{ID: id, Amount: req.Amount, Currency: req.Currency, Destination: req.Destination}, nil
		})
}

func (f *fixture) expectPayout(t *testing.T, p *Payout, id string) *gomock.Call {
	return f.provider.EXPECT().CreatePayout(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, req provider.PayoutRequest) (*provider.PayoutResult, error) {
			require.Equal(t, p.IdempotencyKey+"-payout", req.IdempotencyKey)
			require.Equal(t, p.StripeConnectAccountID, req.AccountID)
			return &provider.PayoutResult{ID: id, Amount: req.Amount, Currency: req.Currency, Status: "pending"}, nil
		})
}

func TestProcessPayoutPaysFullBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.creator(t, "u1", "acct_u1", money.Units(25))
	p := f.create(t, "u1", money.Units(25))

	f.expectTransfer(t, p, "tr_1").Times(1)
	f.expectPayout(t, p, "po_1").Times(1)

	res, err := f.svc.ProcessPayout(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "Payout completed successfully", res.Message)

	got := f.reload(t, p.ID)
	require.Equal(t, StatusPaid, got.Status)
	require.Equal(t, "tr_1", got.StripeTransferID)
	require.Equal(t, "po_1", got.StripePayoutID)
	require.NotNil(t, got.PaidAt)
	require.Nil(t, got.NextRetryAt)

	w, err := f.wallet.Get(ctx, nil, "u1")
	require.NoError(t, err)
	require.Zero(t, w.Balance)
	require.Equal(t, money.Units(25), w.TotalWithdrawn)

	var txn transaction.Transaction
	require.NoError(t, f.db.Where("reference_id = ?", p.ID).Take(&txn).Error)
	require.Equal(t, transaction.TypePayout, txn.Type)
	require.Equal(t, transaction.MethodStripeConnect, txn.PaymentMethod)
	require.Equal(t, money.Units(25), txn.BalanceBefore)
	require.Zero(t, txn.BalanceAfter)
	require.Contains(t, string(txn.Metadata), `"stripe_transfer_id":"tr_1"`)
	require.Contains(t, string(txn.Metadata), `"stripe_payout_id":"po_1"`)

	for _, a := range []Action{ActionProcessing, ActionStripeCall, ActionStripeSuccess, ActionBalanceUpdate, ActionTransactionCreated, ActionCompleted} {
		require.NotZero(t, f.countLogs(t, &PayoutLog{PayoutID: p.ID, Action: a}), a)
	}
}

func TestProcessPaidPayoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.creator(t, "u1", "acct_u1", money.Units(40))
	p := f.create(t, "u1", money.Units(25))

	f.expectTransfer(t, p, "tr_1").Times(1)
	f.expectPayout(t, p, "po_1").Times(1)

	_, err := f.svc.ProcessPayout(ctx, p.ID)
	require.NoError(t, err)

	res, err := f.svc.ProcessPayout(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "Payout already processed", res.Message)

	w, err := f.wallet.Get(ctx, nil, "u1")
	require.NoError(t, err)
	require.Equal(t, money.Units(15), w.Balance)

	var n int64
	require.NoError(t, f.db.Model(&transaction.Transaction{}).Where("reference_id = ?", p.ID).Count(&n).Error)
	require.EqualValues(t, 1, n)
	require.EqualValues(t, 1, f.countLogs(t, &PayoutLog{PayoutID: p.ID, Message: "Payout already processed (idempotency check)"}))
}

func TestPartialStateRetryDoesNotTransferTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.creator(t, "u1", "acct_u1", money.Units(25))
	p := f.create(t, "u1", money.Units(25))

	f.expectTransfer(t, p, "tr_1").Times(1)
	gomock.InOrder(
		f.provider.EXPECT().CreatePayout(gomock.Any(), gomock.Any()).
			Return(nil, &provider.Error{Op: "create payout", Code: "balance_insufficient", Message: "Insufficient funds", RequestID: "req_1"}),
		f.expectPayout(t, p, "po_1"),
	)

	start := time.Now()
	res, err := f.svc.ProcessPayout(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.True(t, res.RetryScheduled)
	require.Equal(t, "Payout failed, retry scheduled (attempt 1/3)", res.Message)

	got := f.reload(t, p.ID)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, 1, got.RetryCount)
	require.Equal(t, "tr_1", got.StripeTransferID)
	require.Empty(t, got.StripePayoutID)
	require.Equal(t, "Insufficient funds", got.FailureReason)
	require.Contains(t, string(got.FailureDetails), `"code":"balance_insufficient"`)
	require.NotNil(t, got.NextRetryAt)
	require.WithinDuration(t, start.Add(10*time.Minute), *got.NextRetryAt, time.Minute)
	require.Contains(t, f.queue.ids(), processTaskID(p.ID, 1))

	require.EqualValues(t, 1, f.countLogs(t, &PayoutLog{
		PayoutID: p.ID,
		Action:   ActionStripeError,
		Message:  "Partial state: transfer succeeded, payout not yet created",
	}))
	var partial PayoutLog
	require.NoError(t, f.db.Where(&PayoutLog{PayoutID: p.ID, Action: ActionStripeError}).Take(&partial).Error)
	require.Equal(t, "balance_insufficient", partial.ErrorCode)
	require.Equal(t, "req_1", partial.StripeRequestID)
	require.Equal(t, "tr_1", partial.StripeTransferID)
	require.EqualValues(t, 1, f.countLogs(t, &PayoutLog{PayoutID: p.ID, Action: ActionRetryScheduled}))

	res, err = f.svc.ProcessPayout(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, res.Success)

	got = f.reload(t, p.ID)
	require.Equal(t, StatusPaid, got.Status)
	require.Equal(t, "tr_1", got.StripeTransferID)
	require.Equal(t, "po_1", got.StripePayoutID)
	require.EqualValues(t, 1, f.countLogs(t, &PayoutLog{PayoutID: p.ID, Message: "Transfer already recorded, skipping"}))
}

func TestThreeFailuresEndFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.creator(t, "u1", "acct_u1", money.Units(25))
	p := f.create(t, "u1", money.Units(25))

	f.provider.EXPECT().Transfer(gomock.Any(), gomock.Any()).
		Return(nil, &provider.Error{Op: "transfer", Message: "connection reset"}).
		Times(3)

	for i := 1; i <= 2; i++ {
		res, err := f.svc.ProcessPayout(ctx, p.ID)
		require.NoError(t, err)
		require.True(t, res.RetryScheduled)
		require.Equal(t, i, f.reload(t, p.ID).RetryCount)
	}

	res, err := f.svc.ProcessPayout(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.False(t, res.RetryScheduled)
	require.True(t, res.Terminal)

	got := f.reload(t, p.ID)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, 3, got.RetryCount)
	require.Nil(t, got.NextRetryAt)
	require.NotNil(t, got.FailedAt)
	require.Equal(t, "connection reset", got.FailureReason)
	require.EqualValues(t, 1, f.countLogs(t, &PayoutLog{PayoutID: p.ID, Message: "Payout failed permanently after 3 attempts"}))

	// Terminal: no more provider calls.
	res, err = f.svc.ProcessPayout(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, res.Terminal)

	w, err := f.wallet.Get(ctx, nil, "u1")
	require.NoError(t, err)
	require.Equal(t, money.Units(25), w.Balance)
}

func TestProcessPayoutAccountNoLongerReady(t *testing.T) {
	f := newFixture(t)
	f.creator(t, "u1", "acct_u1", money.Units(25))
	p := f.create(t, "u1", money.Units(25))
	f.setReady("acct_u1", false)

	res, err := f.svc.ProcessPayout(context.Background(), p.ID)
	require.NoError(t, err)
	require.True(t, res.RetryScheduled)

	got := f.reload(t, p.ID)
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, "Stripe Connect account not ready: "+provider.ReasonPayoutsDisabled, got.FailureReason)
	require.EqualValues(t, 1, f.countLogs(t, &PayoutLog{PayoutID: p.ID, Action: ActionAccountError, ErrorCode: "ACCOUNT_NOT_READY"}))
}

func TestProcessPayoutWalletDrained(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.creator(t, "u1", "acct_u1", money.Units(25))
	p := f.create(t, "u1", money.Units(25))
	_, err := f.wallet.Debit(ctx, nil, "u1", money.Units(10))
	require.NoError(t, err)

	res, err := f.svc.ProcessPayout(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, res.RetryScheduled)
	require.Equal(t, "Insufficient balance: €15.00 available, €25.00 required", f.reload(t, p.ID).FailureReason)
}

func TestProcessPayoutClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.creator(t, "u1", "acct_u1", money.Units(25))
	p := f.create(t, "u1", money.Units(25))

	fresh := time.Now().Add(-time.Minute)
	require.NoError(t, f.db.Model(&Payout{}).Where("id = ?", p.ID).
		Updates(map[string]any{"status": StatusProcessing, "processing_at": fresh}).Error)

	res, err := f.svc.ProcessPayout(ctx, p.ID)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.False(t, res.Terminal)
	require.Equal(t, "Payout is already being processed", res.Message)

	// A claim older than the task timeout belongs to a dead worker.
	stale := time.Now().Add(-time.Hour)
	require.NoError(t, f.db.Model(&Payout{}).Where("id = ?", p.ID).Update("processing_at", stale).Error)

	f.expectTransfer(t, p, "tr_1").Times(1)
	f.expectPayout(t, p, "po_1").Times(1)

	res, err = f.svc.ProcessPayout(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, StatusPaid, f.reload(t, p.ID).Status)
}

func TestProcessPayoutNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ProcessPayout(context.Background(), "missing")
	require.True(t, errutil.Is(err, errutil.StatusNotFound))
}

func TestCancelPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.creator(t, "u1", "acct_u1", money.Units(25))
	p := f.create(t, "u1", money.Units(25))

	got, err := f.svc.CancelPayout(ctx, p.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	require.EqualValues(t, 1, f.countLogs(t, &PayoutLog{PayoutID: p.ID, Action: ActionCancelled}))

	_, err = f.svc.CancelPayout(ctx, p.ID, "admin-1")
	require.True(t, errutil.Is(err, errutil.StatusConflict))
	require.EqualError(t, err, "[conflict] Cannot cancel payout with status: cancelled")

	res, err := f.svc.ProcessPayout(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, res.Terminal)
	require.Equal(t, "Payout was cancelled", res.Message)
}
