package transaction

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"creatorpay/pkg/db/pagination"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/money"
	"creatorpay/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Transaction{})
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)
	return NewService(Params{DB: db, Node: node})
}

func TestNewService(t *testing.T) {
	db := testutil.NewTestDB(t)
	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	svc := NewService(Params{DB: db, Node: node})

	require.NotNil(t, svc)
	require.Equal(t, db, svc.db)
	require.Equal(t, node, svc.node)
}

func TestRecord(t *testing.T) {
	svc := newTestService(t)

	row, err := svc.Record(context.Background(), nil, RecordParams{
		UserID:        "user-1",
		Type:          TypePayout,
		Amount:        money.Units(25),
		BalanceBefore: money.Units(25),
		BalanceAfter:  0,
		PaymentMethod: MethodStripeConnect,
		ReferenceID:   "payout-1",
		Metadata:      map[string]any{"stripe_transfer_id": "tr_1"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, row.Status)
	require.Regexp(t, `^TXN-\d{8}-[0-9A-F]{12}$`, row.TransactionCode)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(row.Metadata, &meta))
	require.Equal(t, "tr_1", meta["stripe_transfer_id"])

	got, err := svc.GetByReference(context.Background(), nil, "user-1", "payout-1", TypePayout)
	require.NoError(t, err)
	require.Equal(t, row.ID, got.ID)
}

func TestRecordRejectsUnknownType(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Record(context.Background(), nil, RecordParams{UserID: "u", Type: "gift"})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))
}

func TestRecordRollsBackWithTransaction(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	err := svc.db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Record(ctx, tx, RecordParams{UserID: "u", Type: TypeRewardEarned, Amount: 300}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	var n int64
	require.NoError(t, svc.db.Model(&Transaction{}).Count(&n).Error)
	require.Zero(t, n)
}

func TestListPaginates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		row, err := svc.Record(ctx, nil, RecordParams{UserID: "u", Type: TypeRewardEarned, Amount: 300})
		require.NoError(t, err)
		require.NoError(t, svc.db.Model(row).Update("created_at", base.Add(time.Duration(i)*time.Minute)).Error)
	}
	_, err := svc.Record(ctx, nil, RecordParams{UserID: "other", Type: TypeRewardEarned, Amount: 300})
	require.NoError(t, err)

	page, info, err := svc.List(ctx, ListRequest{UserID: "u", Pagination: pagination.Pagination{Limit: 3}})
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.True(t, info.HasMore)
	require.NotEmpty(t, info.NextCursor)

	page, info, err = svc.List(ctx, ListRequest{UserID: "u", Pagination: pagination.Pagination{Limit: 3, Cursor: info.NextCursor}})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.False(t, info.HasMore)
}
