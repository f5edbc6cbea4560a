package reward

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"creatorpay/pkg/config"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/money"
	"creatorpay/services/testutil"
	"creatorpay/services/transaction"
	"creatorpay/services/wallet"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	db           *gorm.DB
	svc          *Service
	wallet       *wallet.Service
	transactions *transaction.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	models := append(Models(), &wallet.Wallet{}, &transaction.Transaction{})
	db := testutil.NewTestDB(t, models...)
	testutil.CreateIndexes(t, db, Indexes()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Default()
	w := wallet.NewService(wallet.ServiceParams{DB: db, Node: node, Config: cfg})
	tr := transaction.NewService(transaction.Params{DB: db, Node: node})

	return &fixture{
		db:           db,
		wallet:       w,
		transactions: tr,
		svc: NewService(ServiceParams{
			DB:           db,
			Node:         node,
			Config:       cfg,
			Wallet:       w,
			Transactions: tr,
		}),
	}
}

func (f *fixture) seedVideo(t *testing.T, id, owner string, duration float64) {
	t.Helper()
	require.NoError(t, f.db.Create(&Video{ID: id, OwnerID: owner, DurationSeconds: duration}).Error)
}

// seedPool creates an active pool directly, bypassing FundPool, so tests can
// pick an exact remaining amount.
func (f *fixture) seedPool(t *testing.T, videoID string, remaining money.Amount) {
	t.Helper()
	require.NoError(t, f.db.Model(&Video{}).Where("id = ?", videoID).
		Updates(map[string]any{"is_boosted": true, "has_reward_pool": true}).Error)
	require.NoError(t, f.db.Create(&VideoReward{
		ID:               "pool-" + videoID,
		VideoID:          videoID,
		OwnerID:          "owner",
		BoostAmount:      remaining * 5,
		TotalRewardPool:  remaining,
		RemainingRewards: remaining,
		RewardPerView:    f.svc.Settings().RewardPerView,
		IsActive:         true,
	}).Error)
}

func (f *fixture) pool(t *testing.T, videoID string) *VideoReward {
	t.Helper()
	var p VideoReward
	require.NoError(t, f.db.Where("video_id = ?", videoID).Order("created_at desc").Take(&p).Error)
	return &p
}

func (f *fixture) fund(t *testing.T, videoID, owner string, amount money.Amount) *VideoReward {
	t.Helper()
	pool, err := f.svc.FundPool(context.Background(), FundPoolRequest{
		VideoID:     videoID,
		OwnerID:     owner,
		BoostID:     "boost-" + videoID,
		BoostAmount: amount,
	})
	require.NoError(t, err)
	return pool
}

func TestRecordQualifyingViewEarns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 40)
	f.fund(t, "v1", "owner", money.Units(100))

	res, err := f.svc.RecordQualifyingView(ctx, "viewer", "v1", 15)
	require.NoError(t, err)
	require.True(t, res.Earned)
	require.Equal(t, money.Amount(300), res.Amount)
	require.False(t, res.PoolDepleted)
	require.Equal(t, "You earned €0.0003 for watching this video!", res.Message)

	w, err := f.wallet.Get(ctx, nil, "viewer")
	require.NoError(t, err)
	require.Equal(t, money.Amount(300), w.Balance)
	require.Equal(t, money.Amount(300), w.TotalEarned)

	p := f.pool(t, "v1")
	require.Equal(t, money.Units(20)-300, p.RemainingRewards)
	require.Equal(t, money.Amount(300), p.DistributedRewards)
	require.Equal(t, int64(1), p.EligibleViews)

	stats, err := f.svc.GetGlobalStats(ctx)
	require.NoError(t, err)
	require.Equal(t, money.Units(20), stats.TotalPoolAllocated)
	require.Equal(t, money.Amount(300), stats.TotalDistributed)
	require.Equal(t, money.Units(20)-300, stats.TotalPendingRewards)
	require.Equal(t, int64(1), stats.TotalRewardedViews)

	txn, err := f.transactions.GetByReference(ctx, nil, "viewer", "v1", transaction.TypeRewardEarned)
	require.NoError(t, err)
	require.NotNil(t, txn)
	require.Equal(t, money.Amount(0), txn.BalanceBefore)
	require.Equal(t, money.Amount(300), txn.BalanceAfter)
	require.Equal(t, transaction.MethodReward, txn.PaymentMethod)

	res, err = f.svc.RecordQualifyingView(ctx, "viewer", "v1", 40)
	require.NoError(t, err)
	require.False(t, res.Earned)
	require.Equal(t, ReasonAlreadyEarned, res.Reason)
	require.Equal(t, "You already earned rewards from this video", res.Message)
}

func TestRecordQualifyingViewRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "boosted", "owner", 40)
	f.seedVideo(t, "plain", "owner", 40)
	f.fund(t, "boosted", "owner", money.Units(10))

	tests := []struct {
		name    string
		viewer  string
		video   string
		watch   float64
		reason  string
		message string
	}{
		{"missing video", "viewer", "nope", 30, ReasonVideoNotFound, "Video not found"},
		{"own video", "owner", "boosted", 30, ReasonOwnVideo, "You cannot earn rewards from your own videos"},
		{"no pool", "viewer", "plain", 30, ReasonNoActivePool, "This video does not have an active reward pool"},
		{"5s of 40s", "viewer", "boosted", 5, ReasonWatchTooShort, "You must watch at least 10 seconds or 30% of the video to earn rewards"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.RecordQualifyingView(ctx, tt.viewer, tt.video, tt.watch)
			require.NoError(t, err)
			require.False(t, res.Earned)
			require.Equal(t, tt.reason, res.Reason)
			require.Equal(t, tt.message, res.Message)
		})
	}

	w, err := f.wallet.Get(ctx, nil, "viewer")
	require.NoError(t, err)
	require.Nil(t, w)
}

func TestWatchPercentageQualifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "short", "owner", 12)
	f.fund(t, "short", "owner", money.Units(1))

	// 4s is under 10s but 33% of a 12s video.
	res, err := f.svc.RecordQualifyingView(ctx, "viewer", "short", 4)
	require.NoError(t, err)
	require.True(t, res.Earned)
}

func TestPoolBoundaryOneAndAHalfRewards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 40)
	f.seedPool(t, "v1", 450)

	res, err := f.svc.RecordQualifyingView(ctx, "first", "v1", 20)
	require.NoError(t, err)
	require.True(t, res.Earned)
	require.True(t, res.PoolDepleted)

	p := f.pool(t, "v1")
	require.False(t, p.IsActive)
	require.NotNil(t, p.DeactivatedAt)
	require.Equal(t, money.Amount(150), p.RemainingRewards)

	var v Video
	require.NoError(t, f.db.Where("id = ?", "v1").Take(&v).Error)
	require.False(t, v.IsBoosted)
	require.False(t, v.HasRewardPool)
	require.Zero(t, v.BoostScore)

	res, err = f.svc.RecordQualifyingView(ctx, "second", "v1", 20)
	require.NoError(t, err)
	require.False(t, res.Earned)
	require.Equal(t, ReasonPoolDepleted, res.Reason)
	require.Equal(t, "Reward pool is depleted", res.Message)
}

func TestUnderfundedActivePoolIsDeactivated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 40)
	f.seedPool(t, "v1", 100)

	res, err := f.svc.RecordQualifyingView(ctx, "viewer", "v1", 20)
	require.NoError(t, err)
	require.Equal(t, ReasonPoolDepleted, res.Reason)

	p := f.pool(t, "v1")
	require.False(t, p.IsActive)
	require.Equal(t, money.Amount(100), p.RemainingRewards)

	var earnings int64
	require.NoError(t, f.db.Model(&UserEarning{}).Count(&earnings).Error)
	require.Zero(t, earnings)
}

func TestLockedWalletDoesNotEarn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 40)
	f.fund(t, "v1", "owner", money.Units(10))

	_, err := f.wallet.Create(ctx, "viewer")
	require.NoError(t, err)
	_, err = f.wallet.Lock(ctx, "viewer", "chargeback")
	require.NoError(t, err)

	res, err := f.svc.RecordQualifyingView(ctx, "viewer", "v1", 20)
	require.NoError(t, err)
	require.False(t, res.Earned)
	require.Equal(t, ReasonWalletLocked, res.Reason)

	p := f.pool(t, "v1")
	require.Equal(t, money.Units(2), p.RemainingRewards)
	require.Zero(t, p.EligibleViews)
}

func TestConcurrentViewsNeverOverdrawPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 40)
	f.seedPool(t, "v1", 5*300)

	const viewers = 20
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		earned int
	)
	for i := 0; i < viewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.RecordQualifyingView(ctx, fmt.Sprintf("viewer-%d", i), "v1", 30)
			require.NoError(t, err)
			if res.Earned {
				mu.Lock()
				earned++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 5, earned)

	p := f.pool(t, "v1")
	require.Equal(t, money.Amount(0), p.RemainingRewards)
	require.Equal(t, money.Amount(1500), p.DistributedRewards)
	require.False(t, p.IsActive)

	var total int64
	require.NoError(t, f.db.Model(&wallet.Wallet{}).Select("COALESCE(SUM(balance), 0)").Scan(&total).Error)
	require.Equal(t, int64(1500), total)
}

func TestConcurrentDuplicateViewsEarnOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 40)
	f.fund(t, "v1", "owner", money.Units(10))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		reasons = map[string]int{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.RecordQualifyingView(ctx, "viewer", "v1", 30)
			require.NoError(t, err)
			mu.Lock()
			if res.Earned {
				reasons["earned"]++
			} else {
				reasons[res.Reason]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, reasons["earned"])
	require.Equal(t, 9, reasons[ReasonAlreadyEarned])

	w, err := f.wallet.Get(ctx, nil, "viewer")
	require.NoError(t, err)
	require.Equal(t, money.Amount(300), w.Balance)
}

func TestHundredEuroBoostPaysSixtySixThousandViews(t *testing.T) {
	f := newFixture(t)
	f.seedVideo(t, "v1", "owner", 40)
	pool := f.fund(t, "v1", "owner", money.Units(100))

	require.Equal(t, money.Units(20), pool.TotalRewardPool)
	require.Equal(t, int64(66666), MaxRewardedViews(pool.TotalRewardPool, pool.RewardPerView))

	view, err := f.svc.GetVideoRewardPool(context.Background(), "v1")
	require.NoError(t, err)
	require.Equal(t, int64(66666), view.MaxPossibleViews)
	require.Equal(t, 100.0, view.PercentageRemaining)

	if testing.Short() {
		t.Skip("draining the pool row by row")
	}

	var taken int64
	err = f.db.Transaction(func(tx *gorm.DB) error {
		for {
			ok, err := f.svc.takeFromPool(tx, pool.ID, pool.RewardPerView)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			taken++
		}
	})
	require.NoError(t, err)
	require.Equal(t, int64(66666), taken)
	require.Equal(t, money.Amount(200), f.pool(t, "v1").RemainingRewards)
}

func TestFundPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 40)

	_, err := f.svc.FundPool(ctx, FundPoolRequest{VideoID: "v1", OwnerID: "owner", BoostID: "b", BoostAmount: money.FromFloat(0.5)})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	_, err = f.svc.FundPool(ctx, FundPoolRequest{VideoID: "v1", OwnerID: "owner", BoostID: "b", BoostAmount: money.Units(101)})
	require.True(t, errutil.Is(err, errutil.StatusBadRequest))

	_, err = f.svc.FundPool(ctx, FundPoolRequest{VideoID: "v1", OwnerID: "someone", BoostID: "b", BoostAmount: money.Units(10)})
	require.True(t, errutil.Is(err, errutil.StatusForbidden))

	_, err = f.svc.FundPool(ctx, FundPoolRequest{VideoID: "missing", OwnerID: "owner", BoostID: "b", BoostAmount: money.Units(10)})
	require.True(t, errutil.Is(err, errutil.StatusNotFound))

	pool := f.fund(t, "v1", "owner", money.Units(50))
	require.Equal(t, money.Units(10), pool.TotalRewardPool)
	require.True(t, pool.IsActive)

	_, err = f.svc.FundPool(ctx, FundPoolRequest{VideoID: "v1", OwnerID: "owner", BoostID: "b2", BoostAmount: money.Units(10)})
	require.True(t, errutil.Is(err, errutil.StatusConflict))

	var v Video
	require.NoError(t, f.db.Where("id = ?", "v1").Take(&v).Error)
	require.True(t, v.IsBoosted)
	require.True(t, v.HasRewardPool)
	require.Equal(t, int64(500), v.BoostScore)

	stats, err := f.svc.GetGlobalStats(ctx)
	require.NoError(t, err)
	require.Equal(t, money.Units(10), stats.TotalPoolAllocated)
	require.Equal(t, money.Units(10), stats.TotalPendingRewards)
	require.Equal(t, int64(1), stats.TotalBoosts)

	txn, err := f.transactions.GetByReference(ctx, nil, "owner", "boost-v1", transaction.TypeBoostPurchase)
	require.NoError(t, err)
	require.Equal(t, money.Units(50), txn.Amount)
}

func TestFundPoolOncePerBoost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedVideo(t, "v1", "owner", 40)
	pool := f.fund(t, "v1", "owner", money.Units(10))

	require.NoError(t, f.db.Model(&VideoReward{}).Where("id = ?", pool.ID).Update("is_active", false).Error)

	_, err := f.svc.FundPool(ctx, FundPoolRequest{VideoID: "v1", OwnerID: "owner", BoostID: "boost-v1", BoostAmount: money.Units(10)})
	require.True(t, errutil.Is(err, errutil.StatusConflict))
	require.Contains(t, err.Error(), "Boost has already funded a reward pool")

	next, err := f.svc.FundPool(ctx, FundPoolRequest{VideoID: "v1", OwnerID: "owner", BoostID: "boost-v1-again", BoostAmount: money.Units(10)})
	require.NoError(t, err)
	require.True(t, next.IsActive)
}

func TestGetUserEarningsAndTopEarners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"v1", "v2"} {
		f.seedVideo(t, id, "owner", 40)
		f.fund(t, id, "owner", money.Units(5))
	}

	for _, call := range []struct{ viewer, video string }{{"a", "v1"}, {"a", "v2"}, {"b", "v1"}} {
		res, err := f.svc.RecordQualifyingView(ctx, call.viewer, call.video, 20)
		require.NoError(t, err)
		require.True(t, res.Earned)
	}

	summary, err := f.svc.GetUserEarnings(ctx, "a", 0)
	require.NoError(t, err)
	require.Equal(t, money.Amount(600), summary.TotalEarned)
	require.Equal(t, int64(2), summary.Count)
	require.Len(t, summary.Earnings, 2)

	top, err := f.svc.GetTopEarners(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "a", top[0].UserID)
	require.Equal(t, money.Amount(600), top[0].TotalEarned)
	require.Equal(t, int64(2), top[0].Views)
}

func TestSettings(t *testing.T) {
	s := NewSettings(config.Default().Monetization)

	require.Equal(t, money.Amount(300), s.RewardPerView)
	require.Equal(t, money.Units(20), s.PoolFor(money.Units(100)))
	require.Equal(t, int64(1000), s.BoostScore(money.Units(100)))

	ok, pct := s.Qualifies(5, 40)
	require.False(t, ok)
	require.Equal(t, 12.5, pct)

	ok, _ = s.Qualifies(10, 600)
	require.True(t, ok)

	ok, _ = s.Qualifies(3, 0)
	require.False(t, ok)
}

func TestStatsSQLRendersOnMySQL(t *testing.T) {
	conn := testutil.NewMySQLDryRun(t)
	sql := conn.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return statsQuery(tx, statsDelta{distributed: money.FromFloat(0.0003), rewardedViews: 1}, time.Now())
	})
	require.Contains(t, sql, "UPDATE `reward_pool_stats` SET")
	require.Contains(t, sql, "total_rewarded_views + 1")
	require.NotContains(t, sql, "excluded")
}
