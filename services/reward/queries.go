package reward

import (
	"context"
	"encoding/json"

	"creatorpay/pkg/db/option"
	"creatorpay/pkg/money"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type PoolView struct {
	HasRewardPool       bool         `json:"has_reward_pool"`
	Message             string       `json:"message,omitempty"`
	PoolID              string       `json:"pool_id,omitempty"`
	TotalPool           money.Amount `json:"total_pool"`
	DistributedAmount   money.Amount `json:"distributed_amount"`
	RemainingBalance    money.Amount `json:"remaining_balance"`
	PercentageRemaining float64      `json:"percentage_remaining"`
	RewardPerView       money.Amount `json:"reward_per_view,omitempty"`
	EligibleViews       int64        `json:"eligible_views"`
	MaxPossibleViews    int64        `json:"max_possible_views"`
	IsActive            bool         `json:"is_active"`
}

func (s *Service) GetVideoRewardPool(ctx context.Context, videoID string) (*PoolView, error) {
	pool, err := s.pools.FindOne(ctx, &VideoReward{VideoID: videoID, IsActive: true})
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return &PoolView{Message: msgNoActivePool}, nil
	}

	pct := 0.0
	if pool.TotalRewardPool > 0 {
		pct, _ = pool.RemainingRewards.Decimal().
			Div(pool.TotalRewardPool.Decimal()).
			Mul(decimal.NewFromInt(100)).
			Round(2).
			Float64()
	}

	return &PoolView{
		HasRewardPool:       true,
		PoolID:              pool.ID,
		TotalPool:           pool.TotalRewardPool,
		DistributedAmount:   pool.DistributedRewards,
		RemainingBalance:    pool.RemainingRewards,
		PercentageRemaining: pct,
		RewardPerView:       pool.RewardPerView,
		EligibleViews:       pool.EligibleViews,
		MaxPossibleViews:    MaxRewardedViews(pool.RemainingRewards, pool.RewardPerView),
		IsActive:            pool.IsActive,
	}, nil
}

// GetGlobalStats returns zero totals before the first boost.
func (s *Service) GetGlobalStats(ctx context.Context) (*RewardPoolStats, error) {
	var stats RewardPoolStats
	res := s.db.WithContext(ctx).Where("id = ?", globalStatsID).Limit(1).Find(&stats)
	if res.Error != nil {
		return nil, res.Error
	}
	stats.ID = globalStatsID
	return &stats, nil
}

type EarningsSummary struct {
	UserID      string         `json:"user_id"`
	TotalEarned money.Amount   `json:"total_earned"`
	Count       int64          `json:"count"`
	Earnings    []*UserEarning `json:"earnings"`
}

func (s *Service) GetUserEarnings(ctx context.Context, userID string, limit int) (*EarningsSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var agg struct {
		Total int64
		Count int64
	}
	if err := s.db.WithContext(ctx).Model(&UserEarning{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Scan(&agg).Error; err != nil {
		return nil, err
	}

	rows, err := s.earnings.Find(ctx, &UserEarning{UserID: userID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(limit),
	)
	if err != nil {
		return nil, err
	}

	return &EarningsSummary{
		UserID:      userID,
		TotalEarned: money.Amount(agg.Total),
		Count:       agg.Count,
		Earnings:    rows,
	}, nil
}

type TopEarner struct {
	UserID      string       `json:"user_id"`
	TotalEarned money.Amount `json:"total_earned"`
	Views       int64        `json:"rewarded_views"`
}

func (s *Service) GetTopEarners(ctx context.Context, limit int) ([]TopEarner, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var out []TopEarner
	err := s.db.WithContext(ctx).Model(&UserEarning{}).
		Select("user_id, SUM(amount) AS total_earned, COUNT(*) AS views").
		Group("user_id").
		Order("total_earned DESC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

func poolMetadata(boost, pool money.Amount) datatypes.JSON {
	b, _ := json.Marshal(map[string]string{
		"boost_amount":   boost.String(),
		"reward_pool":    pool.String(),
		"platform_share": (boost - pool).String(),
	})
	return datatypes.JSON(b)
}
