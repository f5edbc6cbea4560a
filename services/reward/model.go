package reward

import (
	"time"

	"creatorpay/pkg/db"
	"creatorpay/pkg/money"

	"gorm.io/datatypes"
)

// Video is the part of the video catalog the settlement engine reads and
// writes. The rest of the catalog is owned elsewhere.
type Video struct {
	ID              string    `gorm:"column:id;primaryKey" json:"id"`
	OwnerID         string    `gorm:"column:owner_id;index;not null" json:"owner_id"`
	DurationSeconds float64   `gorm:"column:duration_seconds;not null" json:"duration_seconds"`
	IsBoosted       bool      `gorm:"column:is_boosted;not null;default:false" json:"is_boosted"`
	HasRewardPool   bool      `gorm:"column:has_reward_pool;not null;default:false" json:"has_reward_pool"`
	BoostScore      int64     `gorm:"column:boost_score;not null;default:0" json:"boost_score"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// VideoReward is the reward pool funded by one boost. At most one pool per
// video is active; once deactivated it never becomes active again.
type VideoReward struct {
	ID                 string         `gorm:"column:id;primaryKey" json:"id"`
	VideoID            string         `gorm:"column:video_id;index;not null" json:"video_id"`
	BoostID            string         `gorm:"column:boost_id;index" json:"boost_id"`
	OwnerID            string         `gorm:"column:owner_id;not null" json:"owner_id"`
	BoostAmount        money.Amount   `gorm:"column:boost_amount;not null" json:"boost_amount"`
	TotalRewardPool    money.Amount   `gorm:"column:total_reward_pool;not null" json:"total_reward_pool"`
	DistributedRewards money.Amount   `gorm:"column:distributed_rewards;not null;default:0" json:"distributed_rewards"`
	RemainingRewards   money.Amount   `gorm:"column:remaining_rewards;not null;check:chk_video_rewards_remaining,remaining_rewards >= 0" json:"remaining_rewards"`
	RewardPerView      money.Amount   `gorm:"column:reward_per_view;not null" json:"reward_per_view"`
	EligibleViews      int64          `gorm:"column:eligible_views;not null;default:0" json:"eligible_views"`
	IsActive           bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`
	DeactivatedAt      *time.Time     `gorm:"column:deactivated_at" json:"deactivated_at,omitempty"`
	Metadata           datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// UserEarning records the single reward a user got from a video.
type UserEarning struct {
	ID                   string       `gorm:"column:id;primaryKey" json:"id"`
	UserID               string       `gorm:"column:user_id;not null;uniqueIndex:idx_user_earnings_user_video,priority:1" json:"user_id"`
	VideoID              string       `gorm:"column:video_id;not null;uniqueIndex:idx_user_earnings_user_video,priority:2" json:"video_id"`
	VideoRewardID        string       `gorm:"column:video_reward_id;index;not null" json:"video_reward_id"`
	Amount               money.Amount `gorm:"column:amount;not null" json:"amount"`
	WatchDurationSeconds float64      `gorm:"column:watch_duration_seconds;not null" json:"watch_duration_seconds"`
	VideoDurationSeconds float64      `gorm:"column:video_duration_seconds;not null" json:"video_duration_seconds"`
	WatchPercentage      float64      `gorm:"column:watch_percentage;not null" json:"watch_percentage"`
	CreatedAt            time.Time    `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

const globalStatsID = "global"

// RewardPoolStats is a single row of platform-wide reward totals.
type RewardPoolStats struct {
	ID                  string       `gorm:"column:id;primaryKey" json:"-"`
	TotalPoolAllocated  money.Amount `gorm:"column:total_pool_allocated;not null;default:0" json:"total_pool_allocated"`
	TotalDistributed    money.Amount `gorm:"column:total_distributed;not null;default:0" json:"total_distributed"`
	TotalPendingRewards money.Amount `gorm:"column:total_pending_rewards;not null;default:0" json:"total_pending_rewards"`
	TotalBoosts         int64        `gorm:"column:total_boosts;not null;default:0" json:"total_boosts"`
	TotalRewardedViews  int64        `gorm:"column:total_rewarded_views;not null;default:0" json:"total_rewarded_views"`
	UpdatedAt           time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (RewardPoolStats) TableName() string {
	return "reward_pool_stats"
}

// Models lists every table owned by this package, for migrations.
func Models() []any {
	return []any{&Video{}, &VideoReward{}, &UserEarning{}, &RewardPoolStats{}}
}

func Indexes() []db.PartialIndex {
	return []db.PartialIndex{{
		Name:    "idx_video_rewards_active",
		Table:   "video_rewards",
		Columns: []string{"video_id"},
		Where:   "is_active",
	}}
}
