package reward

import (
	"creatorpay/pkg/config"
	"creatorpay/pkg/money"

	"github.com/shopspring/decimal"
)

// Settings are the reward constants. They are built once from config and
// never mutated.
type Settings struct {
	RewardPerView        money.Amount
	PoolPercentage       decimal.Decimal
	MinBoostAmount       money.Amount
	MaxBoostAmount       money.Amount
	BoostScoreMultiplier int64
	MinWatchSeconds      float64
	MinWatchPercentage   float64
}

func NewSettings(m config.Monetization) Settings {
	return Settings{
		RewardPerView:        money.FromFloat(m.RewardPerView),
		PoolPercentage:       decimal.NewFromFloat(m.RewardPoolPercentage),
		MinBoostAmount:       money.FromFloat(m.MinBoostAmount),
		MaxBoostAmount:       money.FromFloat(m.MaxBoostAmount),
		BoostScoreMultiplier: m.BoostScoreMultiplier,
		MinWatchSeconds:      float64(m.MinWatchSeconds),
		MinWatchPercentage:   m.MinWatchPercentage,
	}
}

// PoolFor returns the share of a boost that funds its reward pool.
func (s Settings) PoolFor(boost money.Amount) money.Amount {
	return boost.Mul(s.PoolPercentage)
}

// BoostScore is the feed ranking weight given to a boosted video.
func (s Settings) BoostScore(boost money.Amount) int64 {
	return boost.Decimal().Mul(decimal.NewFromInt(s.BoostScoreMultiplier)).IntPart()
}

// Qualifies reports whether a watch earns a reward: at least MinWatchSeconds
// or at least MinWatchPercentage of the video.
func (s Settings) Qualifies(watchSeconds, videoSeconds float64) (bool, float64) {
	pct := WatchPercentage(watchSeconds, videoSeconds)
	return watchSeconds >= s.MinWatchSeconds || pct >= s.MinWatchPercentage, pct
}

func WatchPercentage(watchSeconds, videoSeconds float64) float64 {
	if videoSeconds <= 0 {
		return 0
	}
	return watchSeconds / videoSeconds * 100
}

// MaxRewardedViews is how many rewards of perView a pool can still pay.
func MaxRewardedViews(pool, perView money.Amount) int64 {
	return pool.Div(perView)
}
