package reward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creatorpay/pkg/config"
	"creatorpay/pkg/db"
	"creatorpay/pkg/db/option"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/money"
	"creatorpay/pkg/repository"
	"creatorpay/services/transaction"
	"creatorpay/services/wallet"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errAlreadyEarned = errors.New("earning already recorded")
	errWalletLocked  = errors.New("wallet locked")
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	settings Settings

	wallet       *wallet.Service
	transactions *transaction.Service

	videos   repository.Repository[Video]
	pools    repository.Repository[VideoReward]
	earnings repository.Repository[UserEarning]
}

type ServiceParams struct {
	fx.In
	DB           *gorm.DB
	Node         *snowflake.Node
	Config       *config.Config
	Wallet       *wallet.Service
	Transactions *transaction.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:           p.DB,
		node:         p.Node,
		settings:     NewSettings(p.Config.Monetization),
		wallet:       p.Wallet,
		transactions: p.Transactions,
		videos:       repository.ProvideStore[Video](p.DB),
		pools:        repository.ProvideStore[VideoReward](p.DB),
		earnings:     repository.ProvideStore[UserEarning](p.DB),
	}
}

func (s *Service) Settings() Settings {
	return s.settings
}

func traceFields(ctx context.Context) []zap.Field {
	span := trace.SpanFromContext(ctx)
	return []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	}
}

// RecordQualifyingView settles one view event. Preconditions are checked in
// order and each failure is reported as a non-earning result. The pool
// decrement, the earning row, the wallet credit, the stats and the
// transaction record commit together or not at all.
func (s *Service) RecordQualifyingView(ctx context.Context, viewerID, videoID string, watchSeconds float64) (*ViewResult, error) {
	log := zap.L().With(traceFields(ctx)...).With(zap.String("user_id", viewerID), zap.String("video_id", videoID))

	video, err := s.videos.FindOne(ctx, &Video{ID: videoID})
	if err != nil {
		log.Error("failed to load video", zap.Error(err))
		return nil, err
	}
	if video == nil {
		return notEarned(ReasonVideoNotFound, msgVideoNotFound), nil
	}
	if video.OwnerID == viewerID {
		return notEarned(ReasonOwnVideo, msgOwnVideo), nil
	}

	if !video.HasRewardPool || !video.IsBoosted {
		return s.inactivePoolResult(ctx, s.db, videoID)
	}

	existing, err := s.earnings.FindOne(ctx, &UserEarning{UserID: viewerID, VideoID: videoID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return notEarned(ReasonAlreadyEarned, msgAlreadyEarned), nil
	}

	ok, pct := s.settings.Qualifies(watchSeconds, video.DurationSeconds)
	if !ok {
		return watchTooShort(s.settings), nil
	}

	amount := s.settings.RewardPerView
	var result *ViewResult

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pool, err := s.pools.WithTrx(tx).FindOne(ctx, &VideoReward{VideoID: videoID, IsActive: true})
		if err != nil {
			return err
		}
		if pool == nil {
			result, err = s.inactivePoolResult(ctx, tx, videoID)
			return err
		}

		dup, err := s.earnings.WithTrx(tx).FindOne(ctx, &UserEarning{UserID: viewerID, VideoID: videoID})
		if err != nil {
			return err
		}
		if dup != nil {
			return errAlreadyEarned
		}

		taken, err := s.takeFromPool(tx, pool.ID, amount)
		if err != nil {
			return err
		}
		if !taken {
			// Not enough left for one more reward. Close the pool and commit
			// that, but pay nothing.
			if err := s.deactivatePool(tx, pool.ID, videoID); err != nil {
				return err
			}
			result = notEarned(ReasonPoolDepleted, msgPoolDepleted)
			return nil
		}

		var after VideoReward
		if err := tx.Select("remaining_rewards").Where("id = ?", pool.ID).Take(&after).Error; err != nil {
			return err
		}
		depleted := after.RemainingRewards < amount
		if depleted {
			if err := s.deactivatePool(tx, pool.ID, videoID); err != nil {
				return err
			}
		}

		earning := &UserEarning{
			ID:                   s.node.Generate().String(),
			UserID:               viewerID,
			VideoID:              videoID,
			VideoRewardID:        pool.ID,
			Amount:               amount,
			WatchDurationSeconds: watchSeconds,
			VideoDurationSeconds: video.DurationSeconds,
			WatchPercentage:      pct,
			CreatedAt:            time.Now(),
		}
		if err := s.earnings.WithTrx(tx).Create(ctx, earning); err != nil {
			if db.IsDuplicate(err) {
				return errAlreadyEarned
			}
			return err
		}

		mv, err := s.wallet.Credit(ctx, tx, viewerID, amount)
		if err != nil {
			if errors.Is(err, wallet.ErrWalletLocked) {
				return errWalletLocked
			}
			return err
		}

		if err := bumpStats(tx, statsDelta{
			distributed:   amount,
			pending:       -amount,
			rewardedViews: 1,
		}); err != nil {
			return err
		}

		if _, err := s.transactions.Record(ctx, tx, transaction.RecordParams{
			UserID:        viewerID,
			Type:          transaction.TypeRewardEarned,
			Amount:        amount,
			BalanceBefore: mv.BalanceBefore,
			BalanceAfter:  mv.BalanceAfter,
			Status:        transaction.StatusCompleted,
			PaymentMethod: transaction.MethodReward,
			ReferenceID:   videoID,
			Description:   fmt.Sprintf("Earned €%s from watching video", amount.Decimal().StringFixed(4)),
			Metadata: map[string]any{
				"watch_duration":   watchSeconds,
				"video_duration":   video.DurationSeconds,
				"watch_percentage": pct,
				"reward_amount":    amount.String(),
				"video_reward_id":  pool.ID,
			},
		}); err != nil {
			return err
		}

		result = earned(amount, depleted)
		return nil
	})

	switch {
	case errors.Is(err, errAlreadyEarned):
		return notEarned(ReasonAlreadyEarned, msgAlreadyEarned), nil
	case errors.Is(err, errWalletLocked):
		log.Warn("reward skipped, viewer wallet is locked")
		return notEarned(ReasonWalletLocked, msgWalletLocked), nil
	case err != nil:
		log.Error("failed to settle view", zap.Error(err))
		return nil, err
	}

	if result.Earned {
		rewardsSettled.WithLabelValues("earned").Inc()
		log.Info("reward earned", zap.String("amount", amount.String()), zap.Bool("pool_depleted", result.PoolDepleted))
	} else {
		rewardsSettled.WithLabelValues(result.Reason).Inc()
		log.Info("view not rewarded", zap.String("reason", result.Reason))
	}
	if result.PoolDepleted || result.Reason == ReasonPoolDepleted {
		log.Info("reward pool depleted, boost disabled")
	}

	return result, nil
}

// takeFromPool decrements the pool only when it still holds amount. The
// condition lives in the UPDATE so concurrent views cannot overdraw it.
func (s *Service) takeFromPool(tx *gorm.DB, poolID string, amount money.Amount) (bool, error) {
	res := tx.Model(&VideoReward{}).
		Where("id = ? AND is_active = ? AND remaining_rewards >= ?", poolID, true, amount).
		Updates(map[string]any{
			"remaining_rewards":   gorm.Expr("remaining_rewards - ?", amount),
			"distributed_rewards": gorm.Expr("distributed_rewards + ?", amount),
			"eligible_views":      gorm.Expr("eligible_views + ?", 1),
			"updated_at":          time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// deactivatePool closes the pool once and clears the video's boost flags.
func (s *Service) deactivatePool(tx *gorm.DB, poolID, videoID string) error {
	now := time.Now()
	res := tx.Model(&VideoReward{}).
		Where("id = ? AND is_active = ?", poolID, true).
		Updates(map[string]any{"is_active": false, "deactivated_at": now, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}

	return tx.Model(&Video{}).
		Where("id = ?", videoID).
		Updates(map[string]any{
			"is_boosted":      false,
			"has_reward_pool": false,
			"boost_score":     0,
			"updated_at":      now,
		}).Error
}

// inactivePoolResult tells a depleted pool apart from a video that never had
// one, using the video's most recent pool.
func (s *Service) inactivePoolResult(ctx context.Context, tx *gorm.DB, videoID string) (*ViewResult, error) {
	latest, err := s.pools.WithTrx(tx).FindOne(ctx, &VideoReward{VideoID: videoID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"}))
	if err != nil {
		return nil, err
	}
	if latest != nil && (!latest.IsActive || latest.RemainingRewards < s.settings.RewardPerView) {
		return notEarned(ReasonPoolDepleted, msgPoolDepleted), nil
	}
	return notEarned(ReasonNoActivePool, msgNoActivePool), nil
}

type statsDelta struct {
	allocated     money.Amount
	distributed   money.Amount
	pending       money.Amount
	boosts        int64
	rewardedViews int64
}

// bumpStats applies a delta to the global stats row, creating it on first use.
func bumpStats(tx *gorm.DB, d statsDelta) error {
	now := time.Now()
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&RewardPoolStats{ID: globalStatsID, UpdatedAt: now}).Error; err != nil {
		return err
	}
	return statsQuery(tx, d, now).Error
}

func statsQuery(tx *gorm.DB, d statsDelta, now time.Time) *gorm.DB {
	return tx.Model(&RewardPoolStats{}).
		Where("id = ?", globalStatsID).
		Updates(map[string]any{
			"total_pool_allocated":  gorm.Expr("total_pool_allocated + ?", d.allocated),
			"total_distributed":     gorm.Expr("total_distributed + ?", d.distributed),
			"total_pending_rewards": gorm.Expr("total_pending_rewards + ?", d.pending),
			"total_boosts":          gorm.Expr("total_boosts + ?", d.boosts),
			"total_rewarded_views":  gorm.Expr("total_rewarded_views + ?", d.rewardedViews),
			"updated_at":            now,
		})
}

type FundPoolRequest struct {
	VideoID     string       `json:"video_id" binding:"required"`
	OwnerID     string       `json:"owner_id" binding:"required"`
	BoostID     string       `json:"boost_id" binding:"required"`
	BoostAmount money.Amount `json:"boost_amount" binding:"required"`
}

// FundPool opens the reward pool for a completed boost purchase and marks the
// video as boosted.
func (s *Service) FundPool(ctx context.Context, req FundPoolRequest) (*VideoReward, error) {
	log := zap.L().With(traceFields(ctx)...).With(zap.String("video_id", req.VideoID), zap.String("boost_id", req.BoostID))

	if req.BoostAmount < s.settings.MinBoostAmount || req.BoostAmount > s.settings.MaxBoostAmount {
		return nil, errutil.BadRequest(fmt.Sprintf("Boost amount must be between €%s and €%s",
			s.settings.MinBoostAmount.String(), s.settings.MaxBoostAmount.String()), nil)
	}

	total := s.settings.PoolFor(req.BoostAmount)
	var pool *VideoReward

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		video, err := s.videos.WithTrx(tx).FindOne(ctx, &Video{ID: req.VideoID})
		if err != nil {
			return err
		}
		if video == nil {
			return errutil.NotFound("Video not found", nil)
		}
		if video.OwnerID != req.OwnerID {
			return errutil.Forbidden("You can only boost your own videos", nil)
		}

		active, err := s.pools.WithTrx(tx).FindOne(ctx, &VideoReward{VideoID: req.VideoID, IsActive: true})
		if err != nil {
			return err
		}
		if active != nil {
			return errutil.Conflict("Video already has an active reward pool", nil)
		}

		funded, err := s.transactions.GetByReference(ctx, tx, req.OwnerID, req.BoostID, transaction.TypeBoostPurchase)
		if err != nil {
			return err
		}
		if funded != nil {
			return errutil.Conflict("Boost has already funded a reward pool", nil)
		}

		now := time.Now()
		pool = &VideoReward{
			ID:               s.node.Generate().String(),
			VideoID:          req.VideoID,
			BoostID:          req.BoostID,
			OwnerID:          req.OwnerID,
			BoostAmount:      req.BoostAmount,
			TotalRewardPool:  total,
			RemainingRewards: total,
			RewardPerView:    s.settings.RewardPerView,
			IsActive:         true,
			Metadata:         poolMetadata(req.BoostAmount, total),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.pools.WithTrx(tx).Create(ctx, pool); err != nil {
			if db.IsDuplicate(err) {
				return errutil.Conflict("Video already has an active reward pool", err)
			}
			return err
		}

		if err := tx.Model(&Video{}).Where("id = ?", req.VideoID).Updates(map[string]any{
			"is_boosted":      true,
			"has_reward_pool": true,
			"boost_score":     s.settings.BoostScore(req.BoostAmount),
			"updated_at":      now,
		}).Error; err != nil {
			return err
		}

		if err := bumpStats(tx, statsDelta{allocated: total, pending: total, boosts: 1}); err != nil {
			return err
		}

		var balance money.Amount
		if w, err := s.wallet.Get(ctx, tx, req.OwnerID); err != nil {
			return err
		} else if w != nil {
			balance = w.Balance
		}

		_, err = s.transactions.Record(ctx, tx, transaction.RecordParams{
			UserID:        req.OwnerID,
			Type:          transaction.TypeBoostPurchase,
			Amount:        req.BoostAmount,
			BalanceBefore: balance,
			BalanceAfter:  balance,
			Status:        transaction.StatusCompleted,
			PaymentMethod: transaction.MethodStripe,
			ReferenceID:   req.BoostID,
			Description:   fmt.Sprintf("Boost of €%s for video %s", req.BoostAmount.StringFixed(), req.VideoID),
			Metadata: map[string]any{
				"video_id":    req.VideoID,
				"reward_pool": total.String(),
			},
		})
		return err
	})
	if err != nil {
		log.Error("failed to fund reward pool", zap.Error(err))
		return nil, err
	}

	log.Info("reward pool funded",
		zap.String("pool", total.String()),
		zap.Int64("max_views", MaxRewardedViews(total, s.settings.RewardPerView)),
	)
	return pool, nil
}
