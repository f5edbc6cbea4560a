package payout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"creatorpay/pkg/db"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/gen"
	"creatorpay/pkg/money"
	"creatorpay/services/wallet"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type CreatePayoutRequest struct {
	UserID  string
	Amount  money.Amount
	BatchID string
}

// CreatePayout validates the request and persists a pending payout. It moves
// no money; the worker does that.
func (s *Service) CreatePayout(ctx context.Context, req CreatePayoutRequest) (*Payout, error) {
	log := logger(ctx).With(zap.String("user_id", req.UserID), zap.String("batch_id", req.BatchID))

	if req.Amount < s.settings.MinimumPayout {
		return nil, s.reject(ctx, req, ActionValidationError, errutil.StatusBadRequest,
			fmt.Sprintf("Minimum payout amount is €%s", s.settings.MinimumPayout.StringFixed()))
	}

	accountID, err := s.accounts.LinkedAccount(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, s.reject(ctx, req, ActionAccountError, errutil.StatusUnprocessableEntity,
			"User has no Stripe Connect account")
	}

	if r := s.verifier.Verify(ctx, accountID); !r.Ready {
		return nil, s.reject(ctx, req, ActionAccountError, errutil.StatusUnprocessableEntity,
			"Stripe Connect account not ready: "+r.Reason)
	}

	w, err := s.wallet.Get(ctx, nil, req.UserID)
	if err != nil {
		return nil, err
	}
	switch {
	case w == nil:
		return nil, s.reject(ctx, req, ActionValidationError, errutil.StatusNotFound, "Wallet not found")
	case w.IsLocked:
		return nil, s.reject(ctx, req, ActionValidationError, errutil.StatusUnprocessableEntity, "Wallet is locked")
	case w.Balance < req.Amount:
		return nil, s.reject(ctx, req, ActionValidationError, errutil.StatusUnprocessableEntity, "Insufficient balance")
	}

	open, err := s.openPayout(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, s.reject(ctx, req, ActionValidationError, errutil.StatusConflict, "User already has an open payout")
	}

	now := s.now()
	p := &Payout{
		ID:                     s.node.Generate().String(),
		UserID:                 req.UserID,
		Amount:                 req.Amount,
		Currency:               s.settings.Currency,
		Status:                 StatusPending,
		IdempotencyKey:         gen.IdempotencyKey(req.UserID, now),
		MaxRetries:             s.settings.MaxRetries,
		StripeConnectAccountID: accountID,
		BatchID:                req.BatchID,
		Description:            fmt.Sprintf("Payout of €%s", req.Amount.StringFixed()),
		ScheduledDate:          &now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.payouts.Create(ctx, p); err != nil {
		if db.IsDuplicate(err) {
			return nil, s.reject(ctx, req, ActionValidationError, errutil.StatusConflict, "User already has an open payout")
		}
		log.Error("failed to create payout", zap.Error(err))
		return nil, err
	}

	s.audit.Write(ctx, Entry{
		PayoutID: p.ID,
		UserID:   p.UserID,
		Level:    LevelInfo,
		Action:   ActionInitiated,
		Message:  fmt.Sprintf("Payout initiated for €%s", p.Amount.StringFixed()),
		BatchID:  req.BatchID,
		Data: map[string]any{
			"amount":                    p.Amount.String(),
			"wallet_balance":            w.Balance.String(),
			"stripe_connect_account_id": accountID,
		},
	})
	payoutsCreated.Inc()

	return p, nil
}

func (s *Service) reject(ctx context.Context, req CreatePayoutRequest, action Action, code errutil.CoreStatus, msg string) error {
	s.audit.Write(ctx, Entry{
		UserID:       req.UserID,
		Level:        LevelWarning,
		Action:       action,
		Message:      msg,
		BatchID:      req.BatchID,
		ErrorCode:    strings.ToUpper(string(code)),
		ErrorMessage: msg,
		Data:         map[string]any{"amount": req.Amount.String()},
	})
	return errutil.New(code, msg)
}

func (s *Service) openPayout(ctx context.Context, userID string) (*Payout, error) {
	var p Payout
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []Status{StatusPending, StatusProcessing}).
		Limit(1).Find(&p)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &p, nil
}

type BatchStats struct {
	BatchID      string       `json:"batch_id,omitempty"`
	TotalPayouts int64        `json:"total_payouts"`
	TotalAmount  money.Amount `json:"total_amount"`
	SuccessCount int64        `json:"success_count"`
	FailedCount  int64        `json:"failed_count"`
	PendingCount int64        `json:"pending_count"`
	SkippedCount int64        `json:"skipped_count"`
}

type batchOutcome int

const (
	outcomeSkipped batchOutcome = iota
	outcomeQueued
	outcomeFailed
)

// InitiateScheduledPayouts pays out the full balance of every eligible
// wallet. Wallets that cannot be paid yet are skipped and logged. A cancelled
// context stops the batch and is returned with the partial stats.
func (s *Service) InitiateScheduledPayouts(ctx context.Context, batchID string) (*BatchStats, error) {
	start := s.now()
	if batchID == "" {
		batchID = gen.BatchID("manual", start)
	}
	log := logger(ctx).With(zap.String("batch_id", batchID))
	log.Info("starting scheduled payout batch")

	wallets, err := s.wallet.ListEligible(ctx, s.settings.MinimumPayout)
	if err != nil {
		log.Error("failed to scan wallets", zap.Error(err))
		return nil, err
	}
	log.Info("eligible wallets found",
		zap.Int("count", len(wallets)),
		zap.String("minimum", s.settings.MinimumPayout.String()),
	)

	stats := &BatchStats{BatchID: batchID}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.BatchConcurrency)
	for _, w := range wallets {
		w := w
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome := s.batchOne(gctx, batchID, w)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeQueued:
				stats.TotalPayouts++
				stats.TotalAmount += w.Balance
				stats.PendingCount++
			case outcomeFailed:
				stats.FailedCount++
			default:
				stats.SkippedCount++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Warn("scheduled payout batch interrupted",
			zap.Int64("total_payouts", stats.TotalPayouts),
			zap.Int("wallets", len(wallets)),
			zap.Error(err),
		)
		return stats, err
	}

	batchesRun.Inc()
	log.Info("scheduled payout batch completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int64("total_payouts", stats.TotalPayouts),
		zap.String("total_amount", stats.TotalAmount.String()),
		zap.Int64("failed", stats.FailedCount),
		zap.Int64("skipped", stats.SkippedCount),
	)
	return stats, nil
}

func (s *Service) batchOne(ctx context.Context, batchID string, w *wallet.Wallet) batchOutcome {
	log := logger(ctx).With(zap.String("batch_id", batchID), zap.String("user_id", w.UserID))

	accountID, err := s.accounts.LinkedAccount(ctx, w.UserID)
	if err != nil {
		log.Error("failed to look up linked account", zap.Error(err))
		return outcomeFailed
	}
	if accountID == "" {
		log.Warn("wallet has balance but no Stripe Connect account", zap.String("balance", w.Balance.String()))
		return outcomeSkipped
	}

	if r := s.verifier.Verify(ctx, accountID); !r.Ready {
		log.Warn("Stripe account not ready", zap.String("reason", r.Reason))
		return outcomeSkipped
	}

	p, err := s.CreatePayout(ctx, CreatePayoutRequest{UserID: w.UserID, Amount: w.Balance, BatchID: batchID})
	switch {
	case errutil.Is(err, errutil.StatusConflict), errutil.Is(err, errutil.StatusUnprocessableEntity):
		// open payout, or the wallet changed since the scan
		log.Info("wallet not eligible for payout", zap.Error(err))
		return outcomeSkipped
	case err != nil:
		log.Error("failed to create payout", zap.Error(err))
		return outcomeFailed
	}

	if err := s.enqueueProcess(ctx, p, 0, processTaskID(p.ID, p.RetryCount)); err != nil {
		// The row exists; make it due for the hourly sweep.
		log.Error("failed to enqueue payout, leaving it to the retry sweep", zap.String("payout_id", p.ID), zap.Error(err))
		now := s.now()
		if err := s.db.WithContext(ctx).Model(&Payout{}).Where("id = ?", p.ID).Update("next_retry_at", now).Error; err != nil {
			log.Error("failed to mark payout due", zap.String("payout_id", p.ID), zap.Error(err))
		}
	}
	return outcomeQueued
}
