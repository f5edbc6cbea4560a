package payout

import (
	"context"
	"fmt"
	"time"

	"creatorpay/pkg/errutil"
	"creatorpay/pkg/provider"
	"creatorpay/services/transaction"
	"creatorpay/services/wallet"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ProcessResult struct {
	Success        bool    `json:"success"`
	Payout         *Payout `json:"payout,omitempty"`
	Message        string  `json:"message"`
	RetryScheduled bool    `json:"retry_scheduled"`
	// Terminal is set when redelivering the task cannot change the outcome.
	Terminal bool `json:"terminal"`
}

// ProcessPayout settles one payout: claim, verify, transfer to the connected
// account, pay out to the bank, debit the wallet. It is safe to call any
// number of times for the same payout.
//
// The returned error is reserved for infrastructure failures the caller
// should retry; business failures are reported in the result.
func (s *Service) ProcessPayout(ctx context.Context, payoutID string) (*ProcessResult, error) {
	start := s.now()
	log := logger(ctx).With(zap.String("payout_id", payoutID))

	p, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	switch p.Status {
	case StatusPaid:
		s.audit.Write(ctx, Entry{
			PayoutID:         p.ID,
			UserID:           p.UserID,
			Level:            LevelInfo,
			Action:           ActionCompleted,
			Message:          "Payout already processed (idempotency check)",
			StripeTransferID: p.StripeTransferID,
			StripePayoutID:   p.StripePayoutID,
			BatchID:          p.BatchID,
		})
		return &ProcessResult{Success: true, Payout: p, Message: "Payout already processed"}, nil
	case StatusCancelled:
		return &ProcessResult{Payout: p, Message: "Payout was cancelled", Terminal: true}, nil
	case StatusFailed:
		return &ProcessResult{Payout: p, Message: "Payout failed permanently", Terminal: true}, nil
	case StatusProcessing:
		if !s.isStale(p) {
			return &ProcessResult{Payout: p, Message: "Payout is already being processed"}, nil
		}
		log.Warn("reclaiming stale processing payout", zap.Timep("processing_at", p.ProcessingAt))
	}

	claimed, err := s.claim(ctx, p)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return &ProcessResult{Payout: p, Message: "Payout is already being processed"}, nil
	}

	if err := s.settle(ctx, p, start); err != nil {
		settleDuration.Observe(time.Since(start).Seconds())
		return s.handleFailure(ctx, p, err)
	}

	settleDuration.Observe(time.Since(start).Seconds())
	payoutsProcessed.WithLabelValues("paid").Inc()
	return &ProcessResult{Success: true, Payout: p, Message: "Payout completed successfully"}, nil
}

func (s *Service) isStale(p *Payout) bool {
	return p.ProcessingAt == nil || p.ProcessingAt.Before(s.now().Add(-s.settings.StaleProcessingAfter))
}

// claim moves the payout to processing. Only one worker wins.
func (s *Service) claim(ctx context.Context, p *Payout) (bool, error) {
	now := s.now()
	cutoff := now.Add(-s.settings.StaleProcessingAfter)

	res := s.db.WithContext(ctx).Model(&Payout{}).
		Where("id = ? AND (status = ? OR (status = ? AND (processing_at IS NULL OR processing_at < ?)))",
			p.ID, StatusPending, StatusProcessing, cutoff).
		Updates(map[string]any{
			"status":        StatusProcessing,
			"processing_at": now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	p.Status = StatusProcessing
	p.ProcessingAt = &now

	s.audit.Write(ctx, Entry{
		PayoutID:     p.ID,
		UserID:       p.UserID,
		Level:        LevelInfo,
		Action:       ActionProcessing,
		Message:      fmt.Sprintf("Processing payout (attempt %d/%d)", p.RetryCount+1, p.MaxRetries),
		RetryAttempt: p.RetryCount,
		BatchID:      p.BatchID,
		Data:         map[string]any{"amount": p.Amount.String()},
	})
	return true, nil
}

func (s *Service) settle(ctx context.Context, p *Payout, start time.Time) error {
	if r := provider.Direct(s.provider).Verify(ctx, p.StripeConnectAccountID); !r.Ready {
		f := &failure{code: "ACCOUNT_NOT_READY", message: "Stripe Connect account not ready: " + r.Reason}
		s.audit.Write(ctx, Entry{
			PayoutID:     p.ID,
			UserID:       p.UserID,
			Level:        LevelError,
			Action:       ActionAccountError,
			Message:      f.message,
			ErrorCode:    f.code,
			ErrorMessage: r.Reason,
			RetryAttempt: p.RetryCount,
			BatchID:      p.BatchID,
		})
		return f
	}

	w, err := s.wallet.Get(ctx, nil, p.UserID)
	if err != nil {
		return err
	}
	switch {
	case w == nil:
		return &failure{code: "WALLET_NOT_FOUND", message: "Wallet not found"}
	case w.IsLocked:
		return &failure{code: "WALLET_LOCKED", message: "Wallet is locked"}
	case w.Balance < p.Amount:
		return &failure{
			code:    "INSUFFICIENT_BALANCE",
			message: fmt.Sprintf("Insufficient balance: €%s available, €%s required", w.Balance.StringFixed(), p.Amount.StringFixed()),
		}
	}

	if err := s.transfer(ctx, p); err != nil {
		return err
	}
	if err := s.payOut(ctx, p); err != nil {
		return err
	}
	return s.finalize(ctx, p, start)
}

// transfer is stage A: platform balance to the connected account.
func (s *Service) transfer(ctx context.Context, p *Payout) error {
	if p.StripeTransferID != "" {
		s.audit.Write(ctx, Entry{
			PayoutID:         p.ID,
			UserID:           p.UserID,
			Level:            LevelInfo,
			Action:           ActionStripeSuccess,
			Message:          "Transfer already recorded, skipping",
			StripeTransferID: p.StripeTransferID,
			RetryAttempt:     p.RetryCount,
			BatchID:          p.BatchID,
		})
		return nil
	}

	s.audit.Write(ctx, Entry{
		PayoutID:     p.ID,
		UserID:       p.UserID,
		Level:        LevelInfo,
		Action:       ActionStripeCall,
		Message:      fmt.Sprintf("Creating transfer of €%s to %s", p.Amount.StringFixed(), p.StripeConnectAccountID),
		RetryAttempt: p.RetryCount,
		BatchID:      p.BatchID,
	})

	res, err := s.provider.Transfer(ctx, provider.TransferRequest{
		Destination:    p.StripeConnectAccountID,
		Amount:         p.Amount.MinorUnits(),
		Currency:       p.Currency,
		Description:    s.describe(p),
		Metadata:       s.providerMetadata(p),
		IdempotencyKey: p.IdempotencyKey + "-transfer",
	})
	if err != nil {
		s.audit.Write(ctx, Entry{
			PayoutID:     p.ID,
			UserID:       p.UserID,
			Level:        LevelError,
			Action:       ActionStripeError,
			Message:      "Transfer failed",
			RetryAttempt: p.RetryCount,
			BatchID:      p.BatchID,
		}.withError(err))
		return err
	}

	if err := s.setReference(ctx, p.ID, "stripe_transfer_id", res.ID); err != nil {
		return err
	}
	p.StripeTransferID = res.ID

	s.audit.Write(ctx, Entry{
		PayoutID:         p.ID,
		UserID:           p.UserID,
		Level:            LevelSuccess,
		Action:           ActionStripeSuccess,
		Message:          "Transfer created",
		StripeTransferID: res.ID,
		RetryAttempt:     p.RetryCount,
		BatchID:          p.BatchID,
	})
	return nil
}

// payOut is stage B: connected account to the user's bank.
func (s *Service) payOut(ctx context.Context, p *Payout) error {
	if p.StripePayoutID != "" {
		s.audit.Write(ctx, Entry{
			PayoutID:         p.ID,
			UserID:           p.UserID,
			Level:            LevelInfo,
			Action:           ActionStripeSuccess,
			Message:          "Payout already recorded, skipping",
			StripeTransferID: p.StripeTransferID,
			StripePayoutID:   p.StripePayoutID,
			RetryAttempt:     p.RetryCount,
			BatchID:          p.BatchID,
		})
		return nil
	}

	s.audit.Write(ctx, Entry{
		PayoutID:         p.ID,
		UserID:           p.UserID,
		Level:            LevelInfo,
		Action:           ActionStripeCall,
		Message:          "Creating payout on connected account",
		StripeTransferID: p.StripeTransferID,
		RetryAttempt:     p.RetryCount,
		BatchID:          p.BatchID,
	})

	res, err := s.provider.CreatePayout(ctx, provider.PayoutRequest{
		AccountID:      p.StripeConnectAccountID,
		Amount:         p.Amount.MinorUnits(),
		Currency:       p.Currency,
		Description:    s.describe(p),
		Metadata:       s.providerMetadata(p),
		IdempotencyKey: p.IdempotencyKey + "-payout",
	})
	if err != nil {
		s.audit.Write(ctx, Entry{
			PayoutID:         p.ID,
			UserID:           p.UserID,
			Level:            LevelError,
			Action:           ActionStripeError,
			Message:          "Partial state: transfer succeeded, payout not yet created",
			StripeTransferID: p.StripeTransferID,
			RetryAttempt:     p.RetryCount,
			BatchID:          p.BatchID,
		}.withError(err))
		return err
	}

	if err := s.setReference(ctx, p.ID, "stripe_payout_id", res.ID); err != nil {
		return err
	}
	p.StripePayoutID = res.ID

	s.audit.Write(ctx, Entry{
		PayoutID:         p.ID,
		UserID:           p.UserID,
		Level:            LevelSuccess,
		Action:           ActionStripeSuccess,
		Message:          fmt.Sprintf("Payout created (status %s)", res.Status),
		StripeTransferID: p.StripeTransferID,
		StripePayoutID:   res.ID,
		RetryAttempt:     p.RetryCount,
		BatchID:          p.BatchID,
	})
	return nil
}

func (s *Service) setReference(ctx context.Context, payoutID, column, ref string) error {
	err := s.db.WithContext(ctx).Model(&Payout{}).
		Where("id = ?", payoutID).
		Updates(map[string]any{column: ref, "updated_at": s.now()}).Error
	if err != nil {
		logger(ctx).Error("failed to persist provider reference",
			zap.String("payout_id", payoutID),
			zap.String("column", column),
			zap.String("reference", ref),
			zap.Error(err),
		)
	}
	return err
}

func (s *Service) describe(p *Payout) string {
	if s.settings.Description != "" {
		return s.settings.Description
	}
	return p.Description
}

func (s *Service) providerMetadata(p *Payout) map[string]string {
	md := map[string]string{
		"payout_id": p.ID,
		"user_id":   p.UserID,
	}
	if p.BatchID != "" {
		md["batch_id"] = p.BatchID
	}
	return md
}

// finalize debits the wallet, records the transaction and marks the payout
// paid in one database transaction.
func (s *Service) finalize(ctx context.Context, p *Payout, start time.Time) error {
	now := s.now()

	var (
		mv  *wallet.Movement
		txn *transaction.Transaction
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		mv, err = s.wallet.Debit(ctx, tx, p.UserID, p.Amount)
		if err != nil {
			return err
		}

		txn, err = s.transactions.Record(ctx, tx, transaction.RecordParams{
			UserID:        p.UserID,
			Type:          transaction.TypePayout,
			Amount:        p.Amount,
			BalanceBefore: mv.BalanceBefore,
			BalanceAfter:  mv.BalanceAfter,
			Status:        transaction.StatusCompleted,
			PaymentMethod: transaction.MethodStripeConnect,
			ReferenceID:   p.ID,
			Description:   p.Description,
			Metadata: map[string]any{
				"payout_id":          p.ID,
				"stripe_transfer_id": p.StripeTransferID,
				"stripe_payout_id":   p.StripePayoutID,
				"batch_id":           p.BatchID,
			},
		})
		if err != nil {
			return err
		}

		res := tx.Model(&Payout{}).
			Where("id = ? AND status = ?", p.ID, StatusProcessing).
			Updates(map[string]any{
				"status":        StatusPaid,
				"paid_at":       now,
				"next_retry_at": nil,
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict("payout is no longer processing", nil)
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.Status = StatusPaid
	p.PaidAt = &now
	p.NextRetryAt = nil

	s.audit.Write(ctx, Entry{
		PayoutID: p.ID,
		UserID:   p.UserID,
		Level:    LevelInfo,
		Action:   ActionBalanceUpdate,
		Message:  fmt.Sprintf("Wallet debited €%s", p.Amount.StringFixed()),
		BatchID:  p.BatchID,
		Data: map[string]any{
			"balance_before": mv.BalanceBefore.String(),
			"balance_after":  mv.BalanceAfter.String(),
		},
	})
	s.audit.Write(ctx, Entry{
		PayoutID: p.ID,
		UserID:   p.UserID,
		Level:    LevelInfo,
		Action:   ActionTransactionCreated,
		Message:  "Payout transaction recorded",
		BatchID:  p.BatchID,
		Data: map[string]any{
			"transaction_id":   txn.ID,
			"transaction_code": txn.TransactionCode,
		},
	})
	s.audit.Write(ctx, Entry{
		PayoutID:         p.ID,
		UserID:           p.UserID,
		Level:            LevelSuccess,
		Action:           ActionCompleted,
		Message:          fmt.Sprintf("Payout of €%s completed", p.Amount.StringFixed()),
		StripeTransferID: p.StripeTransferID,
		StripePayoutID:   p.StripePayoutID,
		RetryAttempt:     p.RetryCount,
		BatchID:          p.BatchID,
		DurationMs:       s.now().Sub(start).Milliseconds(),
	})
	return nil
}

// handleFailure records the failure and either schedules the next attempt or
// fails the payout for good. Only a database error here is returned.
func (s *Service) handleFailure(ctx context.Context, p *Payout, cause error) (*ProcessResult, error) {
	log := logger(ctx).With(zap.String("payout_id", p.ID), zap.String("user_id", p.UserID))
	d := describeError(cause)

	s.audit.Write(ctx, Entry{
		PayoutID:         p.ID,
		UserID:           p.UserID,
		Level:            LevelError,
		Action:           ActionFailed,
		Message:          "Payout attempt failed: " + d.Message,
		StripeTransferID: p.StripeTransferID,
		StripePayoutID:   p.StripePayoutID,
		RetryAttempt:     p.RetryCount + 1,
		BatchID:          p.BatchID,
	}.withError(cause))

	now := s.now()
	retry := p.RetryCount + 1
	fields := map[string]any{
		"retry_count":     retry,
		"failure_reason":  d.Message,
		"failure_details": jsonOf(map[string]any{"code": d.Code, "message": d.Message, "chain": d.Chain, "request_id": d.RequestID, "attempt": retry}),
		"updated_at":      now,
	}

	scheduled := retry < p.MaxRetries
	var delay time.Duration
	if scheduled {
		delay = s.settings.RetryDelay(retry)
		next := now.Add(delay)
		fields["status"] = StatusPending
		fields["next_retry_at"] = next
		p.NextRetryAt = &next
		p.Status = StatusPending
	} else {
		fields["status"] = StatusFailed
		fields["failed_at"] = now
		fields["next_retry_at"] = nil
		p.FailedAt = &now
		p.NextRetryAt = nil
		p.Status = StatusFailed
	}

	res := s.db.WithContext(ctx).Model(&Payout{}).
		Where("id = ? AND status = ?", p.ID, StatusProcessing).
		Updates(fields)
	if res.Error != nil {
		log.Error("failed to record payout failure", zap.Error(res.Error), zap.NamedError("cause", cause))
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("payout %s left processing state during settlement: %w", p.ID, cause)
	}
	p.RetryCount = retry
	p.FailureReason = d.Message

	if !scheduled {
		payoutsProcessed.WithLabelValues("failed").Inc()
		s.audit.Write(ctx, Entry{
			PayoutID:     p.ID,
			UserID:       p.UserID,
			Level:        LevelError,
			Action:       ActionFailed,
			Message:      fmt.Sprintf("Payout failed permanently after %d attempts", retry),
			ErrorCode:    d.Code,
			ErrorMessage: d.Message,
			RetryAttempt: retry,
			BatchID:      p.BatchID,
		})
		return &ProcessResult{Payout: p, Message: "Payout failed permanently: " + d.Message, Terminal: true}, nil
	}

	payoutsProcessed.WithLabelValues("retry").Inc()
	s.audit.Write(ctx, Entry{
		PayoutID:     p.ID,
		UserID:       p.UserID,
		Level:        LevelWarning,
		Action:       ActionRetryScheduled,
		Message:      fmt.Sprintf("Retry scheduled for %s (attempt %d/%d)", p.NextRetryAt.UTC().Format(time.RFC3339), retry, p.MaxRetries),
		RetryAttempt: retry,
		BatchID:      p.BatchID,
		Data:         map[string]any{"delay_seconds": int64(delay.Seconds())},
	})

	if err := s.enqueueProcess(ctx, p, delay, processTaskID(p.ID, retry)); err != nil {
		// next_retry_at is set, so the hourly sweep still finds it.
		log.Error("failed to enqueue payout retry", zap.Error(err))
	}

	return &ProcessResult{
		Payout:         p,
		Message:        fmt.Sprintf("Payout failed, retry scheduled (attempt %d/%d)", retry, p.MaxRetries),
		RetryScheduled: true,
	}, nil
}

// CancelPayout cancels a payout that has not started.
func (s *Service) CancelPayout(ctx context.Context, payoutID, actor string) (*Payout, error) {
	p, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&Payout{}).
		Where("id = ? AND status = ?", payoutID, StatusPending).
		Updates(map[string]any{
			"status":        StatusCancelled,
			"cancelled_at":  now,
			"next_retry_at": nil,
			"updated_at":    now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		current, err := s.Get(ctx, payoutID)
		if err != nil {
			return nil, err
		}
		return nil, errutil.Conflict(fmt.Sprintf("Cannot cancel payout with status: %s", current.Status), nil)
	}

	p.Status = StatusCancelled
	p.CancelledAt = &now
	p.NextRetryAt = nil

	s.audit.Write(ctx, Entry{
		PayoutID: p.ID,
		UserID:   p.UserID,
		Level:    LevelWarning,
		Action:   ActionCancelled,
		Message:  "Payout cancelled",
		BatchID:  p.BatchID,
		Data:     map[string]any{"cancelled_by": actor},
	})
	payoutsProcessed.WithLabelValues("cancelled").Inc()
	return p, nil
}
