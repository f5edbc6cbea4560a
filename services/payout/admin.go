package payout

import (
	"context"
	"fmt"
	"time"

	"creatorpay/pkg/db"
	"creatorpay/pkg/db/option"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/gen"
	"creatorpay/pkg/money"
	"creatorpay/pkg/task"
	"creatorpay/pkg/taskname"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Service) Get(ctx context.Context, payoutID string) (*Payout, error) {
	p, err := s.payouts.FindOne(ctx, &Payout{ID: payoutID})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errutil.NotFound("Payout not found", nil)
	}
	return p, nil
}

// GetForUser returns the payout only when userID owns it.
func (s *Service) GetForUser(ctx context.Context, payoutID, userID string) (*Payout, error) {
	p, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, errutil.Forbidden("You can only view your own payouts", nil)
	}
	return p, nil
}

func (s *Service) Logs(ctx context.Context, payoutID string) ([]*PayoutLog, error) {
	return s.audit.ForPayout(ctx, payoutID)
}

func (s *Service) ListForUser(ctx context.Context, userID string, limit, offset int) ([]*Payout, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.payouts.Find(ctx, &Payout{UserID: userID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(limit),
		option.WithOffset(offset),
	)
}

func (s *Service) ListBatch(ctx context.Context, batchID string) ([]*Payout, error) {
	return s.payouts.Find(ctx, &Payout{BatchID: batchID},
		option.WithSortBy(option.QuerySortBy{SortBy: "amount", OrderBy: "desc", Allow: map[string]bool{"amount": true}}))
}

type ListRequest struct {
	Status Status
	Limit  int
	Offset int
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]*Payout, int64, error) {
	if req.Status != "" && !req.Status.IsValid() {
		return nil, 0, errutil.BadRequest("invalid payout status: "+req.Status.String(), nil)
	}

	q := s.db.WithContext(ctx).Model(&Payout{})
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var out []*Payout
	if err := q.Order("created_at DESC").Limit(limit).Offset(req.Offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// BatchStats aggregates the payouts of one batch. Skipped wallets have no
// rows, so SkippedCount is only known to the run that produced the batch.
func (s *Service) BatchStats(ctx context.Context, batchID string) (*BatchStats, error) {
	var row struct {
		Total   int64
		Amount  int64
		Paid    int64
		Failed  int64
		Pending int64
	}
	err := s.db.WithContext(ctx).Model(&Payout{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(amount), 0) AS amount,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS paid,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed,
			COALESCE(SUM(CASE WHEN status IN ? THEN 1 ELSE 0 END), 0) AS pending`,
			StatusPaid, StatusFailed, []Status{StatusPending, StatusProcessing}).
		Where("batch_id = ?", batchID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Total == 0 {
		return nil, errutil.NotFound("Batch not found", nil)
	}

	return &BatchStats{
		BatchID:      batchID,
		TotalPayouts: row.Total,
		TotalAmount:  money.Amount(row.Amount),
		SuccessCount: row.Paid,
		FailedCount:  row.Failed,
		PendingCount: row.Pending,
	}, nil
}

type PeriodStats struct {
	Count       int64        `json:"count"`
	PaidCount   int64        `json:"paid_count"`
	TotalAmount money.Amount `json:"total_amount"`
	PaidAmount  money.Amount `json:"paid_amount"`
}

type Stats struct {
	TotalPayouts    int64            `json:"total_payouts"`
	ByStatus        map[Status]int64 `json:"by_status"`
	TotalPaid       money.Amount     `json:"total_paid"`
	AveragePaid     money.Amount     `json:"average_paid"`
	SuccessRate     float64          `json:"success_rate"`
	Last24Hours     PeriodStats      `json:"last_24_hours"`
	Last7Days       PeriodStats      `json:"last_7_days"`
	Last30Days      PeriodStats      `json:"last_30_days"`
	PendingRetries  int64            `json:"pending_retries"`
	StaleProcessing int64            `json:"stale_processing"`
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var rows []struct {
		Status Status
		Count  int64
		Amount int64
	}
	err := s.db.WithContext(ctx).Model(&Payout{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := &Stats{ByStatus: make(map[Status]int64, len(rows))}
	for _, r := range rows {
		out.ByStatus[r.Status] = r.Count
		out.TotalPayouts += r.Count
		if r.Status == StatusPaid {
			out.TotalPaid = money.Amount(r.Amount)
		}
	}

	paid, failed := out.ByStatus[StatusPaid], out.ByStatus[StatusFailed]
	if paid > 0 {
		out.AveragePaid = money.Amount(int64(out.TotalPaid) / paid)
	}
	if paid+failed > 0 {
		out.SuccessRate = decimal.NewFromInt(paid).
			Div(decimal.NewFromInt(paid + failed)).
			Mul(decimal.NewFromInt(100)).
			Round(2).
			InexactFloat64()
	}

	now := s.now()
	for _, p := range []struct {
		since time.Time
		dst   *PeriodStats
	}{
		{now.Add(-24 * time.Hour), &out.Last24Hours},
		{now.AddDate(0, 0, -7), &out.Last7Days},
		{now.AddDate(0, 0, -30), &out.Last30Days},
	} {
		if err := s.periodStats(ctx, p.since, p.dst); err != nil {
			return nil, err
		}
	}

	if err := s.db.WithContext(ctx).Model(&Payout{}).
		Where("status = ? AND next_retry_at IS NOT NULL", StatusPending).
		Count(&out.PendingRetries).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&Payout{}).
		Where("status = ? AND processing_at < ?", StatusProcessing, now.Add(-s.settings.StaleProcessingAfter)).
		Count(&out.StaleProcessing).Error; err != nil {
		return nil, err
	}

	return out, nil
}

func (s *Service) periodStats(ctx context.Context, since time.Time, dst *PeriodStats) error {
	var row struct {
		Count      int64
		PaidCount  int64
		Amount     int64
		PaidAmount int64
	}
	err := s.db.WithContext(ctx).Model(&Payout{}).
		Select(`COUNT(*) AS count,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS paid_count,
			COALESCE(SUM(amount), 0) AS amount,
			COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS paid_amount`,
			StatusPaid, StatusPaid).
		Where("created_at >= ?", since).
		Scan(&row).Error
	if err != nil {
		return err
	}

	*dst = PeriodStats{
		Count:       row.Count,
		PaidCount:   row.PaidCount,
		TotalAmount: money.Amount(row.Amount),
		PaidAmount:  money.Amount(row.PaidAmount),
	}
	return nil
}

// ForceRetry puts a failed payout back to pending with a fresh retry budget
// and enqueues it.
func (s *Service) ForceRetry(ctx context.Context, payoutID, actor string) (*Payout, error) {
	p, err := s.Get(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&Payout{}).
		Where("id = ? AND status = ?", payoutID, StatusFailed).
		Updates(map[string]any{
			"status":         StatusPending,
			"retry_count":    0,
			"next_retry_at":  nil,
			"failed_at":      nil,
			"failure_reason": "",
			"updated_at":     now,
		})
	if res.Error != nil {
		if db.IsDuplicate(res.Error) {
			return nil, errutil.Conflict("User already has an open payout", nil)
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.Conflict(fmt.Sprintf("Cannot retry payout with status: %s", p.Status), nil)
	}

	p.Status = StatusPending
	p.RetryCount = 0
	p.NextRetryAt = nil
	p.FailedAt = nil

	s.audit.Write(ctx, Entry{
		PayoutID: p.ID,
		UserID:   p.UserID,
		Level:    LevelInfo,
		Action:   ActionRetryAttempted,
		Message:  "Payout manually retried",
		BatchID:  p.BatchID,
		Data:     map[string]any{"retried_by": actor, "previous_failure": p.FailureReason},
	})
	p.FailureReason = ""

	if err := s.enqueueProcess(ctx, p, 0, forceTaskID(p.ID, now)); err != nil {
		if err := s.db.WithContext(ctx).Model(&Payout{}).Where("id = ?", p.ID).Update("next_retry_at", now).Error; err != nil {
			logger(ctx).Error("failed to mark payout due", zap.String("payout_id", p.ID), zap.Error(err))
		}
		return nil, err
	}
	return p, nil
}

// RetryDuePayouts enqueues pending payouts whose retry time has come, plus
// processing claims abandoned by a crashed worker. It returns how many were
// enqueued.
func (s *Service) RetryDuePayouts(ctx context.Context) (int, error) {
	log := logger(ctx)
	now := s.now()

	var due []*Payout
	err := s.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ? AND retry_count < max_retries", StatusPending, now).
		Or("status = ? AND processing_at < ?", StatusProcessing, now.Add(-s.settings.StaleProcessingAfter)).
		Order("created_at").
		Limit(500).
		Find(&due).Error
	if err != nil {
		log.Error("failed to query due payouts", zap.Error(err))
		return 0, err
	}

	hour := now.UTC().Format("2006010215")
	enqueued := 0
	for _, p := range due {
		s.audit.Write(ctx, Entry{
			PayoutID:     p.ID,
			UserID:       p.UserID,
			Level:        LevelInfo,
			Action:       ActionRetryAttempted,
			Message:      fmt.Sprintf("Retrying payout (attempt %d)", p.RetryCount+1),
			RetryAttempt: p.RetryCount,
			BatchID:      p.BatchID,
			Data:         map[string]any{"status": p.Status.String()},
		})

		taskID := processTaskID(p.ID, p.RetryCount) + ":sweep:" + hour
		if err := s.enqueueProcess(ctx, p, 0, taskID); err != nil {
			log.Error("failed to enqueue due payout", zap.String("payout_id", p.ID), zap.Error(err))
			continue
		}
		enqueued++
	}

	if len(due) > 0 {
		log.Info("retry sweep finished", zap.Int("due", len(due)), zap.Int("enqueued", enqueued))
	}
	return enqueued, nil
}

// TriggerBatch enqueues one batch run and returns its id. Weekly runs are
// keyed by date so a second scheduler cannot start the same week twice.
func (s *Service) TriggerBatch(ctx context.Context, kind string) (string, error) {
	now := s.now()
	batchID := gen.BatchID(kind, now)

	taskID := batchID
	if kind == "weekly" {
		taskID = fmt.Sprintf("%s:weekly:%s", taskname.PayoutBatchRun, now.Format("2006-01-02"))
	}

	_, err := s.enqueuer.Enqueue(ctx, NewBatchTask(batchID),
		asynq.Queue(task.QueueCritical),
		asynq.TaskID(taskID),
		asynq.MaxRetry(0),
	)
	if err != nil {
		logger(ctx).Error("failed to enqueue payout batch", zap.String("batch_id", batchID), zap.Error(err))
		return "", err
	}

	logger(ctx).Info("payout batch enqueued", zap.String("batch_id", batchID), zap.String("kind", kind))
	return batchID, nil
}
