package wallet

import (
	"context"
	"errors"
	"time"

	"creatorpay/pkg/config"
	"creatorpay/pkg/db/option"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/money"
	"creatorpay/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletLocked        = errors.New("wallet is locked")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	currency string

	wallets repository.Repository[Wallet]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	currency := "eur"
	if p.Config != nil && p.Config.Stripe.Currency != "" {
		currency = p.Config.Stripe.Currency
	}
	return &Service{
		db:       p.DB,
		node:     p.Node,
		currency: currency,
		wallets:  repository.ProvideStore[Wallet](p.DB),
	}
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func logFields(ctx context.Context, userID string) []zap.Field {
	span := trace.SpanFromContext(ctx)
	return []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("user_id", userID),
	}
}

// Credit adds amount to the user's balance and total earned, creating the
// wallet on first use. A locked wallet rejects the credit with ErrWalletLocked
// and nothing changes.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, userID string, amount money.Amount) (*Movement, error) {
	if !amount.IsPositive() {
		return nil, errutil.BadRequest("credit amount must be positive", nil)
	}

	db := s.conn(tx).WithContext(ctx)
	if err := s.ensure(db, userID).Error; err != nil {
		zap.L().With(logFields(ctx, userID)...).Error("failed to create wallet", zap.Error(err))
		return nil, err
	}

	res := creditQuery(db, userID, amount)
	if res.Error != nil {
		zap.L().With(logFields(ctx, userID)...).Error("failed to credit wallet", zap.Error(res.Error))
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		zap.L().With(logFields(ctx, userID)...).Warn("credit rejected, wallet is locked")
		return nil, ErrWalletLocked
	}

	w, err := s.wallets.WithTrx(db).FindOne(ctx, &Wallet{UserID: userID})
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrWalletNotFound
	}

	return &Movement{Wallet: w, BalanceBefore: w.Balance - amount, BalanceAfter: w.Balance}, nil
}

// creditQuery only touches unlocked wallets.
func creditQuery(db *gorm.DB, userID string, amount money.Amount) *gorm.DB {
	return db.Model(&Wallet{}).
		Where("user_id = ? AND is_locked = ?", userID, false).
		Updates(map[string]any{
			"balance":      gorm.Expr("balance + ?", amount),
			"total_earned": gorm.Expr("total_earned + ?", amount),
			"updated_at":   time.Now(),
		})
}

// ensure inserts an empty wallet unless the user already has one.
func (s *Service) ensure(db *gorm.DB, userID string) *gorm.DB {
	now := time.Now()
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&Wallet{
		ID:        s.node.Generate().String(),
		UserID:    userID,
		Currency:  s.currency,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Debit removes amount from the balance and adds it to total withdrawn, only
// when the balance covers it. The lock is not consulted: debits happen after
// money already left the platform.
func (s *Service) Debit(ctx context.Context, tx *gorm.DB, userID string, amount money.Amount) (*Movement, error) {
	if !amount.IsPositive() {
		return nil, errutil.BadRequest("debit amount must be positive", nil)
	}

	db := s.conn(tx).WithContext(ctx)

	res := db.Model(&Wallet{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]any{
			"balance":         gorm.Expr("balance - ?", amount),
			"total_withdrawn": gorm.Expr("total_withdrawn + ?", amount),
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		zap.L().With(logFields(ctx, userID)...).Error("failed to debit wallet", zap.Error(res.Error))
		return nil, res.Error
	}

	w, err := s.wallets.WithTrx(db).FindOne(ctx, &Wallet{UserID: userID})
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrWalletNotFound
	}
	if res.RowsAffected == 0 {
		return nil, ErrInsufficientBalance
	}

	return &Movement{Wallet: w, BalanceBefore: w.Balance + amount, BalanceAfter: w.Balance}, nil
}

// Get returns nil, nil when the user has no wallet yet.
func (s *Service) Get(ctx context.Context, tx *gorm.DB, userID string) (*Wallet, error) {
	return s.wallets.WithTrx(s.conn(tx)).FindOne(ctx, &Wallet{UserID: userID})
}

// Create makes an empty wallet for userID if none exists and returns it.
func (s *Service) Create(ctx context.Context, userID string) (*Wallet, error) {
	db := s.db.WithContext(ctx)
	if err := s.ensure(db, userID).Error; err != nil {
		return nil, err
	}
	return s.wallets.WithTrx(db).FindOne(ctx, &Wallet{UserID: userID})
}

func (s *Service) Lock(ctx context.Context, userID, reason string) (*Wallet, error) {
	now := time.Now()
	return s.setLock(ctx, userID, map[string]any{
		"is_locked":   true,
		"lock_reason": reason,
		"locked_at":   now,
		"updated_at":  now,
	})
}

func (s *Service) Unlock(ctx context.Context, userID string) (*Wallet, error) {
	return s.setLock(ctx, userID, map[string]any{
		"is_locked":   false,
		"lock_reason": "",
		"locked_at":   nil,
		"updated_at":  time.Now(),
	})
}

func (s *Service) setLock(ctx context.Context, userID string, fields map[string]any) (*Wallet, error) {
	res := s.db.WithContext(ctx).Model(&Wallet{}).Where("user_id = ?", userID).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errutil.NotFound("wallet not found", ErrWalletNotFound)
	}

	w, err := s.wallets.FindOne(ctx, &Wallet{UserID: userID})
	if err != nil {
		return nil, err
	}

	zap.L().With(logFields(ctx, userID)...).Info("wallet lock changed", zap.Bool("is_locked", w.IsLocked))
	return w, nil
}

// ListEligible returns unlocked wallets holding at least min, largest first.
func (s *Service) ListEligible(ctx context.Context, min money.Amount) ([]*Wallet, error) {
	return s.wallets.Find(ctx, &Wallet{},
		option.ApplyOperator(option.Condition{Field: "balance", Operator: option.GTE, Value: min}),
		option.ApplyOperator(option.Condition{Field: "is_locked", Operator: option.EQ, Value: false}),
		option.WithSortBy(option.QuerySortBy{SortBy: "balance", OrderBy: "desc", Allow: map[string]bool{"balance": true}}),
	)
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]*Wallet, int64, error) {
	q := s.db.WithContext(ctx).Model(&Wallet{})
	if req.Locked != nil {
		q = q.Where("is_locked = ?", *req.Locked)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var out []*Wallet
	if err := q.Order("balance DESC").Limit(limit).Offset(req.Offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
