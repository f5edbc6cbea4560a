package account

import (
	"context"
	"strings"
	"time"

	"creatorpay/pkg/errutil"
	"creatorpay/pkg/provider"
	"creatorpay/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var Module = fx.Module("account.service",
	fx.Provide(NewService),
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	provider provider.Provider
	accounts repository.Repository[CreatorAccount]
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Provider provider.Provider `optional:"true"`
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		provider: p.Provider,
		accounts: repository.ProvideStore[CreatorAccount](p.DB),
	}
}

// LinkedAccount returns the user's connected account id, or "" when the user
// has not linked one.
func (s *Service) LinkedAccount(ctx context.Context, userID string) (string, error) {
	acct, err := s.accounts.FindOne(ctx, &CreatorAccount{UserID: userID})
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", nil
	}
	return acct.StripeConnectAccountID, nil
}

// Link sets or replaces the connected account of a user.
func (s *Service) Link(ctx context.Context, userID, accountID string) (*CreatorAccount, error) {
	accountID = strings.TrimSpace(accountID)
	if userID == "" || accountID == "" {
		return nil, errutil.BadRequest("user_id and stripe_connect_account_id are required", nil)
	}
	if !strings.HasPrefix(accountID, "acct_") {
		return nil, errutil.BadRequest("invalid Stripe Connect account id", nil)
	}

	now := time.Now()
	row := &CreatorAccount{
		ID:                     s.node.Generate().String(),
		UserID:                 userID,
		StripeConnectAccountID: accountID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"stripe_connect_account_id", "updated_at"}),
	}).Create(row).Error; err != nil {
		zap.L().Error("failed to link account", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	zap.L().Info("stripe connect account linked", zap.String("user_id", userID), zap.String("account_id", accountID))
	return s.accounts.FindOne(ctx, &CreatorAccount{UserID: userID})
}

// Balance returns the provider-side balance of the user's connected account.
func (s *Service) Balance(ctx context.Context, userID string) (*provider.Balance, error) {
	accountID, err := s.LinkedAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, errutil.NotFound("User has no Stripe Connect account", nil)
	}
	return s.balance(ctx, accountID)
}

// PlatformBalance returns the balance transfers to creators are drawn from.
func (s *Service) PlatformBalance(ctx context.Context) (*provider.Balance, error) {
	return s.balance(ctx, "")
}

func (s *Service) balance(ctx context.Context, accountID string) (*provider.Balance, error) {
	if s.provider == nil {
		return nil, errutil.New(errutil.StatusServiceUnavailable, "Payment provider is not configured")
	}

	b, err := s.provider.GetBalance(ctx, accountID)
	if err != nil {
		zap.L().Error("failed to fetch balance", zap.String("account_id", accountID), zap.Error(err))
		return nil, errutil.BadGateway("Failed to fetch balance from payment provider", err)
	}
	return b, nil
}
