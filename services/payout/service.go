package payout

import (
	"context"
	"time"

	"creatorpay/pkg/config"
	"creatorpay/pkg/provider"
	"creatorpay/pkg/repository"
	"creatorpay/pkg/task"
	"creatorpay/services/account"
	"creatorpay/services/transaction"
	"creatorpay/services/wallet"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service creates, settles and reports payouts. Creation and batching live
// in orchestrator.go, settlement in worker.go, operator actions and reports
// in admin.go.
type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	settings Settings

	provider provider.Provider
	// verifier may answer from cache; the worker always asks the provider.
	verifier provider.Verifier

	accounts     *account.Service
	wallet       *wallet.Service
	transactions *transaction.Service
	enqueuer     task.Enqueuer
	audit        *AuditLog

	payouts repository.Repository[Payout]

	now func() time.Time
}

type ServiceParams struct {
	fx.In
	DB           *gorm.DB
	Node         *snowflake.Node
	Config       *config.Config
	Provider     provider.Provider
	Verifier     provider.Verifier `optional:"true"`
	Accounts     *account.Service
	Wallet       *wallet.Service
	Transactions *transaction.Service
	Enqueuer     task.Enqueuer
}

func NewService(p ServiceParams) *Service {
	verifier := p.Verifier
	if verifier == nil {
		verifier = provider.Direct(p.Provider)
	}

	return &Service{
		db:           p.DB,
		node:         p.Node,
		settings:     NewSettings(p.Config),
		provider:     p.Provider,
		verifier:     verifier,
		accounts:     p.Accounts,
		wallet:       p.Wallet,
		transactions: p.Transactions,
		enqueuer:     p.Enqueuer,
		audit:        NewAuditLog(p.DB, p.Node),
		payouts:      repository.ProvideStore[Payout](p.DB),
		now:          time.Now,
	}
}

func (s *Service) Settings() Settings {
	return s.settings
}

func logger(ctx context.Context) *zap.Logger {
	span := trace.SpanFromContext(ctx)
	return zap.L().With(
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
	)
}
