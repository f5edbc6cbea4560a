package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"creatorpay/pkg/db/option"
	"creatorpay/pkg/db/pagination"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/gen"
	"creatorpay/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db           *gorm.DB
	node         *snowflake.Node
	transactions repository.Repository[Transaction]
}

type Params struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		node:         p.Node,
		transactions: repository.ProvideStore[Transaction](p.DB),
	}
}

// Record writes a transaction row. Pass the surrounding database transaction
// as tx so the record commits or rolls back with the balance change it
// describes.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, p RecordParams) (*Transaction, error) {
	if !p.Type.IsValid() {
		return nil, errutil.BadRequest(fmt.Sprintf("invalid transaction type: %s", p.Type), nil)
	}
	if p.Status == "" {
		p.Status = StatusCompleted
	}
	if !p.Status.IsValid() {
		return nil, errutil.BadRequest(fmt.Sprintf("invalid transaction status: %s", p.Status), nil)
	}
	if p.PaymentMethod != "" && !p.PaymentMethod.IsValid() {
		return nil, errutil.BadRequest(fmt.Sprintf("invalid payment method: %s", p.PaymentMethod), nil)
	}

	now := time.Now()
	row := &Transaction{
		ID:              s.node.Generate().String(),
		TransactionCode: gen.TransactionCode(now),
		UserID:          p.UserID,
		Type:            p.Type,
		Amount:          p.Amount,
		BalanceBefore:   p.BalanceBefore,
		BalanceAfter:    p.BalanceAfter,
		Status:          p.Status,
		PaymentMethod:   p.PaymentMethod,
		ReferenceID:     p.ReferenceID,
		Description:     p.Description,
		Metadata:        toJSON(p.Metadata),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.transactions.WithTrx(tx).Create(ctx, row); err != nil {
		zap.L().Error("failed to record transaction",
			zap.String("user_id", p.UserID),
			zap.String("type", p.Type.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	return row, nil
}

type ListRequest struct {
	UserID string
	Type   Type
	pagination.Pagination
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]*Transaction, *pagination.PageInfo, error) {
	opts := []option.QueryOption{option.ApplyPagination(req.Pagination)}
	if req.Type != "" {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "type", Operator: option.EQ, Value: req.Type}))
	}

	rows, err := s.transactions.Find(ctx, &Transaction{UserID: req.UserID}, opts...)
	if err != nil {
		return nil, nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	page, info := pagination.BuildCursorPageInfo(rows, limit, func(t *Transaction) pagination.Cursor {
		return pagination.NewCursor(t.CreatedAt, t.ID)
	})
	return page, info, nil
}

// GetByReference returns nil, nil when no such transaction was recorded.
func (s *Service) GetByReference(ctx context.Context, tx *gorm.DB, userID, referenceID string, typ Type) (*Transaction, error) {
	return s.transactions.WithTrx(tx).FindOne(ctx, &Transaction{UserID: userID, ReferenceID: referenceID, Type: typ})
}

func toJSON(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return datatypes.JSON([]byte("{}"))
	}
	b, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(b)
}
