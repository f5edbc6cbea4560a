package payout

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"creatorpay/pkg/db/option"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/provider"
	"creatorpay/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entry is what callers hand to the audit log.
type Entry struct {
	PayoutID         string
	UserID           string
	Level            Level
	Action           Action
	Message          string
	Data             map[string]any
	ErrorCode        string
	ErrorMessage     string
	ErrorStack       string
	StripeTransferID string
	StripePayoutID   string
	StripeRequestID  string
	RetryAttempt     int
	BatchID          string
	DurationMs       int64
}

// withError fills the error columns from err.
func (e Entry) withError(err error) Entry {
	d := describeError(err)
	e.ErrorCode = d.Code
	e.ErrorMessage = d.Message
	e.ErrorStack = d.Chain
	if d.RequestID != "" {
		e.StripeRequestID = d.RequestID
	}
	return e
}

// AuditLog is the append-only payout_logs store. It has no update or delete.
type AuditLog struct {
	node *snowflake.Node
	logs repository.Repository[PayoutLog]
}

func NewAuditLog(db *gorm.DB, node *snowflake.Node) *AuditLog {
	return &AuditLog{
		node: node,
		logs: repository.ProvideStore[PayoutLog](db),
	}
}

// Write persists e and mirrors it to the application log. A failed write is
// logged and swallowed so it never changes the outcome of a money operation.
func (a *AuditLog) Write(ctx context.Context, e Entry) {
	span := trace.SpanFromContext(ctx)
	fields := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("payout_id", e.PayoutID),
		zap.String("user_id", e.UserID),
		zap.String("action", e.Action.String()),
	}
	if e.ErrorCode != "" {
		fields = append(fields, zap.String("error_code", e.ErrorCode), zap.String("error_message", e.ErrorMessage))
	}
	if e.RetryAttempt > 0 {
		fields = append(fields, zap.Int("retry_attempt", e.RetryAttempt))
	}

	msg := "[Payout " + e.PayoutID + "] " + e.Message
	switch e.Level {
	case LevelError:
		zap.L().Error(msg, fields...)
	case LevelWarning:
		zap.L().Warn(msg, fields...)
	case LevelSuccess:
		zap.L().Info(msg, fields...)
	default:
		zap.L().Debug(msg, fields...)
	}

	if !e.Level.IsValid() || !e.Action.IsValid() {
		zap.L().Error("refusing audit entry with unknown level or action",
			zap.String("level", e.Level.String()), zap.String("action", e.Action.String()))
		return
	}

	row := &PayoutLog{
		ID:               a.node.Generate().String(),
		PayoutID:         e.PayoutID,
		UserID:           e.UserID,
		Level:            e.Level,
		Action:           e.Action,
		Message:          e.Message,
		Data:             jsonOf(e.Data),
		ErrorCode:        e.ErrorCode,
		ErrorMessage:     e.ErrorMessage,
		ErrorStack:       e.ErrorStack,
		StripeTransferID: e.StripeTransferID,
		StripePayoutID:   e.StripePayoutID,
		StripeRequestID:  e.StripeRequestID,
		RetryAttempt:     e.RetryAttempt,
		BatchID:          e.BatchID,
		DurationMs:       e.DurationMs,
		CreatedAt:        time.Now(),
	}
	if err := a.logs.Create(ctx, row); err != nil {
		zap.L().Error("failed to create payout log", append(fields, zap.Error(err))...)
	}
}

// ForPayout returns the trail of one payout, oldest first.
func (a *AuditLog) ForPayout(ctx context.Context, payoutID string) ([]*PayoutLog, error) {
	return a.logs.Find(ctx, &PayoutLog{PayoutID: payoutID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "asc"}))
}

type LogFilter struct {
	Level  Level
	Action Action
	Limit  int
}

// List returns the newest entries across all payouts.
func (a *AuditLog) List(ctx context.Context, f LogFilter) ([]*PayoutLog, error) {
	if f.Level != "" && !f.Level.IsValid() {
		return nil, errutil.BadRequest("invalid log level: "+f.Level.String(), nil)
	}
	if f.Action != "" && !f.Action.IsValid() {
		return nil, errutil.BadRequest("invalid log action: "+f.Action.String(), nil)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}

	return a.logs.Find(ctx, &PayoutLog{Level: f.Level, Action: f.Action},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(f.Limit),
	)
}

type errorDescription struct {
	Code      string
	Message   string
	Chain     string
	RequestID string
}

// describeError picks the most specific code available: the provider's own
// code, then the domain status, then UNKNOWN_ERROR. Chain lists every
// wrapped message, outermost first.
func describeError(err error) errorDescription {
	if err == nil {
		return errorDescription{}
	}

	d := errorDescription{Code: "UNKNOWN_ERROR", Message: err.Error()}

	var reason *failure
	switch pe, ok := provider.AsError(err); {
	case ok:
		d.Code = "PROVIDER_ERROR"
		if pe.Code != "" {
			d.Code = pe.Code
		}
		d.Message = pe.Message
		d.RequestID = pe.RequestID
	case errors.As(err, &reason):
		d.Code = reason.code
		d.Message = reason.message
	default:
		var be errutil.BaseError
		if errors.As(err, &be) {
			d.Code = strings.ToUpper(string(be.Code))
			d.Message = be.Message
		}
	}

	var chain []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		chain = append(chain, e.Error())
	}
	d.Chain = strings.Join(chain, "\n")

	return d
}

// failure is a settlement precondition that did not hold. It is retryable.
type failure struct {
	code    string
	message string
}

func (f *failure) Error() string { return f.message }

func jsonOf(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
