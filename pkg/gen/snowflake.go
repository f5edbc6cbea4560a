package gen

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
)

var Module = fx.Module("gen", fx.Provide(NewSnowflakeNode))

// NewSnowflakeNode returns the id generator shared by every store.
func NewSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// IdempotencyKey returns "payout_<userID>_<unixMillis>_<uuid>".
func IdempotencyKey(userID string, now time.Time) string {
	return fmt.Sprintf("payout_%s_%d_%s", userID, now.UnixMilli(), uuid.NewString())
}

// BatchID returns "<kind>_<YYYY-MM-DD>_<uuid>", e.g. weekly_2026-10-19_....
func BatchID(kind string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", kind, now.Format("2006-01-02"), uuid.NewString())
}

// TransactionCode returns "TXN-<YYYYMMDD>-<12 upper hex>".
func TransactionCode(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("TXN-%s-%s", now.Format("20060102"), strings.ToUpper(id[:12]))
}
