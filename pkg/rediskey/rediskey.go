package rediskey

import "fmt"

// Payout keys (global convention across services)
const (
	PayoutPrefix          = "payout"
	PayoutBatchLockPrefix = "payout:batch:lock"
	AccountReadyPrefix    = "payout:account:ready"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildPayoutBatchLockKey returns "payout:batch:lock:{batchID}"
func BuildPayoutBatchLockKey(batchID string) string {
	return NamespaceKey(PayoutBatchLockPrefix, batchID)
}

// BuildPayoutBatchRunningKey returns "payout:batch:lock:running", held while any batch scans.
func BuildPayoutBatchRunningKey() string {
	return NamespaceKey(PayoutBatchLockPrefix, "running")
}

// BuildAccountReadyKey returns "payout:account:ready:{accountID}"
func BuildAccountReadyKey(accountID string) string {
	return NamespaceKey(AccountReadyPrefix, accountID)
}
