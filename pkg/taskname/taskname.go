package taskname

const (
	// Payout tasks
	PayoutProcess  = "payout:process"
	PayoutBatchRun = "payout:batch:run"
)
