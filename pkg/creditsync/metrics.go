package creditsync

import "time"

// Metrics defines the interface for tracking ledger operations.
// All methods are optional - the Ledger handles nil metrics gracefully.
type Metrics interface {
	// RecordLedgerWrite records a balance mutation.
	// operation: "set" or "add"
	// status: "success" or "error"
	RecordLedgerWrite(operation, status string)

	// RecordLedgerWriteDuration records how long a balance mutation took.
	RecordLedgerWriteDuration(operation string, duration time.Duration)

	// RecordBalance records the balance observed after a successful write.
	RecordBalance(balance int64)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordLedgerWrite(_, _ string)                      {}
func (n *NoopMetrics) RecordLedgerWriteDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordBalance(_ int64)                              {}
