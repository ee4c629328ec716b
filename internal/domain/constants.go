package domain

const (
	TxTypeEscrowPayment = "escrow_payment"

	TxStatusPending   = "PENDING"
	TxStatusHeld      = "HELD"
	TxStatusCompleted = "COMPLETED"
	TxStatusFailed    = "FAILED"

	// Release conditions attached to escrow rules and transactions.
	ReleaseManual              = "MANUAL_RELEASE"
	ReleaseAutomatic           = "AUTOMATIC"
	ReleaseCompletionConfirmed = "COMPLETION_CONFIRMED"
	ReleaseScheduled           = "SCHEDULED_RELEASE"
	ReleaseDisputeResolution   = "DISPUTE_RESOLUTION"

	// Defaults applied when no escrow rule matches a payment purpose.
	DefaultReleaseCondition = ReleaseManual
	DefaultAutoReleaseDays  = 7
)

// IsReleaseCondition reports whether v is a known release condition.
func IsReleaseCondition(v string) bool {
	switch v {
	case ReleaseManual, ReleaseAutomatic, ReleaseCompletionConfirmed, ReleaseScheduled, ReleaseDisputeResolution:
		return true
	default:
		return false
	}
}
