package types

// AdmissionMode defines what a lookup service receives when an output is admitted.
type AdmissionMode string

const (
	AdmissionModeLockingScript AdmissionMode = "locking-script"
	AdmissionModeWholeTx       AdmissionMode = "whole-tx"
)

// SpendNotificationMode defines how a lookup service is notified of spends.
type SpendNotificationMode string

const (
	SpendNotificationModeNone    SpendNotificationMode = "none"
	SpendNotificationModeTxid    SpendNotificationMode = "txid"
	SpendNotificationModeScript  SpendNotificationMode = "script"
	SpendNotificationModeWholeTx SpendNotificationMode = "whole-tx"
)

// Anchor outputs are provably unspendable, so the anchor lookup service is
// fed locking scripts and never expects spend notifications.
const (
	AnchorAdmissionMode         = AdmissionModeLockingScript
	AnchorSpendNotificationMode = SpendNotificationModeNone
)
