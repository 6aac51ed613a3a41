package migration

// Status is where one owner's migration currently stands.
type Status string

// Migration statuses. Only COMPLETED and DECLINED survive a restart, through
// the owner's persisted flag.
const (
	StatusUnknown         Status = "UNKNOWN"
	StatusChecking        Status = "CHECKING"
	StatusNoLegacyData    Status = "NO_LEGACY_DATA"
	StatusAwaitingConsent Status = "AWAITING_CONSENT"
	StatusMigrating       Status = "MIGRATING"
	StatusCompleted       Status = "COMPLETED"
	StatusFailed          Status = "FAILED"
	StatusDeclined        Status = "DECLINED"
)

// IsBusy reports whether a check or migration is in flight.
func (s Status) IsBusy() bool {
	return s == StatusChecking || s == StatusMigrating
}

// IsSettled reports whether the status suppresses future checks.
func (s Status) IsSettled() bool {
	return s == StatusCompleted || s == StatusDeclined
}

// Decision is the answer to a consent request.
type Decision int

// Consent decisions.
const (
	DecisionProceed Decision = iota
	DecisionDecline
)

func (d Decision) String() string {
	if d == DecisionDecline {
		return "decline"
	}
	return "proceed"
}
