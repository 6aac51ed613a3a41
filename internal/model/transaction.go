// Package model defines the core domain types shared across the application.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind says whether money came in or went out.
type Kind string

const (
	// KindIncome marks money received.
	KindIncome Kind = "income"
	// KindExpense marks money spent.
	KindExpense Kind = "expense"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k == KindIncome || k == KindExpense
}

// Origin records how a transaction came to exist in the current location.
type Origin string

const (
	// OriginNative marks records created directly in the current location.
	OriginNative Origin = "native"
	// OriginMigrated marks records copied over from the legacy location.
	OriginMigrated Origin = "migrated"
)

// Transaction is the canonical, normalized transaction record.
type Transaction struct {
	MigratedAt  time.Time
	CreatedAt   time.Time
	Amount      decimal.Decimal
	OccursOn    Date
	ID          string
	OwnerID     string
	Kind        Kind
	Category    string
	Description string
	GroupID     string // Empty means unassigned
	Origin      Origin
	SourceID    string // Id in the location the record was copied from
	BatchID     string // Migration batch that produced the record
	Location    Location
	Paid        bool
}

// IsMigrated reports whether the record was copied from another location.
func (t *Transaction) IsMigrated() bool {
	return t.Origin == OriginMigrated
}

// Timestamp returns the moment used to pick a survivor among duplicates:
// the migration time for migrated records, otherwise the creation time.
func (t *Transaction) Timestamp() time.Time {
	if t.IsMigrated() && !t.MigratedAt.IsZero() {
		return t.MigratedAt
	}
	return t.CreatedAt
}

// Fingerprint identifies a transaction by content alone.
type Fingerprint struct {
	Description string
	Amount      string
	OccursOn    Date
}

// Fingerprint returns the content key used for heuristic duplicate detection.
func (t *Transaction) Fingerprint() Fingerprint {
	return Fingerprint{
		Description: t.Description,
		Amount:      t.Amount.String(),
		OccursOn:    t.OccursOn,
	}
}

// SignedAmount returns the amount as a balance contribution: positive for
// income, negative for expenses.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Kind == KindExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}
