// Package ledger serves an owner's transactions for display and editing,
// reading both storage locations so that records not yet migrated still
// show up.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/dedup"
	"github.com/Veraticus/the-books-must-balance/internal/locator"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/normalize"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

// ErrInvalidInput is returned for a transaction that cannot be recorded.
var ErrInvalidInput = errors.New("invalid transaction")

// Summary totals a set of transactions.
type Summary struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
	// Unpaid is the total of expenses not yet marked paid.
	Unpaid decimal.Decimal
	Count  int
}

// View is one month of an owner's transactions, newest first.
type View struct {
	Transactions []model.Transaction
	Summary      Summary
	// Skipped counts stored records that could not be normalized.
	Skipped int
	// LegacyUnavailable is set when legacy records could not be read and the
	// view shows the current location only.
	LegacyUnavailable bool
}

// Input is a new transaction as entered by its owner.
type Input struct {
	OccursOn    model.Date
	Amount      decimal.Decimal
	Kind        model.Kind
	Category    string
	Description string
	GroupID     string
	Paid        bool
}

// Service reads and edits an owner's transactions.
type Service struct {
	store   service.RecordStore
	locator *locator.Locator
	now     func() time.Time
}

// New creates a ledger over store.
func New(store service.RecordStore) *Service {
	return &Service{
		store:   store,
		locator: locator.New(store),
		now:     time.Now,
	}
}

// MonthView returns the owner's transactions for one month. An empty groupID
// means every group. Legacy records show up until migrated; unassigned legacy
// records appear under every group.
func (s *Service) MonthView(ctx context.Context, ownerID, groupID string, month time.Month, year int) (View, error) {
	current := s.locator.ListCandidates(ctx, ownerID, model.LocationCurrent)
	legacy := s.locator.ListCandidates(ctx, ownerID, model.LocationLegacy)
	if locator.BothUnavailable(current, legacy) {
		return View{}, fmt.Errorf("%w: %w", common.ErrLocationUnavailable, current.Unavailable)
	}

	var view View
	view.LegacyUnavailable = !legacy.Available()

	claimed := dedup.ClaimedByDocuments(ownerID, current.Records)
	unmigrated := make([]model.RawRecord, 0, len(legacy.Records))
	for _, raw := range legacy.Records {
		if !dedup.IsRecordClaimed(claimed, ownerID, raw) {
			unmigrated = append(unmigrated, raw)
		}
	}

	currentTxns := s.normalizeAll(current.Records, &view, func(t model.Transaction) bool {
		return groupID == "" || t.GroupID == groupID
	})
	legacyTxns := s.normalizeAll(unmigrated, &view, func(t model.Transaction) bool {
		return groupID == "" || t.GroupID == "" || t.GroupID == groupID
	})

	for _, t := range dedup.Merge(currentTxns, legacyTxns) {
		if t.OccursOn.InMonth(month, year) {
			view.Transactions = append(view.Transactions, t)
		}
	}

	sort.SliceStable(view.Transactions, func(i, j int) bool {
		a, b := view.Transactions[i], view.Transactions[j]
		if a.OccursOn != b.OccursOn {
			return b.OccursOn.Before(a.OccursOn)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	view.Summary = Summarize(view.Transactions)
	return view, nil
}

func (s *Service) normalizeAll(records []model.RawRecord, view *View, keep func(model.Transaction) bool) []model.Transaction {
	out := make([]model.Transaction, 0, len(records))
	for _, raw := range records {
		txn, err := normalize.Normalize(raw)
		if err != nil {
			view.Skipped++
			continue
		}
		if keep(txn) {
			out = append(out, txn)
		}
	}
	return out
}

// Summarize totals transactions by kind.
func Summarize(txns []model.Transaction) Summary {
	sum := Summary{
		Income:  decimal.Zero,
		Expense: decimal.Zero,
		Unpaid:  decimal.Zero,
		Count:   len(txns),
	}
	for _, t := range txns {
		switch t.Kind {
		case model.KindIncome:
			sum.Income = sum.Income.Add(t.Amount)
		case model.KindExpense:
			sum.Expense = sum.Expense.Add(t.Amount)
			if !t.Paid {
				sum.Unpaid = sum.Unpaid.Add(t.Amount)
			}
		}
	}
	sum.Balance = sum.Income.Sub(sum.Expense)
	return sum
}

// AddTransaction records a new transaction in the current location. When the
// current location refuses the write, it falls back to the legacy location
// so the entry is not lost; the next migration picks it up.
func (s *Service) AddTransaction(ctx context.Context, ownerID string, in Input) (model.Transaction, error) {
	if err := validate(ownerID, in); err != nil {
		return model.Transaction{}, err
	}

	txn := model.Transaction{
		OwnerID:     ownerID,
		Kind:        in.Kind,
		Category:    strings.TrimSpace(in.Category),
		Amount:      in.Amount,
		OccursOn:    in.OccursOn,
		Description: in.Description,
		GroupID:     in.GroupID,
		Paid:        in.Paid,
		Origin:      model.OriginNative,
		CreatedAt:   s.now().UTC(),
		Location:    model.LocationCurrent,
	}
	fields := normalize.Encode(txn)

	id, err := s.store.Write(ctx, model.LocationCurrent, ownerID, fields)
	if errors.Is(err, common.ErrPermissionDenied) {
		common.OwnerLogger(ownerID).Warn("Current location refused write, saving to legacy location", "error", err)
		txn.Location = model.LocationLegacy
		id, err = s.store.Write(ctx, model.LocationLegacy, ownerID, fields)
	}
	if err != nil {
		return model.Transaction{}, fmt.Errorf("failed to save transaction: %w", err)
	}

	txn.ID = id
	return txn, nil
}

func validate(ownerID string, in Input) error {
	switch {
	case strings.TrimSpace(ownerID) == "":
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	case !in.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
	case !in.Kind.IsValid():
		return fmt.Errorf("%w: kind must be income or expense", ErrInvalidInput)
	case strings.TrimSpace(in.Category) == "":
		return fmt.Errorf("%w: category is required", ErrInvalidInput)
	case !in.OccursOn.Valid():
		return fmt.Errorf("%w: date is not a calendar date", ErrInvalidInput)
	}
	return nil
}

// SetPaid marks an expense paid or unpaid.
func (s *Service) SetPaid(ctx context.Context, ownerID string, loc model.Location, id string, paid bool) error {
	if err := s.store.Update(ctx, loc, ownerID, id, map[string]any{"paid": paid}); err != nil {
		return fmt.Errorf("failed to update paid flag: %w", err)
	}
	return nil
}

// MoveToGroup files a transaction under another group.
func (s *Service) MoveToGroup(ctx context.Context, ownerID string, loc model.Location, id, groupID string) error {
	if strings.TrimSpace(groupID) == "" {
		return fmt.Errorf("%w: group is required", ErrInvalidInput)
	}
	if err := s.store.Update(ctx, loc, ownerID, id, map[string]any{"groupId": groupID}); err != nil {
		return fmt.Errorf("failed to move transaction: %w", err)
	}
	return nil
}

// Changes lists the fields of a transaction to overwrite. Nil fields are
// left as they are.
type Changes struct {
	OccursOn    *model.Date
	Amount      *decimal.Decimal
	Kind        *model.Kind
	Category    *string
	Description *string
	GroupID     *string
	Paid        *bool
}

// IsEmpty reports whether c changes nothing.
func (c Changes) IsEmpty() bool {
	return c == Changes{}
}

// UpdateTransaction overwrites the given fields of a transaction in either
// location. Fields are written under their canonical names, which take
// precedence over the older spellings legacy records may also carry.
func (s *Service) UpdateTransaction(ctx context.Context, ownerID string, loc model.Location, id string, c Changes) error {
	fields, err := c.fields()
	if err != nil {
		return err
	}
	fields["updatedAt"] = s.now().UTC().Format(time.RFC3339Nano)

	if err := s.store.Update(ctx, loc, ownerID, id, fields); err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

func (c Changes) fields() (map[string]any, error) {
	if c.IsEmpty() {
		return nil, fmt.Errorf("%w: nothing to change", ErrInvalidInput)
	}

	fields := make(map[string]any)
	if c.OccursOn != nil {
		if !c.OccursOn.Valid() {
			return nil, fmt.Errorf("%w: date is not a calendar date", ErrInvalidInput)
		}
		// month and year outrank date when records are read back
		fields["date"] = c.OccursOn.String()
		fields["month"] = int(c.OccursOn.Month)
		fields["year"] = c.OccursOn.Year
	}
	if c.Amount != nil {
		if !c.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
		}
		fields["amount"] = c.Amount.String()
	}
	if c.Kind != nil {
		if !c.Kind.IsValid() {
			return nil, fmt.Errorf("%w: kind must be income or expense", ErrInvalidInput)
		}
		fields["kind"] = string(*c.Kind)
	}
	if c.Category != nil {
		category := strings.TrimSpace(*c.Category)
		if category == "" {
			return nil, fmt.Errorf("%w: category is required", ErrInvalidInput)
		}
		fields["category"] = category
	}
	if c.Description != nil {
		fields["description"] = *c.Description
	}
	if c.GroupID != nil {
		if strings.TrimSpace(*c.GroupID) == "" {
			return nil, fmt.Errorf("%w: group is required", ErrInvalidInput)
		}
		fields["groupId"] = *c.GroupID
	}
	if c.Paid != nil {
		fields["paid"] = *c.Paid
	}
	return fields, nil
}

// DeleteTransaction removes a transaction.
func (s *Service) DeleteTransaction(ctx context.Context, ownerID string, loc model.Location, id string) error {
	if err := s.store.Delete(ctx, loc, ownerID, id); err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

// ImportResult counts what happened to each entry of an import.
type ImportResult struct {
	Added      int
	Duplicates int
	Invalid    int
}

// Import records a batch of entries, skipping any whose description, amount
// and date match a transaction the owner already has in the current location.
// Each stored transaction absorbs at most one entry, so identical lines within
// one statement are all kept the first time and all skipped on re-import. A write failure stops
// the import; entries recorded before it stay recorded.
func (s *Service) Import(ctx context.Context, ownerID string, inputs []Input) (ImportResult, error) {
	var result ImportResult

	current := s.locator.ListCandidates(ctx, ownerID, model.LocationCurrent)
	if !current.Available() {
		return result, fmt.Errorf("%w: %w", common.ErrLocationUnavailable, current.Unavailable)
	}

	existing := make(map[model.Fingerprint]int, len(current.Records))
	for _, raw := range current.Records {
		if txn, err := normalize.Normalize(raw); err == nil {
			existing[txn.Fingerprint()]++
		}
	}

	logger := common.OwnerLogger(ownerID)
	for _, in := range inputs {
		if err := validate(ownerID, in); err != nil {
			result.Invalid++
			logger.Warn("Skipping invalid import entry", "error", err)
			continue
		}

		entry := model.Transaction{Description: in.Description, Amount: in.Amount, OccursOn: in.OccursOn}
		if fp := entry.Fingerprint(); existing[fp] > 0 {
			existing[fp]--
			result.Duplicates++
			continue
		}

		if _, err := s.AddTransaction(ctx, ownerID, in); err != nil {
			return result, err
		}
		result.Added++
	}

	logger.Info("Imported transactions",
		"added", result.Added,
		"duplicates", result.Duplicates,
		"invalid", result.Invalid)
	return result, nil
}
