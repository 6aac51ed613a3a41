// Package ofx reads OFX/QFX bank and credit card statements into entries the
// ledger can record.
package ofx

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

var (
	severityPattern = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagPattern  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Entry is one statement line.
type Entry struct {
	OccursOn    model.Date
	Amount      decimal.Decimal // Always positive; Kind carries the sign
	FITID       string
	AccountID   string
	Description string
	Category    string // Empty unless the transaction type implies one
	Kind        model.Kind
}

// Statement is everything read from one file.
type Statement struct {
	Entries  []Entry
	Accounts []string
}

// Parse reads an OFX or QFX document.
func Parse(r io.Reader) (Statement, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Statement{}, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(content))))
	if err != nil {
		return Statement{}, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var stmt Statement
	accounts := make(map[string]bool)

	for _, msg := range resp.Bank {
		bank, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		account := string(bank.BankAcctFrom.AcctID)
		accounts[account] = true
		if bank.BankTranList != nil {
			stmt.Entries = appendEntries(stmt.Entries, bank.BankTranList.Transactions, account)
		}
	}

	for _, msg := range resp.CreditCard {
		card, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		account := string(card.CCAcctFrom.AcctID)
		accounts[account] = true
		if card.BankTranList != nil {
			stmt.Entries = appendEntries(stmt.Entries, card.BankTranList.Transactions, account)
		}
	}

	for account := range accounts {
		if account != "" {
			stmt.Accounts = append(stmt.Accounts, account)
		}
	}
	sort.Strings(stmt.Accounts)

	slog.Debug("Parsed OFX statement", "entries", len(stmt.Entries), "accounts", len(stmt.Accounts))
	return stmt, nil
}

// preprocess repairs formatting that real bank exports get wrong.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityPattern.ReplaceAllStringFunc(content, strings.ToUpper)
	// SGML exports sometimes drop the closing bracket of a bare opening tag
	return openTagPattern.ReplaceAllString(content, "$1>")
}

func appendEntries(entries []Entry, txns []ofxgo.Transaction, account string) []Entry {
	for _, tx := range txns {
		entry, ok := convert(tx, account)
		if !ok {
			slog.Warn("Skipping zero-amount statement line", "fitid", string(tx.FiTID))
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func convert(tx ofxgo.Transaction, account string) (Entry, bool) {
	amount := decimal.NewFromBigRat(&tx.TrnAmt.Rat, 2)
	if amount.IsZero() {
		return Entry{}, false
	}

	kind := model.KindIncome
	if amount.IsNegative() {
		kind = model.KindExpense
		amount = amount.Neg()
	}

	return Entry{
		FITID:       string(tx.FiTID),
		AccountID:   account,
		OccursOn:    model.DateOf(tx.DtPosted.Time),
		Amount:      amount,
		Kind:        kind,
		Description: describe(tx),
		Category:    categoryFor(tx),
	}, true
}

// categoryFor maps transaction types that imply a category.
func categoryFor(tx ofxgo.Transaction) string {
	switch tx.TrnType {
	case ofxgo.TrnTypeInt, ofxgo.TrnTypeDiv:
		return "Interest"
	case ofxgo.TrnTypeFee, ofxgo.TrnTypeSrvChg:
		return "Bank Fees"
	case ofxgo.TrnTypeATM:
		return "Cash"
	}
	return ""
}

var cardPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

var genericNames = map[string]bool{
	"DEBIT":           true,
	"CREDIT":          true,
	"PURCHASE":        true,
	"PAYMENT":         true,
	"POS TRANSACTION": true,
	"CARD PURCHASE":   true,
}

// describe picks the most readable name a statement line offers.
func describe(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)
	if tx.Memo != "" && genericNames[strings.ToUpper(strings.TrimSpace(name))] {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	upper := strings.ToUpper(name)
	for _, prefix := range cardPrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// "MM/DD " left over from an authorization prefix
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	if name == "" && tx.CheckNum != "" {
		name = "Check " + string(tx.CheckNum)
	}
	return name
}
