package ofx

import (
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-125.00
<FITID>2024012001
<NAME>Whole Foods Market
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2024011001
<NAME>AMAZON.COM*RT4Y7HG2
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-15.00
<FITID>CC2024011501
<NAME>NETFLIX.COM
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParse(t *testing.T) {
	tests := []struct {
		name          string
		data          string
		expectedCount int
		expectedError bool
	}{
		{name: "bank statement", data: sampleBankOFX, expectedCount: 3},
		{name: "credit card statement", data: sampleCreditCardOFX, expectedCount: 2},
		{name: "leading blank lines", data: "\n\n  " + sampleCreditCardOFX, expectedCount: 2},
		{name: "not OFX", data: "not valid OFX", expectedError: true},
		{name: "empty", data: "", expectedError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Parse(strings.NewReader(tt.data))
			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, stmt.Entries, tt.expectedCount)
		})
	}
}

func TestParse_BankEntries(t *testing.T) {
	stmt, err := Parse(strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	require.Len(t, stmt.Entries, 3)
	assert.Equal(t, []string{"1234567890"}, stmt.Accounts)

	first := stmt.Entries[0]
	assert.Equal(t, "2024011501", first.FITID)
	assert.Equal(t, "STARBUCKS STORE #1234", first.Description)
	assert.Equal(t, model.KindExpense, first.Kind)
	assert.True(t, decimal.RequireFromString("25.50").Equal(first.Amount), first.Amount.String())
	assert.Equal(t, model.NewDate(2024, time.January, 15), first.OccursOn)
	assert.Equal(t, "1234567890", first.AccountID)
	assert.Empty(t, first.Category)

	check := stmt.Entries[2]
	assert.Equal(t, "CHECK #1234", check.Description)
	assert.True(t, decimal.NewFromInt(500).Equal(check.Amount))
}

func TestParse_CreditCardEntries(t *testing.T) {
	stmt, err := Parse(strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	require.Len(t, stmt.Entries, 2)
	assert.Equal(t, []string{"4111111111111111"}, stmt.Accounts)

	assert.Equal(t, "AMAZON.COM*RT4Y7HG2", stmt.Entries[0].Description)
	assert.True(t, decimal.RequireFromString("45.99").Equal(stmt.Entries[0].Amount))
	assert.Equal(t, "NETFLIX.COM", stmt.Entries[1].Description)
}

func TestConvert(t *testing.T) {
	posted := ofxgo.Date{Time: time.Date(2024, time.February, 3, 12, 0, 0, 0, time.UTC)}

	t.Run("deposit is income", func(t *testing.T) {
		tx := ofxgo.Transaction{TrnType: ofxgo.TrnTypeInt, DtPosted: posted, FiTID: "i1", Name: "INTEREST"}
		tx.TrnAmt.SetFrac64(321, 100)

		entry, ok := convert(tx, "acct")
		require.True(t, ok)
		assert.Equal(t, model.KindIncome, entry.Kind)
		assert.True(t, decimal.RequireFromString("3.21").Equal(entry.Amount))
		assert.Equal(t, "Interest", entry.Category)
		assert.Equal(t, model.NewDate(2024, time.February, 3), entry.OccursOn)
	})

	t.Run("zero amount is dropped", func(t *testing.T) {
		tx := ofxgo.Transaction{DtPosted: posted, FiTID: "z1", Name: "NOTHING"}
		_, ok := convert(tx, "acct")
		assert.False(t, ok)
	})
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name     string
		tx       ofxgo.Transaction
		expected string
	}{
		{"remove POS prefix", ofxgo.Transaction{Name: "POS PURCHASE STARBUCKS"}, "STARBUCKS"},
		{"remove DEBIT CARD prefix", ofxgo.Transaction{Name: "DEBIT CARD PURCHASE WHOLE FOODS"}, "WHOLE FOODS"},
		{"strip authorization date", ofxgo.Transaction{Name: "PURCHASE AUTHORIZED ON 03/14 CORNER DELI"}, "CORNER DELI"},
		{"keep clean name", ofxgo.Transaction{Name: "NETFLIX.COM"}, "NETFLIX.COM"},
		{"trim whitespace", ofxgo.Transaction{Name: "  AMAZON.COM  "}, "AMAZON.COM"},
		{"generic name uses memo", ofxgo.Transaction{Name: "DEBIT", Memo: "City Water"}, "City Water"},
		{"payee wins", ofxgo.Transaction{Name: "ACH DEBIT 1234", Payee: &ofxgo.Payee{Name: "Power Co"}}, "Power Co"},
		{"bare check", ofxgo.Transaction{CheckNum: "1042"}, "Check 1042"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, describe(tt.tx))
		})
	}
}

func TestPreprocess(t *testing.T) {
	in := "\n  <SEVERITY>Info</SEVERITY>\n<STMTTRN\n<NAME>Shop\n"
	assert.Equal(t, "<SEVERITY>INFO</SEVERITY>\n<STMTTRN>\n<NAME>Shop\n", preprocess(in))
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		expected string
		tx       ofxgo.Transaction
	}{
		{"Interest", ofxgo.Transaction{TrnType: ofxgo.TrnTypeInt}},
		{"Interest", ofxgo.Transaction{TrnType: ofxgo.TrnTypeDiv}},
		{"Bank Fees", ofxgo.Transaction{TrnType: ofxgo.TrnTypeFee}},
		{"Bank Fees", ofxgo.Transaction{TrnType: ofxgo.TrnTypeSrvChg}},
		{"Cash", ofxgo.Transaction{TrnType: ofxgo.TrnTypeATM}},
		{"", ofxgo.Transaction{TrnType: ofxgo.TrnTypeDebit}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, categoryFor(tt.tx), tt.tx.TrnType.String())
	}
}
