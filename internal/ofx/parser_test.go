package ofx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
<TRNTYPE>CREDIT
<DTPOSTED>20240105120000[0:GMT]
<TRNAMT>2400.00
<FITID>2024010501
<NAME>DIRECT DEPOSIT
<MEMO>ACME CORP PAYROLL
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

func TestParseFile(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		expectedCount int
		expectedError bool
	}{
		{
			name:          "valid bank statement",
			ofxData:       sampleBankOFX,
			expectedCount: 4,
		},
		{
			name:          "valid credit card statement",
			ofxData:       sampleCreditCardOFX,
			expectedCount: 2,
		},
		{
			name:          "leading blank lines",
			ofxData:       "\n\n  " + sampleCreditCardOFX,
			expectedCount: 2,
		},
		{
			name:          "invalid OFX data",
			ofxData:       "not valid OFX",
			expectedError: true,
		},
		{
			name:          "empty OFX",
			ofxData:       "",
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser()
			transactions, err := parser.ParseFile(context.Background(), strings.NewReader(tt.ofxData))

			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, transactions, tt.expectedCount)
		})
	}
}

func TestParseBankTransactions(t *testing.T) {
	parser := NewParser()

	stmt, err := parser.Parse(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	assert.Equal(t, []string{"1234567890"}, stmt.Accounts)
	require.Len(t, stmt.Transactions, 4)

	// Ordered by posting day, so the deposit comes first.
	deposit := stmt.Transactions[0]
	assert.Equal(t, "2024010501", deposit.ID)
	assert.Equal(t, "ACME CORP PAYROLL", deposit.MerchantName)
	assert.InDelta(t, 2400.00, deposit.Amount, 0.001)
	assert.Equal(t, "CREDIT", deposit.Type)

	coffee := stmt.Transactions[1]
	assert.Equal(t, "2024011501", coffee.ID)
	assert.Equal(t, "STARBUCKS STORE #1234", coffee.Name)
	assert.Equal(t, "STARBUCKS STORE #1234", coffee.MerchantName)
	assert.InDelta(t, -25.50, coffee.Amount, 0.001)
	assert.InDelta(t, 25.50, coffee.Magnitude(), 0.001)
	assert.Equal(t, "1234567890", coffee.AccountID)
	assert.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), coffee.Date)
	assert.Equal(t, coffee.GenerateHash(), coffee.Hash)

	check := stmt.Transactions[3]
	assert.Equal(t, "2024012501", check.ID)
	assert.Equal(t, "1234", check.CheckNumber)
	assert.Equal(t, "CHECK", check.Type)
	assert.InDelta(t, -500.00, check.Amount, 0.001)
}

func TestParseCreditCardTransactions(t *testing.T) {
	parser := NewParser()

	transactions, err := parser.ParseFile(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	require.Len(t, transactions, 2)

	amazon := transactions[0]
	assert.Equal(t, "CC2024011001", amazon.ID)
	assert.Equal(t, "AMAZON.COM*RT4Y7HG2", amazon.Name)
	assert.InDelta(t, -45.99, amazon.Amount, 0.001)
	assert.Equal(t, "4111111111111111", amazon.AccountID)

	netflix := transactions[1]
	assert.Equal(t, "CC2024011501", netflix.ID)
	assert.Equal(t, "NETFLIX.COM", netflix.MerchantName)
	assert.InDelta(t, -15.00, netflix.Amount, 0.001)
}

func TestExtractMerchantName(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		tx       ofxgo.Transaction
		expected string
	}{
		{
			name:     "remove POS prefix",
			tx:       ofxgo.Transaction{Name: "POS PURCHASE CITY WATER"},
			expected: "CITY WATER",
		},
		{
			name:     "remove ACH prefix",
			tx:       ofxgo.Transaction{Name: "ACH DEBIT STATE FARM INS"},
			expected: "STATE FARM INS",
		},
		{
			name:     "strip posting date",
			tx:       ofxgo.Transaction{Name: "01/15 COMCAST CABLE"},
			expected: "COMCAST CABLE",
		},
		{
			name:     "memo replaces generic name",
			tx:       ofxgo.Transaction{Name: "PAYMENT", Memo: "CHASE MORTGAGE"},
			expected: "CHASE MORTGAGE",
		},
		{
			name:     "payee wins",
			tx:       ofxgo.Transaction{Name: "ACH DEBIT 8823", Payee: &ofxgo.Payee{Name: "Landlord LLC"}},
			expected: "Landlord LLC",
		},
		{
			name:     "trim whitespace",
			tx:       ofxgo.Transaction{Name: "  NETFLIX.COM  "},
			expected: "NETFLIX.COM",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parser.extractMerchantName(tt.tx))
		})
	}
}

func TestPreprocessOFX(t *testing.T) {
	parser := NewParser()

	out := parser.preprocessOFX("\n <SEVERITY>Info</SEVERITY>\n<BANKTRANLIST\n")
	assert.True(t, strings.HasPrefix(out, "<SEVERITY>INFO</SEVERITY>"))
	assert.Contains(t, out, "<BANKTRANLIST>")
}

func TestGetAccounts(t *testing.T) {
	parser := NewParser()

	accounts, err := parser.GetAccounts(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	assert.Equal(t, []string{"1234567890"}, accounts)

	accounts, err = parser.GetAccounts(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	assert.Equal(t, []string{"4111111111111111"}, accounts)
}
