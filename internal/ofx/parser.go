// Package ofx reads bank and credit card statements in OFX/QFX format and
// turns them into transactions ready to be assigned to obligations.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/Veraticus/the-bills-must-flow/internal/calendar"
	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/model"
)

var (
	severityPattern = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags at end of line that lost their closing bracket.
	openTagPattern = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

var merchantPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"ACH CREDIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
	"ONLINE PAYMENT ",
}

var genericNames = map[string]bool{
	"DEBIT":           true,
	"CREDIT":          true,
	"PURCHASE":        true,
	"PAYMENT":         true,
	"DIRECT DEPOSIT":  true,
	"POS TRANSACTION": true,
	"CARD PURCHASE":   true,
}

// Statement is the parsed content of one OFX file.
type Statement struct {
	Accounts     []string
	Transactions []model.Transaction
}

// Parser implements OFX/QFX file parsing.
type Parser struct{}

// NewParser creates a new OFX parser.
func NewParser() *Parser {
	return &Parser{}
}

// preprocessOFX fixes formatting issues that trip up ofxgo.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityPattern.ReplaceAllStringFunc(content, strings.ToUpper)
	return openTagPattern.ReplaceAllString(content, "$1>")
}

// Parse reads every bank and credit card statement in the file. Transactions
// are ordered by posting day, then ID.
func (p *Parser) Parse(ctx context.Context, reader io.Reader) (*Statement, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	stmt := &Statement{}
	seen := make(map[string]bool)
	addAccount := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			stmt.Accounts = append(stmt.Accounts, id)
		}
	}

	for _, msg := range resp.Bank {
		bank, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		accountID := string(bank.BankAcctFrom.AcctID)
		addAccount(accountID)
		stmt.Transactions = append(stmt.Transactions, p.convertList(bank.BankTranList, accountID)...)
	}

	for _, msg := range resp.CreditCard {
		card, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		accountID := string(card.CCAcctFrom.AcctID)
		addAccount(accountID)
		stmt.Transactions = append(stmt.Transactions, p.convertList(card.BankTranList, accountID)...)
	}

	sort.SliceStable(stmt.Transactions, func(i, j int) bool {
		a, b := stmt.Transactions[i], stmt.Transactions[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})
	sort.Strings(stmt.Accounts)

	common.Logger(ctx).Info("Parsed OFX file",
		"transactions", len(stmt.Transactions),
		"accounts", len(stmt.Accounts))
	return stmt, nil
}

// ParseFile parses an OFX/QFX file and returns its transactions.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.Transaction, error) {
	stmt, err := p.Parse(ctx, reader)
	if err != nil {
		return nil, err
	}
	return stmt.Transactions, nil
}

// GetAccounts extracts the account IDs present in the file.
func (p *Parser) GetAccounts(ctx context.Context, reader io.Reader) ([]string, error) {
	stmt, err := p.Parse(ctx, reader)
	if err != nil {
		return nil, err
	}
	return stmt.Accounts, nil
}

func (p *Parser) convertList(list *ofxgo.TransactionList, accountID string) []model.Transaction {
	if list == nil {
		return nil
	}
	txns := make([]model.Transaction, 0, len(list.Transactions))
	for _, ofxTx := range list.Transactions {
		txn, err := p.convertTransaction(ofxTx, accountID)
		if err != nil {
			slog.Warn("Skipping OFX transaction",
				"account", accountID,
				"fitid", string(ofxTx.FiTID),
				"error", err)
			continue
		}
		txns = append(txns, txn)
	}
	return txns
}

// convertTransaction converts an OFX transaction to our model. The amount
// keeps the sign the institution reported and the posting time is reduced
// to its civil day.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountID string) (model.Transaction, error) {
	if ofxTx.FiTID == "" {
		return model.Transaction{}, fmt.Errorf("transaction has no FITID")
	}
	amount, _ := ofxTx.TrnAmt.Float64()

	txn := model.Transaction{
		ID:           string(ofxTx.FiTID),
		Date:         calendar.Day(ofxTx.DtPosted.Time),
		Name:         strings.TrimSpace(string(ofxTx.Name)),
		MerchantName: p.extractMerchantName(ofxTx),
		Amount:       amount,
		AccountID:    accountID,
		Type:         fmt.Sprintf("%v", ofxTx.TrnType),
		CheckNumber:  string(ofxTx.CheckNum),
	}
	txn.Hash = txn.GenerateHash()
	return txn, nil
}

// extractMerchantName tries to get a clean payee name from OFX data.
func (p *Parser) extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := strings.TrimSpace(string(tx.Name))
	if tx.Memo != "" && genericNames[strings.ToUpper(name)] {
		name = strings.TrimSpace(string(tx.Memo))
	}

	upper := strings.ToUpper(name)
	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading "MM/DD " posting dates.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}
