// Package ingest brings bank transactions into storage from OFX files and
// the Plaid API. Ingestion is the only writer of the transactions table; the
// decision engine reads it and never mutates it.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/ledgerloom/ledgerloom/internal/model"
)

// OFXParser parses OFX/QFX statement files.
type OFXParser struct {
	tenantID string
	logger   *slog.Logger
}

// NewOFXParser creates a parser that stamps transactions with the tenant.
func NewOFXParser(tenantID string, logger *slog.Logger) *OFXParser {
	return &OFXParser{tenantID: tenantID, logger: logger}
}

var (
	severityRe = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagRe  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	mmddRe     = regexp.MustCompile(`^\d{2}/\d{2} `)
)

// preprocess fixes formatting quirks banks ship in SGML-style OFX files.
func (p *OFXParser) preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRe.ReplaceAllStringFunc(content, strings.ToUpper)
	// Opening tags missing their closing bracket.
	content = openTagRe.ReplaceAllString(content, "$1>")
	return content
}

// ParseFile parses one OFX/QFX file into transactions.
func (p *OFXParser) ParseFile(_ context.Context, reader io.Reader) ([]model.Transaction, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var transactions []model.Transaction
	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok && stmt.BankTranList != nil {
			accountID := string(stmt.BankAcctFrom.AcctID)
			for _, ofxTx := range stmt.BankTranList.Transactions {
				transactions = append(transactions, p.convert(ofxTx, accountID))
			}
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok && stmt.BankTranList != nil {
			accountID := string(stmt.CCAcctFrom.AcctID)
			for _, ofxTx := range stmt.BankTranList.Transactions {
				transactions = append(transactions, p.convert(ofxTx, accountID))
			}
		}
	}

	p.logger.Info("parsed OFX file",
		"tenant_id", p.tenantID,
		"transactions", len(transactions))
	return transactions, nil
}

func (p *OFXParser) convert(ofxTx ofxgo.Transaction, accountID string) model.Transaction {
	// TrnAmt is a big.Rat; convert without going through float64 so no
	// rounding sneaks into the ledger. Bank statements carry cents.
	amount := decimal.NewFromBigRat(&ofxTx.TrnAmt.Rat, 2)

	txn := model.Transaction{
		ID:             string(ofxTx.FiTID),
		TenantID:       p.tenantID,
		Date:           ofxTx.DtPosted.Time,
		RawDescription: string(ofxTx.Name),
		MerchantName:   extractMerchantName(ofxTx),
		AccountID:      accountID,
		Type:           fmt.Sprintf("%v", ofxTx.TrnType),
		Amount:         amount,
	}
	txn.Hash = txn.GenerateHash()
	return txn
}

// extractMerchantName pulls the cleanest merchant string the file offers.
func extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}

	name := strings.TrimSpace(string(tx.Name))
	if tx.Memo != "" && isGenericDescription(name) {
		name = strings.TrimSpace(string(tx.Memo))
	}

	upper := strings.ToUpper(name)
	for _, prefix := range []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
	} {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading MM/DD date stamps.
	name = mmddRe.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "DEBIT", "CREDIT", "POS", "PURCHASE", "PAYMENT", "WITHDRAWAL", "DEPOSIT", "CHECK":
		return true
	}
	return false
}
