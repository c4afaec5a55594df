package model

import "github.com/shopspring/decimal"

// JournalLine is one leg of a proposed journal entry.
type JournalLine struct {
	Account string
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// JournalEntry is the double-entry posting proposed for a transaction.
type JournalEntry struct {
	TransactionID string
	Lines         []JournalLine
}

// Balanced reports whether debits equal credits exactly. Decimal equality is
// exact; there is no rounding tolerance.
func (e *JournalEntry) Balanced() bool {
	debits := decimal.Zero
	credits := decimal.Zero
	for _, line := range e.Lines {
		debits = debits.Add(line.Debit)
		credits = credits.Add(line.Credit)
	}
	return debits.Equal(credits)
}

// ProposeEntry builds the standard two-leg entry for a transaction: debit the
// proposed expense account, credit the funding account.
func ProposeEntry(txn Transaction, proposedAccount string) JournalEntry {
	amount := txn.Amount.Abs()
	return JournalEntry{
		TransactionID: txn.ID,
		Lines: []JournalLine{
			{Account: proposedAccount, Debit: amount},
			{Account: txn.AccountID, Credit: amount},
		},
	}
}
