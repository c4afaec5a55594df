package model

import "time"

// Rule maps a merchant pattern to a ledger account with a fixed confidence.
// Rules are evaluated in priority order; the first match wins.
type Rule struct {
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Name       string
	Pattern    string
	Account    string
	Confidence float64
	Priority   int
	ID         int
	IsRegex    bool
	IsActive   bool
}

// AccountType distinguishes chart-of-accounts entries.
type AccountType string

// Account type constants.
const (
	AccountTypeExpense   AccountType = "expense"
	AccountTypeIncome    AccountType = "income"
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
)

// Account is one ledger account in the chart of accounts.
type Account struct {
	Code        string
	Name        string
	Type        AccountType
	Description string
	IsActive    bool
}
