package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a balance row keyed by address.
type Account struct {
	Address   string          `json:"address"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AccountActivity is an account's balance next to the ledger totals that
// touch it. Credit sums entries addressed to the account, Debit sums
// entries sent from it.
type AccountActivity struct {
	Address string          `json:"address"`
	Balance decimal.Decimal `json:"balance"`
	Credit  decimal.Decimal `json:"credit"`
	Debit   decimal.Decimal `json:"debit"`
}
