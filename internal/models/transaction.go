package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable ledger entry. TxHash is the idempotency key:
// at most one row exists per hash.
type Transaction struct {
	TxHash      string          `json:"tx_hash"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TransferRequest represents an intent to move Amount from From to To.
type TransferRequest struct {
	TxHash string          `json:"tx_hash"`
	From   string          `json:"from_address"`
	To     string          `json:"to_address"`
	Amount decimal.Decimal `json:"amount"`
}

// Entry converts the request into the ledger entry recorded for it.
func (r TransferRequest) Entry(now time.Time) Transaction {
	return Transaction{
		TxHash:      r.TxHash,
		FromAddress: r.From,
		ToAddress:   r.To,
		Amount:      r.Amount,
		CreatedAt:   now,
	}
}
