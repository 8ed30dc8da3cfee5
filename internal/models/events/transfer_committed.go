package events

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransferCommitted struct {
	EventID     string          `json:"event_id"`
	TxHash      string          `json:"tx_hash"`
	Strategy    string          `json:"strategy"`
	FromAddress string          `json:"from_address"`
	ToAddress   string          `json:"to_address"`
	Amount      decimal.Decimal `json:"amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

type VerificationCompleted struct {
	EventID     string          `json:"event_id"`
	RunID       string          `json:"run_id"`
	Strategy    string          `json:"strategy"`
	Accounts    int             `json:"accounts"`
	Committed   int             `json:"committed"`
	Failed      int             `json:"failed"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
	Overdraft   decimal.Decimal `json:"overdraft"`
	Consistent  bool            `json:"consistent"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
