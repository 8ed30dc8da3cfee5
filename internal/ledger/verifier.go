package ledger

import (
	"context"

	interfaces "github.com/sheikh-saqib/transfer-race-ledger/internal/interfaces"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// Funding returns the balance an account was seeded with.
type Funding func(address string) decimal.Decimal

// UniformFunding funds every account with the same amount.
func UniformFunding(amount decimal.Decimal) Funding {
	return func(string) decimal.Decimal { return amount }
}

// FundingMap funds listed addresses; any other address started at zero,
// e.g. a recipient created by a Strict upsert.
func FundingMap(funding map[string]decimal.Decimal) Funding {
	return func(address string) decimal.Decimal {
		if amount, ok := funding[address]; ok {
			return amount
		}
		return decimal.Zero
	}
}

// AccountReport reconciles one account: Expected = funding + Credit - Debit.
type AccountReport struct {
	Address     string          `json:"address"`
	Balance     decimal.Decimal `json:"balance"`
	Credit      decimal.Decimal `json:"credit"`
	Debit       decimal.Decimal `json:"debit"`
	Expected    decimal.Decimal `json:"expected"`
	Discrepancy decimal.Decimal `json:"discrepancy"`
}

type Report struct {
	Accounts []AccountReport `json:"accounts"`
	// Discrepancy is the signed sum of balance - expected over all accounts.
	Discrepancy decimal.Decimal `json:"discrepancy"`
	// Overdraft is the sum of all negative balances; it is zero unless an
	// account was drawn below zero.
	Overdraft decimal.Decimal `json:"overdraft"`
}

// Consistent reports whether the absolute discrepancy is within threshold.
func (r Report) Consistent(threshold decimal.Decimal) bool {
	return r.Discrepancy.Abs().LessThanOrEqual(threshold)
}

func (r Report) Solvent() bool {
	return r.Overdraft.IsZero()
}

// Account returns the report for address, if present.
func (r Report) Account(address string) (AccountReport, bool) {
	for _, a := range r.Accounts {
		if a.Address == address {
			return a, true
		}
	}
	return AccountReport{}, false
}

type Verifier struct {
	store interfaces.AccountStore
}

func NewVerifier(store interfaces.AccountStore) *Verifier {
	return &Verifier{store: store}
}

func (v *Verifier) Verify(ctx context.Context, funding Funding) (Report, error) {
	activity, err := v.store.AccountActivity(ctx)
	if err != nil {
		return Report{}, storeError(err)
	}

	report := Report{
		Accounts:    make([]AccountReport, 0, len(activity)),
		Discrepancy: decimal.Zero,
		Overdraft:   decimal.Zero,
	}
	for _, a := range activity {
		ar := reconcile(a, funding(a.Address))
		report.Accounts = append(report.Accounts, ar)
		report.Discrepancy = report.Discrepancy.Add(ar.Discrepancy)
		if ar.Balance.IsNegative() {
			report.Overdraft = report.Overdraft.Add(ar.Balance)
		}
	}
	return report, nil
}

func (v *Verifier) VerifyAccount(ctx context.Context, address string, funding Funding) (AccountReport, error) {
	report, err := v.Verify(ctx, funding)
	if err != nil {
		return AccountReport{}, err
	}
	ar, ok := report.Account(address)
	if !ok {
		return AccountReport{}, accountNotFound(address)
	}
	return ar, nil
}

func reconcile(a models.AccountActivity, initial decimal.Decimal) AccountReport {
	expected := initial.Add(a.Credit).Sub(a.Debit)
	return AccountReport{
		Address:     a.Address,
		Balance:     a.Balance,
		Credit:      a.Credit,
		Debit:       a.Debit,
		Expected:    expected,
		Discrepancy: a.Balance.Sub(expected),
	}
}
