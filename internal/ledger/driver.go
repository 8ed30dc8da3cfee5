package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/sheikh-saqib/transfer-race-ledger/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Summary aggregates the outcomes of one Driver run.
type Summary struct {
	Attempted int               `json:"attempted"`
	Committed int               `json:"committed"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	ByKind    map[ErrorKind]int `json:"by_kind"`
	// Moved is the total amount of committed transfers.
	Moved decimal.Decimal `json:"moved"`
}

// Driver fans transfers out concurrently. A failing transfer is logged and
// counted; it never cancels the others.
type Driver struct {
	ledger      *Ledger
	concurrency int
	logger      *zap.Logger
}

// NewDriver bounds in-flight transfers to concurrency; zero or less leaves
// the bound to the store's pool.
func NewDriver(ledger *Ledger, concurrency int, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{ledger: ledger, concurrency: concurrency, logger: logger}
}

// Run executes every request and waits for all of them before returning.
func (d *Driver) Run(ctx context.Context, strategy Strategy, requests []models.TransferRequest) Summary {
	var (
		mu      sync.Mutex
		summary = Summary{
			Attempted: len(requests),
			ByKind:    make(map[ErrorKind]int),
			Moved:     decimal.Zero,
		}
	)

	record := func(req models.TransferRequest, outcome Outcome, err error) {
		mu.Lock()
		defer mu.Unlock()

		switch {
		case err != nil:
			summary.Failed++
			summary.ByKind[KindOf(err)]++
		case outcome.Status == StatusSkipped:
			summary.Skipped++
		default:
			summary.Committed++
			summary.Moved = summary.Moved.Add(req.Amount)
		}
	}

	// A plain Group: tasks always return nil, so nothing cancels siblings.
	var g errgroup.Group
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}

	for _, req := range requests {
		g.Go(func() error {
			outcome, err := d.transfer(ctx, strategy, req)
			if err != nil {
				d.logger.Error("transfer failed",
					zap.String("tx_hash", req.TxHash),
					zap.String("from", req.From),
					zap.String("to", req.To),
					zap.Stringer("error_kind", KindOf(err)),
					zap.Error(err),
				)
			}
			record(req, outcome, err)
			return nil
		})
	}

	_ = g.Wait()
	return summary
}

func (d *Driver) transfer(ctx context.Context, strategy Strategy, req models.TransferRequest) (outcome Outcome, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			outcome, err = Outcome{}, otherError(fmt.Sprintf("panic recovered: %v", recovered))
		}
	}()
	return d.ledger.Transfer(ctx, strategy, req)
}

// Address formats the i-th harness account as 0x<hex>.
func Address(i int) string {
	return fmt.Sprintf("0x%x", i)
}

// FanOutPlan builds count transfers of amount from source, spread round robin
// over destinations. Each one gets a distinct tx hash, hex(i).
func FanOutPlan(source string, destinations []string, count int, amount decimal.Decimal) []models.TransferRequest {
	if len(destinations) == 0 || count <= 0 {
		return nil
	}

	requests := make([]models.TransferRequest, 0, count)
	for i := 0; i < count; i++ {
		requests = append(requests, models.TransferRequest{
			TxHash: fmt.Sprintf("%x", i),
			From:   source,
			To:     destinations[i%len(destinations)],
			Amount: amount,
		})
	}
	return requests
}
