package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sheikh-saqib/transfer-race-ledger/internal/ledger"
	"github.com/sheikh-saqib/transfer-race-ledger/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Server struct {
	ledger   *ledger.Ledger
	verifier *ledger.Verifier
	logger   *zap.Logger
}

func New(l *ledger.Ledger, verifier *ledger.Verifier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{ledger: l, verifier: verifier, logger: logger}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("POST /accounts", s.createAccount)
	mux.HandleFunc("GET /accounts/balance", s.balance)
	mux.HandleFunc("POST /transfers", s.transfer)
	mux.HandleFunc("GET /ledgerEntries", s.ledgerEntries)
	mux.HandleFunc("GET /verify", s.verify)
	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string          `json:"address"`
		Balance decimal.Decimal `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	created, err := s.ledger.CreateAccount(r.Context(), req.Address, req.Balance)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"address": req.Address, "created": created})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		http.Error(w, "address is a mandatory field", http.StatusBadRequest)
		return
	}

	balance, err := s.ledger.GetBalance(r.Context(), address)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Address string          `json:"address"`
		Balance decimal.Decimal `json:"balance"`
	}{
		Address: address,
		Balance: balance,
	})
}

// transfer takes the tx hash from the Idempotency-Key header. A replay
// answers 200 with status "skipped".
func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey == "" {
		http.Error(w, "Idempotency-Key header is required", http.StatusBadRequest)
		return
	}

	var req struct {
		From     string          `json:"from_address"`
		To       string          `json:"to_address"`
		Amount   decimal.Decimal `json:"amount"`
		Strategy string          `json:"strategy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	strategy := ledger.Strict
	if req.Strategy != "" {
		parsed, err := ledger.ParseStrategy(req.Strategy)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		strategy = parsed
	}

	outcome, err := s.ledger.Transfer(r.Context(), strategy, models.TransferRequest{
		TxHash: idempotencyKey,
		From:   req.From,
		To:     req.To,
		Amount: req.Amount,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if !outcome.Committed() {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"tx_hash":       idempotencyKey,
		"status":        outcome.Status.String(),
		"rows_affected": outcome.RowsAffected,
	})
}

func (s *Server) ledgerEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledger.GetLedgerEntries(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// verify reconciles every account assuming each was funded with ?initial=.
func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	initial := decimal.Zero
	if raw := r.URL.Query().Get("initial"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			http.Error(w, "initial must be a number", http.StatusBadRequest)
			return
		}
		initial = parsed
	}

	report, err := s.verifier.Verify(r.Context(), ledger.UniformFunding(initial))
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		ledger.Report
		Consistent bool `json:"consistent"`
		Solvent    bool `json:"solvent"`
	}{
		Report:     report,
		Consistent: report.Consistent(decimal.Zero),
		Solvent:    report.Solvent(),
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		status = http.StatusConflict
	case errors.Is(err, ledger.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrOther):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
