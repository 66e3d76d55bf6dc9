package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/events"
	"github.com/efreitasn/tokenexchange/internal/service"
)

// AccountHandler handles deposits, withdrawals and balance queries.
type AccountHandler struct {
	exchange *service.Exchange
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(exchange *service.Exchange) *AccountHandler {
	return &AccountHandler{exchange: exchange}
}

// amountRequest is the JSON request body for deposit and withdraw routes.
// Amount is a decimal string in unit (default wei).
type amountRequest struct {
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
}

// parseAmountRequest decodes and converts the request amount. It writes
// the error response and returns false on failure.
func parseAmountRequest(w http.ResponseWriter, r *http.Request) (*uint256.Int, bool) {
	var req amountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return nil, false
	}
	if req.Amount == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "amount is required")
		return nil, false
	}
	amount, err := domain.ParseAmount(req.Amount, req.Unit)
	if err != nil {
		WriteServiceError(w, err)
		return nil, false
	}
	return &amount, true
}

// balanceResponse is the JSON response for a single available balance.
type balanceResponse struct {
	Account string `json:"account"`
	Symbol  string `json:"symbol,omitempty"`
	Balance string `json:"balance"`
}

// tokenBalanceResponse is one holding in the full balance response.
type tokenBalanceResponse struct {
	Symbol    string `json:"symbol"`
	Balance   string `json:"balance"`
	Reserved  string `json:"reserved"`
	Available string `json:"available"`
}

// accountResponse is the JSON response for GET /balance.
type accountResponse struct {
	Account           string                 `json:"account"`
	Currency          string                 `json:"currency"`
	ReservedCurrency  string                 `json:"reserved_currency"`
	AvailableCurrency string                 `json:"available_currency"`
	Tokens            []tokenBalanceResponse `json:"tokens"`
	CreatedAt         *string                `json:"created_at"`
}

// DepositCurrency handles POST /currency/deposit.
func (h *AccountHandler) DepositCurrency(w http.ResponseWriter, r *http.Request) {
	amount, ok := parseAmountRequest(w, r)
	if !ok {
		return
	}
	e, err := h.exchange.DepositCurrency(r.Context(), caller(r), amount)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, events.NewRecord(e))
}

// WithdrawCurrency handles POST /currency/withdraw.
func (h *AccountHandler) WithdrawCurrency(w http.ResponseWriter, r *http.Request) {
	amount, ok := parseAmountRequest(w, r)
	if !ok {
		return
	}
	e, err := h.exchange.WithdrawCurrency(r.Context(), caller(r), amount)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, events.NewRecord(e))
}

// DepositToken handles POST /tokens/{symbol}/deposit.
func (h *AccountHandler) DepositToken(w http.ResponseWriter, r *http.Request) {
	amount, ok := parseAmountRequest(w, r)
	if !ok {
		return
	}
	e, err := h.exchange.DepositToken(r.Context(), caller(r), chi.URLParam(r, "symbol"), amount)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, events.NewRecord(e))
}

// WithdrawToken handles POST /tokens/{symbol}/withdraw.
func (h *AccountHandler) WithdrawToken(w http.ResponseWriter, r *http.Request) {
	amount, ok := parseAmountRequest(w, r)
	if !ok {
		return
	}
	e, err := h.exchange.WithdrawToken(r.Context(), caller(r), chi.URLParam(r, "symbol"), amount)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, events.NewRecord(e))
}

// CurrencyBalance handles GET /currency/balance.
func (h *AccountHandler) CurrencyBalance(w http.ResponseWriter, r *http.Request) {
	account := caller(r)
	bal := h.exchange.CurrencyBalance(account)
	WriteJSON(w, http.StatusOK, balanceResponse{
		Account: account.Hex(),
		Balance: bal.Dec(),
	})
}

// TokenBalance handles GET /tokens/{symbol}/balance.
func (h *AccountHandler) TokenBalance(w http.ResponseWriter, r *http.Request) {
	account := caller(r)
	symbol := chi.URLParam(r, "symbol")
	bal, err := h.exchange.TokenBalance(account, symbol)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, balanceResponse{
		Account: account.Hex(),
		Symbol:  symbol,
		Balance: bal.Dec(),
	})
}

// Balance handles GET /balance.
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	b := h.exchange.Balance(caller(r))

	tokens := make([]tokenBalanceResponse, len(b.Tokens))
	for i, t := range b.Tokens {
		tokens[i] = tokenBalanceResponse{
			Symbol:    t.Symbol,
			Balance:   t.Balance.Dec(),
			Reserved:  t.Reserved.Dec(),
			Available: t.Available.Dec(),
		}
	}

	resp := accountResponse{
		Account:           b.Account.Hex(),
		Currency:          b.Currency.Dec(),
		ReservedCurrency:  b.ReservedCurrency.Dec(),
		AvailableCurrency: b.AvailableCurrency.Dec(),
		Tokens:            tokens,
	}
	if !b.CreatedAt.IsZero() {
		s := b.CreatedAt.UTC().Format(time.RFC3339)
		resp.CreatedAt = &s
	}
	WriteJSON(w, http.StatusOK, resp)
}
