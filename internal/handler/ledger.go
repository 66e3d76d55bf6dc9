package handler

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/tokenledger"
)

// NativeHandle addresses the native currency ledger in /ledger routes.
const NativeHandle = "native"

// DevLedger exposes the in-memory external ledgers so a client can do what
// a wallet would: deploy tokens, approve the escrow and move funds.
type DevLedger struct {
	Escrow    common.Address
	Native    *tokenledger.Native
	Directory *tokenledger.Directory
}

// LedgerHandler handles the /ledger routes.
type LedgerHandler struct {
	ledger *DevLedger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledger *DevLedger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// deployRequest is the JSON request body for POST /ledger/tokens.
type deployRequest struct {
	Symbol string `json:"symbol"`
	Supply string `json:"supply"`
}

// ledgerAmountRequest is the JSON request body for approve and transfer.
// Spender is used by approve, To by transfer.
type ledgerAmountRequest struct {
	Spender string `json:"spender"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
	Unit    string `json:"unit"`
}

// ledgerTokenResponse describes one deployed token.
type ledgerTokenResponse struct {
	Handle      string `json:"handle"`
	Symbol      string `json:"symbol"`
	TotalSupply string `json:"total_supply"`
}

// ledgerListResponse is the JSON response for GET /ledger.
type ledgerListResponse struct {
	Escrow string                `json:"escrow"`
	Tokens []ledgerTokenResponse `json:"tokens"`
}

// ledgerBalanceResponse is the JSON response for GET /ledger/{handle}/balance.
// Allowance is the escrow's allowance and is null for the native ledger.
type ledgerBalanceResponse struct {
	Handle    string  `json:"handle"`
	Account   string  `json:"account"`
	Balance   string  `json:"balance"`
	Allowance *string `json:"allowance"`
}

// List handles GET /ledger.
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
	handles := h.ledger.Directory.Handles()
	resp := ledgerListResponse{
		Escrow: h.ledger.Escrow.Hex(),
		Tokens: make([]ledgerTokenResponse, 0, len(handles)),
	}
	for _, handle := range handles {
		t, ok := h.ledger.Directory.Token(handle)
		if !ok {
			continue
		}
		supply := t.TotalSupply()
		resp.Tokens = append(resp.Tokens, ledgerTokenResponse{
			Handle:      handle.Hex(),
			Symbol:      t.Symbol(),
			TotalSupply: supply.Dec(),
		})
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Deploy handles POST /ledger/tokens. The caller receives the whole supply.
func (h *LedgerHandler) Deploy(w http.ResponseWriter, r *http.Request) {
	var req deployRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := domain.ValidateSymbol(req.Symbol); err != nil {
		WriteServiceError(w, err)
		return
	}
	var supply *uint256.Int
	if req.Supply != "" {
		s, err := domain.ParseAmount(req.Supply, "")
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		supply = &s
	}

	handle, t := h.ledger.Directory.Deploy(req.Symbol, caller(r), supply)
	total := t.TotalSupply()
	WriteJSON(w, http.StatusCreated, ledgerTokenResponse{
		Handle:      handle.Hex(),
		Symbol:      t.Symbol(),
		TotalSupply: total.Dec(),
	})
}

// Balance handles GET /ledger/{handle}/balance?account=.
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if !common.IsHexAddress(account) {
		WriteError(w, http.StatusBadRequest, "validation_error", "account query parameter must be a hex address")
		return
	}
	addr := common.HexToAddress(account)
	handle := chi.URLParam(r, "handle")

	resp := ledgerBalanceResponse{Handle: handle, Account: addr.Hex()}
	if handle == NativeHandle {
		bal := h.ledger.Native.BalanceOf(addr)
		resp.Balance = bal.Dec()
		WriteJSON(w, http.StatusOK, resp)
		return
	}

	t, ok := h.token(w, handle)
	if !ok {
		return
	}
	bal := t.BalanceOf(addr)
	allowance := t.Allowance(addr, h.ledger.Escrow)
	a := allowance.Dec()
	resp.Handle = common.HexToAddress(handle).Hex()
	resp.Balance = bal.Dec()
	resp.Allowance = &a
	WriteJSON(w, http.StatusOK, resp)
}

// Approve handles POST /ledger/{handle}/approve. The spender defaults to
// the exchange's escrow account.
func (h *LedgerHandler) Approve(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := parseLedgerRequest(w, r)
	if !ok {
		return
	}
	handle := chi.URLParam(r, "handle")
	if handle == NativeHandle {
		WriteError(w, http.StatusBadRequest, "validation_error", "the native ledger has no allowances")
		return
	}
	t, ok := h.token(w, handle)
	if !ok {
		return
	}
	spender := h.ledger.Escrow
	if req.Spender != "" {
		if !common.IsHexAddress(req.Spender) {
			WriteError(w, http.StatusBadRequest, "validation_error", "spender must be a hex address")
			return
		}
		spender = common.HexToAddress(req.Spender)
	}

	owner := caller(r)
	t.Approve(owner, spender, amount)
	allowance := t.Allowance(owner, spender)
	WriteJSON(w, http.StatusOK, map[string]string{
		"owner":     owner.Hex(),
		"spender":   spender.Hex(),
		"allowance": allowance.Dec(),
	})
}

// Transfer handles POST /ledger/{handle}/transfer.
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	req, amount, ok := parseLedgerRequest(w, r)
	if !ok {
		return
	}
	if !common.IsHexAddress(req.To) {
		WriteError(w, http.StatusBadRequest, "validation_error", "to must be a hex address")
		return
	}
	from, to := caller(r), common.HexToAddress(req.To)
	handle := chi.URLParam(r, "handle")

	var (
		err     error
		balance uint256.Int
	)
	if handle == NativeHandle {
		err = h.ledger.Native.Transfer(from, to, amount)
		balance = h.ledger.Native.BalanceOf(from)
	} else {
		t, ok := h.token(w, handle)
		if !ok {
			return
		}
		err = t.Transfer(from, to, amount)
		balance = t.BalanceOf(from)
	}
	if errors.Is(err, tokenledger.ErrInsufficientFunds) {
		WriteError(w, http.StatusConflict, "insufficient_funds", err.Error())
		return
	}
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"from":    from.Hex(),
		"to":      to.Hex(),
		"amount":  amount.Dec(),
		"balance": balance.Dec(),
	})
}

// token looks up the token at a hex handle, writing a 404 when absent.
func (h *LedgerHandler) token(w http.ResponseWriter, handle string) (*tokenledger.Token, bool) {
	if !common.IsHexAddress(handle) {
		WriteError(w, http.StatusBadRequest, "validation_error", "handle must be a hex address or \"native\"")
		return nil, false
	}
	t, ok := h.ledger.Directory.Token(common.HexToAddress(handle))
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown_handle", tokenledger.ErrUnknownHandle.Error())
		return nil, false
	}
	return t, true
}

func parseLedgerRequest(w http.ResponseWriter, r *http.Request) (ledgerAmountRequest, *uint256.Int, bool) {
	var req ledgerAmountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return req, nil, false
	}
	if req.Amount == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "amount is required")
		return req, nil, false
	}
	amount, err := domain.ParseAmount(req.Amount, req.Unit)
	if err != nil {
		WriteServiceError(w, err)
		return req, nil, false
	}
	return req, &amount, true
}
