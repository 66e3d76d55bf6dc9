package handler

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/tokenexchange/internal/events"
	"github.com/efreitasn/tokenexchange/internal/service"
)

// TokenHandler handles HTTP requests for the token registry.
type TokenHandler struct {
	exchange *service.Exchange
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(exchange *service.Exchange) *TokenHandler {
	return &TokenHandler{exchange: exchange}
}

// registerTokenRequest is the JSON request body for POST /tokens.
type registerTokenRequest struct {
	Symbol string `json:"symbol"`
	Handle string `json:"handle"`
}

// tokenResponse describes one symbol. Handle and registered_at are null
// for unregistered symbols.
type tokenResponse struct {
	Symbol       string  `json:"symbol"`
	Registered   bool    `json:"registered"`
	Handle       *string `json:"handle"`
	RegisteredAt *string `json:"registered_at"`
}

// tokenListResponse is the JSON response for GET /tokens.
type tokenListResponse struct {
	Tokens []tokenResponse `json:"tokens"`
}

// Register handles POST /tokens.
func (h *TokenHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerTokenRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if !common.IsHexAddress(req.Handle) {
		WriteError(w, http.StatusBadRequest, "validation_error", "handle must be a hex address")
		return
	}

	e, err := h.exchange.RegisterToken(r.Context(), req.Symbol, common.HexToAddress(req.Handle))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, events.NewRecord(e))
}

// List handles GET /tokens.
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	tokens := h.exchange.Tokens()
	resp := tokenListResponse{Tokens: make([]tokenResponse, len(tokens))}
	for i, t := range tokens {
		handle := t.Handle.Hex()
		at := t.RegisteredAt.UTC().Format(time.RFC3339)
		resp.Tokens[i] = tokenResponse{
			Symbol:       t.Symbol,
			Registered:   true,
			Handle:       &handle,
			RegisteredAt: &at,
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Get handles GET /tokens/{symbol}. Unregistered symbols are reported
// with registered=false rather than 404.
func (h *TokenHandler) Get(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	resp := tokenResponse{Symbol: symbol, Registered: h.exchange.HasToken(symbol)}
	if t, err := h.exchange.Token(symbol); resp.Registered && err == nil {
		handle := t.Handle.Hex()
		at := t.RegisteredAt.UTC().Format(time.RFC3339)
		resp.Handle = &handle
		resp.RegisteredAt = &at
	}
	WriteJSON(w, http.StatusOK, resp)
}
