package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/service"
)

// MarketHandler handles HTTP requests for book snapshots, quotes and fills.
type MarketHandler struct {
	exchange *service.Exchange
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(exchange *service.Exchange) *MarketHandler {
	return &MarketHandler{exchange: exchange}
}

// bookResponse is one side of a book as parallel sequences, best first.
type bookResponse struct {
	Symbol  string   `json:"symbol"`
	Side    string   `json:"side"`
	Prices  []string `json:"prices"`
	Volumes []string `json:"volumes"`
}

// quoteLevelResponse is a single price level in the quote response.
type quoteLevelResponse struct {
	Price  string `json:"price"`
	Volume string `json:"volume"`
}

// quoteResponse is the JSON response for GET /tokens/{symbol}/quote.
type quoteResponse struct {
	Symbol          string               `json:"symbol"`
	Side            string               `json:"side"`
	VolumeRequested string               `json:"volume_requested"`
	VolumeAvailable string               `json:"volume_available"`
	FullyFillable   bool                 `json:"fully_fillable"`
	EstimatedTotal  *string              `json:"estimated_total"`
	PriceLevels     []quoteLevelResponse `json:"price_levels"`
	QuotedAt        string               `json:"quoted_at"`
}

// fillListResponse is the JSON response for GET /tokens/{symbol}/fills.
type fillListResponse struct {
	Symbol    string         `json:"symbol"`
	LastPrice *string        `json:"last_price"`
	Fills     []fillResponse `json:"fills"`
}

// Bids handles GET /tokens/{symbol}/book/bids.
func (h *MarketHandler) Bids(w http.ResponseWriter, r *http.Request) {
	snap, err := h.exchange.BidBook(chi.URLParam(r, "symbol"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildBookResponse(snap))
}

// Asks handles GET /tokens/{symbol}/book/asks.
func (h *MarketHandler) Asks(w http.ResponseWriter, r *http.Request) {
	snap, err := h.exchange.AskBook(chi.URLParam(r, "symbol"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildBookResponse(snap))
}

// Quote handles GET /tokens/{symbol}/quote?side=&volume=.
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	side, err := domain.ParseSide(q.Get("side"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if q.Get("volume") == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "volume query parameter is required")
		return
	}
	volume, err := domain.ParseAmount(q.Get("volume"), "")
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	quote, err := h.exchange.Quote(chi.URLParam(r, "symbol"), side, &volume)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	resp := quoteResponse{
		Symbol:          quote.Symbol,
		Side:            string(quote.Side),
		VolumeRequested: quote.VolumeRequested.Dec(),
		VolumeAvailable: quote.VolumeAvailable.Dec(),
		FullyFillable:   quote.FullyFillable,
		PriceLevels:     make([]quoteLevelResponse, len(quote.PriceLevels)),
		QuotedAt:        quote.QuotedAt.UTC().Format(time.RFC3339),
	}
	if quote.EstimatedTotal != nil {
		s := quote.EstimatedTotal.Dec()
		resp.EstimatedTotal = &s
	}
	for i, l := range quote.PriceLevels {
		resp.PriceLevels[i] = quoteLevelResponse{
			Price:  l.Price.Dec(),
			Volume: l.Volume.Dec(),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Fills handles GET /tokens/{symbol}/fills?limit=.
func (h *MarketHandler) Fills(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	limit := service.DefaultFillsLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a positive integer")
			return
		}
	}

	fills, err := h.exchange.Fills(symbol, limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	resp := fillListResponse{
		Symbol: symbol,
		Fills:  buildFillResponses(fills),
	}
	if last, ok, _ := h.exchange.LastPrice(symbol); ok {
		s := last.Dec()
		resp.LastPrice = &s
	}
	WriteJSON(w, http.StatusOK, resp)
}

func buildBookResponse(snap *service.BookSnapshot) bookResponse {
	return bookResponse{
		Symbol:  snap.Symbol,
		Side:    string(snap.Side),
		Prices:  decimals(snap.Prices),
		Volumes: decimals(snap.Volumes),
	}
}

func decimals(xs []uint256.Int) []string {
	out := make([]string, len(xs))
	for i := range xs {
		out[i] = xs[i].Dec()
	}
	return out
}
