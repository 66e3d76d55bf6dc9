package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/domain"
	"github.com/efreitasn/tokenexchange/internal/events"
	"github.com/efreitasn/tokenexchange/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	exchange *service.Exchange
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(exchange *service.Exchange) *OrderHandler {
	return &OrderHandler{exchange: exchange}
}

// placeOrderRequest is the JSON request body for POST /tokens/{symbol}/orders.
// Price is in unit (default wei) per token; volume is in token base units.
type placeOrderRequest struct {
	Side   string `json:"side"`
	Price  string `json:"price"`
	Unit   string `json:"unit"`
	Volume string `json:"volume"`
}

// orderResponse is the JSON form of an order.
type orderResponse struct {
	Key         uint64  `json:"key"`
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Owner       string  `json:"owner"`
	Price       string  `json:"price"`
	Volume      string  `json:"volume"`
	Remaining   string  `json:"remaining"`
	Filled      string  `json:"filled"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	CancelledAt *string `json:"cancelled_at"`
}

// fillResponse is a single fill.
type fillResponse struct {
	MakerSide  string `json:"maker_side"`
	MakerKey   uint64 `json:"maker_key"`
	Maker      string `json:"maker"`
	Taker      string `json:"taker"`
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Notional   string `json:"notional"`
	ExecutedAt string `json:"executed_at"`
}

// placeOrderResponse is the JSON response for a placement.
type placeOrderResponse struct {
	Event   events.Record  `json:"event"`
	Fills   []fillResponse `json:"fills"`
	Resting *orderResponse `json:"resting"`
}

// cancelResponse is returned when a cancel had nothing left to cancel.
type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// orderListResponse is the JSON response for GET /orders.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// PlaceOrder handles POST /tokens/{symbol}/orders.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if req.Price == "" || req.Volume == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "price and volume are required")
		return
	}
	price, err := domain.ParseAmount(req.Price, req.Unit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	volume, err := domain.ParseAmount(req.Volume, "")
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	res, err := h.exchange.PlaceOrder(r.Context(), caller(r), side, chi.URLParam(r, "symbol"), &price, &volume)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	resp := placeOrderResponse{
		Event: events.NewRecord(res.Event),
		Fills: buildFillResponses(res.Fills),
	}
	if res.Resting != nil {
		o := buildOrderResponse(res.Resting)
		resp.Resting = &o
	}
	WriteJSON(w, http.StatusCreated, resp)
}

// CancelOrder handles DELETE /tokens/{symbol}/orders/{side}/{key}. The
// price query parameter is optional; when absent the order's own price is
// used.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	side, key, ok := parseOrderPath(w, r)
	if !ok {
		return
	}

	var price uint256.Int
	if p := r.URL.Query().Get("price"); p != "" {
		var err error
		price, err = domain.ParseAmount(p, r.URL.Query().Get("unit"))
		if err != nil {
			WriteServiceError(w, err)
			return
		}
	} else {
		o, err := h.exchange.Order(symbol, side, key)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		price = o.Price
	}

	e, cancelled, err := h.exchange.CancelOrder(r.Context(), caller(r), symbol, side == domain.SideBuy, &price, key)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if !cancelled {
		WriteJSON(w, http.StatusOK, cancelResponse{Cancelled: false})
		return
	}
	WriteJSON(w, http.StatusOK, events.NewRecord(e))
}

// GetOrder handles GET /tokens/{symbol}/orders/{side}/{key}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	side, key, ok := parseOrderPath(w, r)
	if !ok {
		return
	}
	o, err := h.exchange.Order(chi.URLParam(r, "symbol"), side, key)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(&o))
}

// ListOrders handles GET /orders.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	// Parse query params.
	var statusFilter *domain.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		status := domain.OrderStatus(s)
		statusFilter = &status
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		var err error
		page, err = strconv.Atoi(p)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "page must be a valid integer")
			return
		}
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		var err error
		limit, err = strconv.Atoi(l)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "limit must be a valid integer")
			return
		}
	}

	orders, total, err := h.exchange.ListOrders(caller(r), statusFilter, page, limit)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	resp := orderListResponse{
		Orders: make([]orderResponse, len(orders)),
		Total:  total,
		Page:   page,
		Limit:  limit,
	}
	for i := range orders {
		resp.Orders[i] = buildOrderResponse(&orders[i])
	}
	WriteJSON(w, http.StatusOK, resp)
}

// parseOrderPath reads the side and key URL parameters.
func parseOrderPath(w http.ResponseWriter, r *http.Request) (domain.Side, uint64, bool) {
	side, err := domain.ParseSide(chi.URLParam(r, "side"))
	if err != nil {
		WriteServiceError(w, err)
		return "", 0, false
	}
	key, err := strconv.ParseUint(chi.URLParam(r, "key"), 10, 64)
	if err != nil || key == 0 {
		WriteError(w, http.StatusBadRequest, "validation_error", "key must be a positive integer")
		return "", 0, false
	}
	return side, key, true
}

func buildOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		Key:       o.Key,
		Symbol:    o.Symbol,
		Side:      string(o.Side),
		Owner:     o.Owner.Hex(),
		Price:     o.Price.Dec(),
		Volume:    o.Volume.Dec(),
		Remaining: o.Remaining.Dec(),
		Filled:    o.Filled.Dec(),
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.CancelledAt != nil {
		s := o.CancelledAt.UTC().Format(time.RFC3339)
		resp.CancelledAt = &s
	}
	return resp
}

func buildFillResponses(fills []domain.Fill) []fillResponse {
	result := make([]fillResponse, len(fills))
	for i, f := range fills {
		notional := f.Notional()
		result[i] = fillResponse{
			MakerSide:  string(f.MakerSide),
			MakerKey:   f.MakerKey,
			Maker:      f.Maker.Hex(),
			Taker:      f.Taker.Hex(),
			Price:      f.Price.Dec(),
			Quantity:   f.Quantity.Dec(),
			Notional:   notional.Dec(),
			ExecutedAt: f.ExecutedAt.UTC().Format(time.RFC3339),
		}
	}
	return result
}
