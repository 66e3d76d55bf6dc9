package handler

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/efreitasn/tokenexchange/internal/journal"
	"github.com/efreitasn/tokenexchange/internal/service"
)

// Deps are the collaborators the router serves. Ledger is optional; the
// /ledger routes are mounted only when it is set.
type Deps struct {
	Exchange    *service.Exchange
	Webhooks    *service.WebhookService
	Journal     *journal.Journal
	Hub         *Hub
	Ledger      *DevLedger
	CORSOrigins []string
}

// NewRouter creates a chi router with all routes registered, request logging,
// CORS, and Content-Type validation middleware.
func NewRouter(deps Deps, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", AccountHeader},
		MaxAge:         300,
	}))
	r.Use(contentTypeJSON)

	accountH := NewAccountHandler(deps.Exchange)
	tokenH := NewTokenHandler(deps.Exchange)
	orderH := NewOrderHandler(deps.Exchange)
	marketH := NewMarketHandler(deps.Exchange)
	webhookH := NewWebhookHandler(deps.Webhooks)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public market data.
	r.Get("/tokens", tokenH.List)
	r.Get("/tokens/{symbol}", tokenH.Get)
	r.Get("/tokens/{symbol}/orders/{side}/{key}", orderH.GetOrder)
	r.Get("/tokens/{symbol}/book/bids", marketH.Bids)
	r.Get("/tokens/{symbol}/book/asks", marketH.Asks)
	r.Get("/tokens/{symbol}/quote", marketH.Quote)
	r.Get("/tokens/{symbol}/fills", marketH.Fills)
	if deps.Journal != nil {
		r.Get("/events", NewEventHandler(deps.Journal, logger).List)
	}
	if deps.Hub != nil {
		r.Get("/ws", deps.Hub.ServeHTTP)
	}

	// Routes acting on behalf of the caller.
	r.Group(func(r chi.Router) {
		r.Use(requireAccount)

		r.Post("/currency/deposit", accountH.DepositCurrency)
		r.Post("/currency/withdraw", accountH.WithdrawCurrency)
		r.Get("/currency/balance", accountH.CurrencyBalance)
		r.Get("/balance", accountH.Balance)

		r.Post("/tokens", tokenH.Register)
		r.Post("/tokens/{symbol}/deposit", accountH.DepositToken)
		r.Post("/tokens/{symbol}/withdraw", accountH.WithdrawToken)
		r.Get("/tokens/{symbol}/balance", accountH.TokenBalance)

		r.Post("/tokens/{symbol}/orders", orderH.PlaceOrder)
		r.Delete("/tokens/{symbol}/orders/{side}/{key}", orderH.CancelOrder)
		r.Get("/orders", orderH.ListOrders)

		r.Post("/webhooks", webhookH.Upsert)
		r.Get("/webhooks", webhookH.List)
		r.Delete("/webhooks/{webhook_id}", webhookH.Delete)
	})

	if deps.Ledger != nil {
		ledgerH := NewLedgerHandler(deps.Ledger)
		r.Route("/ledger", func(r chi.Router) {
			r.Get("/", ledgerH.List)
			r.Get("/{handle}/balance", ledgerH.Balance)
			r.Group(func(r chi.Router) {
				r.Use(requireAccount)
				r.Post("/tokens", ledgerH.Deploy)
				r.Post("/{handle}/approve", ledgerH.Approve)
				r.Post("/{handle}/transfer", ledgerH.Transfer)
			})
		})
	}

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack lets the websocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
