package handler

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// AccountHeader carries the caller's address. Authentication happens in
// front of this server.
const AccountHeader = "X-Account"

type accountKey struct{}

// requireAccount rejects requests without a valid X-Account header and
// stores the caller's address in the request context.
func requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := r.Header.Get(AccountHeader)
		if v == "" {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "X-Account header is required")
			return
		}
		if !common.IsHexAddress(v) {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "X-Account must be a hex address")
			return
		}
		ctx := context.WithValue(r.Context(), accountKey{}, common.HexToAddress(v))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// caller returns the address stored by requireAccount.
func caller(r *http.Request) common.Address {
	addr, _ := r.Context().Value(accountKey{}).(common.Address)
	return addr
}
