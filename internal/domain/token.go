package domain

import (
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var symbolRegex = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

// ValidateSymbol checks that symbol is a short upper-case ticker.
func ValidateSymbol(symbol string) error {
	if !symbolRegex.MatchString(symbol) {
		return &ValidationError{Message: "symbol must match ^[A-Z0-9]{1,10}$"}
	}
	return nil
}

// Token is a fungible token admitted to trading. Handle addresses the
// token's external ledger.
type Token struct {
	Symbol       string
	Handle       common.Address
	RegisteredAt time.Time
}

// TokenRegistry tracks registered tokens in a thread-safe manner.
// A symbol, once registered, is immutable.
type TokenRegistry struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewTokenRegistry creates an empty TokenRegistry.
func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{
		tokens: make(map[string]Token),
	}
}

// Register adds a token to the registry. It returns
// ErrTokenAlreadyRegistered if the symbol is taken.
func (r *TokenRegistry) Register(symbol string, handle common.Address) (Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[symbol]; exists {
		return Token{}, ErrTokenAlreadyRegistered
	}
	t := Token{
		Symbol:       symbol,
		Handle:       handle,
		RegisteredAt: time.Now().UTC(),
	}
	r.tokens[symbol] = t
	return t, nil
}

// Exists returns true if the symbol has been registered. Safe for concurrent use.
func (r *TokenRegistry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tokens[symbol]
	return ok
}

// Get returns the registered token for symbol.
func (r *TokenRegistry) Get(symbol string) (Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[symbol]
	return t, ok
}

// List returns all registered tokens sorted by symbol.
func (r *TokenRegistry) List() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
