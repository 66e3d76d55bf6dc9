package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/efreitasn/tokenexchange/internal/domain"
)

// RegisterToken admits a token to trading under symbol. A symbol can be
// registered once and never changes afterwards.
func (x *Exchange) RegisterToken(ctx context.Context, symbol string, handle common.Address) (domain.Event, error) {
	if err := domain.ValidateSymbol(symbol); err != nil {
		return domain.Event{}, err
	}
	if handle == (common.Address{}) {
		return domain.Event{}, &domain.ValidationError{Message: "handle is required"}
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	t, err := x.registry.Register(symbol, handle)
	if err != nil {
		return domain.Event{}, err
	}
	return x.publish(ctx, domain.Event{
		Kind:   domain.EventTokenRegistered,
		Symbol: t.Symbol,
		Handle: t.Handle,
	}), nil
}

// HasToken reports whether symbol is registered.
func (x *Exchange) HasToken(symbol string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.registry.Exists(symbol)
}

// Token returns the registered token for symbol.
func (x *Exchange) Token(symbol string) (domain.Token, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	t, ok := x.registry.Get(symbol)
	if !ok {
		return domain.Token{}, domain.ErrUnknownSymbol
	}
	return t, nil
}

// Tokens lists every registered token sorted by symbol.
func (x *Exchange) Tokens() []domain.Token {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.registry.List()
}
