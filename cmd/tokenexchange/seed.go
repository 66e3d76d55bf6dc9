package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"github.com/efreitasn/tokenexchange/internal/config"
	"github.com/efreitasn/tokenexchange/internal/service"
	"github.com/efreitasn/tokenexchange/internal/tokenledger"
)

// seedDevLedger funds the configured dev accounts with native currency and
// deploys and registers the dev tokens. The first dev account deploys each
// token and the supply is split evenly among all dev accounts.
//
// After a restore the in-memory ledgers start empty while the exchange
// already holds balances, so the escrow is first credited with what the
// exchange holds and tokens already registered are not registered again.
func seedDevLedger(
	ctx context.Context,
	cfg *config.Config,
	native *tokenledger.Native,
	directory *tokenledger.Directory,
	exchange *service.Exchange,
	logger *slog.Logger,
) error {
	heldCurrency, heldTokens := exchange.Totals()
	if !heldCurrency.IsZero() {
		if err := native.Mint(cfg.EscrowAddress, &heldCurrency); err != nil {
			return fmt.Errorf("back escrow currency: %w", err)
		}
	}
	for _, acct := range cfg.DevAccounts {
		if err := native.Mint(acct, &cfg.DevNativeBalance); err != nil {
			return fmt.Errorf("mint native balance to %s: %w", acct.Hex(), err)
		}
	}
	if len(cfg.DevAccounts) == 0 {
		logger.Info("no DEV_ACCOUNTS configured, skipping dev token seeding")
		return nil
	}

	deployer := cfg.DevAccounts[0]
	seeded := make(map[string]bool, len(cfg.DevTokens))
	for _, symbol := range cfg.DevTokens {
		handle, token := directory.Deploy(symbol, deployer, nil)
		seeded[symbol] = true

		registered, err := exchange.Token(symbol)
		alreadyRegistered := err == nil
		if alreadyRegistered && registered.Handle != handle {
			logger.Warn("dev token registered under another handle, its deposits and withdrawals will fail",
				slog.String("symbol", symbol),
				slog.String("registered", registered.Handle.Hex()),
				slog.String("deployed", handle.Hex()),
			)
			continue
		}

		supply := token.TotalSupply()
		held := heldTokens[symbol]
		if !held.IsZero() {
			if err := token.Transfer(deployer, cfg.EscrowAddress, &held); err != nil {
				return fmt.Errorf("back escrow %s: %w", symbol, err)
			}
		}
		var left uint256.Int
		left.Sub(&supply, &held)
		share := new(uint256.Int).Div(&left, uint256.NewInt(uint64(len(cfg.DevAccounts))))
		for _, acct := range cfg.DevAccounts[1:] {
			if err := token.Transfer(deployer, acct, share); err != nil {
				return fmt.Errorf("distribute %s to %s: %w", symbol, acct.Hex(), err)
			}
		}

		if alreadyRegistered {
			logger.Info("dev token redeployed", slog.String("symbol", symbol), slog.String("handle", handle.Hex()))
			continue
		}
		if _, err := exchange.RegisterToken(ctx, symbol, handle); err != nil {
			return fmt.Errorf("register dev token %s: %w", symbol, err)
		}
		logger.Info("dev token deployed",
			slog.String("symbol", symbol),
			slog.String("handle", handle.Hex()),
			slog.String("deployer", deployer.Hex()),
		)
	}

	for _, t := range exchange.Tokens() {
		if !seeded[t.Symbol] {
			logger.Warn("registered token has no dev ledger after restart, its deposits and withdrawals will fail",
				slog.String("symbol", t.Symbol),
				slog.String("handle", t.Handle.Hex()),
			)
		}
	}
	return nil
}
