package wallet

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/djkazic/p2wpkh-go/internal/bitcoin"
)

// EnsureWallet makes the named node wallet available: created when absent
// from the wallet directory, otherwise reloaded.
func EnsureWallet(ctx context.Context, mgr WalletManager, name string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	names, err := mgr.ListWalletDir(ctx)
	if err != nil {
		return err
	}

	exists := false
	for _, n := range names {
		if n == name {
			exists = true
			break
		}
	}

	if !exists {
		logger.Info("creating wallet", zap.String("wallet", name))
		return mgr.CreateWallet(ctx, name)
	}

	// Unload first so a stale handle from a previous run does not block the
	// load.
	if err := mgr.UnloadWallet(ctx, name); err != nil && !bitcoin.IsRPCErrorCode(err, bitcoin.ErrCodeWalletNotFound) {
		return fmt.Errorf("reload wallet %s: %w", name, err)
	}
	logger.Info("loading wallet", zap.String("wallet", name))
	return mgr.LoadWallet(ctx, name)
}
