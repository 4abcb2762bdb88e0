// Package wallet runs the single-key spend pipeline against a node: locate,
// select, estimate, assemble, sign, verify, broadcast.
package wallet

import (
	"context"

	"github.com/djkazic/p2wpkh-go/internal/bitcoin"
	"github.com/djkazic/p2wpkh-go/internal/fee"
	"github.com/djkazic/p2wpkh-go/internal/utxo"
)

// Node is what the spend pipeline needs from bitcoind.
type Node interface {
	utxo.Scanner
	fee.Source
	SendRawTransaction(ctx context.Context, txHex string) (string, error)
}

// Chain reads blocks; used to find coinbase outputs.
type Chain interface {
	GetBlockHash(ctx context.Context, height int64) (string, error)
	GetBlock(ctx context.Context, hash string) (*bitcoin.Block, error)
}

// Miner mines regtest blocks.
type Miner interface {
	GenerateToAddress(ctx context.Context, blocks int, address string) ([]string, error)
}

// WalletManager manages node-side wallets.
type WalletManager interface {
	ListWalletDir(ctx context.Context) ([]string, error)
	CreateWallet(ctx context.Context, name string) error
	LoadWallet(ctx context.Context, name string) error
	UnloadWallet(ctx context.Context, name string) error
}

var (
	_ Node          = (*bitcoin.RPCClient)(nil)
	_ Chain         = (*bitcoin.RPCClient)(nil)
	_ Miner         = (*bitcoin.RPCClient)(nil)
	_ WalletManager = (*bitcoin.RPCClient)(nil)
	_ Node          = (*bitcoin.MockRPC)(nil)
)
