package wallet

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/djkazic/p2wpkh-go/internal/bitcoin"
	"github.com/djkazic/p2wpkh-go/internal/keys"
	"github.com/djkazic/p2wpkh-go/internal/segwit"
	"github.com/djkazic/p2wpkh-go/pkg/util"
)

// CoinbaseUTXO returns the coinbase output of the block at height that pays
// owner. It reads the block directly, so it works before the scan index
// reflects the output.
func CoinbaseUTXO(ctx context.Context, chain Chain, height int64, owner keys.Address) (segwit.UTXO, error) {
	hash, err := chain.GetBlockHash(ctx, height)
	if err != nil {
		return segwit.UTXO{}, err
	}
	block, err := chain.GetBlock(ctx, hash)
	if err != nil {
		return segwit.UTXO{}, err
	}
	if len(block.Tx) == 0 {
		return segwit.UTXO{}, fmt.Errorf("block %s has no transactions", hash)
	}

	cb := block.Tx[0]
	script := owner.ScriptPubKey()
	for _, out := range cb.Vout {
		got, err := util.HexToBytes(out.ScriptPubKey.Hex)
		if err != nil || !owner.PaysTo(got) {
			continue
		}
		value, err := bitcoin.BTCToSats(out.Value)
		if err != nil {
			return segwit.UTXO{}, fmt.Errorf("coinbase %s:%d: %w", cb.TxID, out.N, err)
		}
		op, err := segwit.NewOutPointFromHex(cb.TxID, out.N)
		if err != nil {
			return segwit.UTXO{}, err
		}
		return segwit.UTXO{
			OutPoint: op,
			Value:    value,
			PkScript: script,
			Address:  owner.String(),
			Height:   height,
			Coinbase: true,
		}, nil
	}
	return segwit.UTXO{}, fmt.Errorf("coinbase of block %d does not pay %s", height, owner)
}

// Mine generates blocks paying to, returning their hashes in order.
func Mine(ctx context.Context, miner Miner, blocks int, to keys.Address, logger *zap.Logger) ([]string, error) {
	if blocks <= 0 {
		return nil, fmt.Errorf("invalid block count %d", blocks)
	}
	hashes, err := miner.GenerateToAddress(ctx, blocks, to.String())
	if err != nil {
		return nil, fmt.Errorf("generate %d blocks: %w", blocks, err)
	}
	if len(hashes) != blocks {
		return nil, fmt.Errorf("node mined %d of %d blocks", len(hashes), blocks)
	}
	if logger != nil {
		logger.Info("mined blocks",
			zap.Int("count", blocks),
			zap.String("address", to.String()),
			zap.String("last", hashes[len(hashes)-1]),
		)
	}
	return hashes, nil
}
