// Package utxo finds unspent outputs owned by an address through the node's
// UTXO set scan and chooses which of them to spend.
package utxo

import (
	"bytes"
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/djkazic/p2wpkh-go/internal/bitcoin"
	"github.com/djkazic/p2wpkh-go/internal/keys"
	"github.com/djkazic/p2wpkh-go/internal/metrics"
	"github.com/djkazic/p2wpkh-go/internal/segwit"
	"github.com/djkazic/p2wpkh-go/pkg/util"
)

// Scanner is the node call the locator needs.
type Scanner interface {
	ScanTxOutSet(ctx context.Context, descriptors []string) (*bitcoin.ScanResult, error)
}

// ScanError is returned when the UTXO set of an address cannot be read.
// The scan is not retried.
type ScanError struct {
	Address string
	Err     error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Address, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Snapshot is the result of one scan. It is stale as soon as any of its
// outputs is spent or a block is mined.
type Snapshot struct {
	Height int64 // chain tip the scan ran against
	UTXOs  []segwit.UTXO
	Total  int64 // satoshis
}

// Locator queries the node for outputs paying an address. Nothing is cached.
type Locator struct {
	scanner Scanner
	logger  *zap.Logger
}

// NewLocator creates a locator backed by scanner.
func NewLocator(scanner Scanner, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{scanner: scanner, logger: logger}
}

// Descriptor returns the output descriptor matching addr.
func Descriptor(addr keys.Address) string {
	return "addr(" + addr.String() + ")"
}

// Scan runs a UTXO set scan for addr. A never-funded address yields an
// empty, non-nil UTXO list.
func (l *Locator) Scan(ctx context.Context, addr keys.Address) (*Snapshot, error) {
	snap, err := l.scan(ctx, addr)
	if err != nil {
		metrics.UTXOScans.WithLabelValues("error").Inc()
		return nil, &ScanError{Address: addr.String(), Err: err}
	}
	metrics.UTXOScans.WithLabelValues("ok").Inc()
	metrics.UTXOsFound.Add(float64(len(snap.UTXOs)))

	l.logger.Debug("utxo scan complete",
		zap.String("address", addr.String()),
		zap.Int("utxos", len(snap.UTXOs)),
		zap.Int64("total", snap.Total),
		zap.Int64("height", snap.Height),
	)
	return snap, nil
}

func (l *Locator) scan(ctx context.Context, addr keys.Address) (*Snapshot, error) {
	res, err := l.scanner.ScanTxOutSet(ctx, []string{Descriptor(addr)})
	if err != nil {
		return nil, err
	}

	script := addr.ScriptPubKey()
	snap := &Snapshot{Height: res.Height, UTXOs: make([]segwit.UTXO, 0, len(res.Unspents))}
	for _, u := range res.Unspents {
		op, err := segwit.NewOutPointFromHex(u.TxID, u.Vout)
		if err != nil {
			return nil, err
		}
		value, err := bitcoin.BTCToSats(u.Amount)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", op, err)
		}
		if u.ScriptPubKey != "" {
			got, err := util.HexToBytes(u.ScriptPubKey)
			if err != nil {
				return nil, fmt.Errorf("output %s script: %w", op, err)
			}
			if !bytes.Equal(got, script) {
				return nil, fmt.Errorf("output %s script %x does not pay %s", op, got, addr)
			}
		}
		snap.UTXOs = append(snap.UTXOs, segwit.UTXO{
			OutPoint: op,
			Value:    value,
			PkScript: script,
			Address:  addr.String(),
			Height:   u.Height,
			Coinbase: u.Coinbase,
		})
		snap.Total += value
	}
	return snap, nil
}

// FindUTXOs returns the outputs currently paying addr.
func (l *Locator) FindUTXOs(ctx context.Context, addr keys.Address) ([]segwit.UTXO, error) {
	snap, err := l.Scan(ctx, addr)
	if err != nil {
		return nil, err
	}
	return snap.UTXOs, nil
}

// Balance returns the total value, in satoshis, currently paying addr.
func (l *Locator) Balance(ctx context.Context, addr keys.Address) (int64, error) {
	snap, err := l.Scan(ctx, addr)
	if err != nil {
		return 0, err
	}
	return snap.Total, nil
}
