package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/djkazic/p2wpkh-go/internal/bitcoin"
	"github.com/djkazic/p2wpkh-go/internal/fee"
	"github.com/djkazic/p2wpkh-go/internal/journal"
	"github.com/djkazic/p2wpkh-go/internal/keys"
	"github.com/djkazic/p2wpkh-go/internal/metrics"
	"github.com/djkazic/p2wpkh-go/internal/segwit"
	"github.com/djkazic/p2wpkh-go/internal/utxo"
)

// Options configures a Spender.
type Options struct {
	Network   keys.Network
	FeePolicy segwit.FeePolicy
	Strategy  utxo.Strategy
	HashType  segwit.SigHashType
	Fee       fee.Config

	// FixedRate skips estimation when positive.
	FixedRate segwit.FeeRate

	// SkipMaturity allows selecting immature coinbase outputs.
	SkipMaturity bool
}

// DefaultOptions returns regtest spend settings.
func DefaultOptions() Options {
	return Options{
		Network:   keys.Regtest,
		FeePolicy: segwit.PerVByte,
		Strategy:  utxo.FirstMatch,
		HashType:  segwit.SigHashAll,
		Fee:       fee.DefaultConfig(),
	}
}

// Result describes a broadcast spend.
type Result struct {
	TxID     string
	Tx       *segwit.Transaction
	Hex      string
	Spent    segwit.UTXO
	Fee      int64
	FeeRate  segwit.FeeRate
	Fallback bool
}

// Spender moves the full value of one output to a destination.
type Spender struct {
	node      Node
	locator   *utxo.Locator
	fees      *fee.Estimator
	assembler *segwit.Assembler
	journal   *journal.Store
	opts      Options
	logger    *zap.Logger
}

// NewSpender creates a spender. store may be nil to skip journaling.
func NewSpender(node Node, opts Options, store *journal.Store, logger *zap.Logger) (*Spender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !opts.HashType.Valid() {
		return nil, fmt.Errorf("invalid hash type %s", opts.HashType)
	}
	fees, err := fee.NewEstimator(node, opts.Fee, logger.Named("fee"))
	if err != nil {
		return nil, err
	}
	return &Spender{
		node:      node,
		locator:   utxo.NewLocator(node, logger.Named("utxo")),
		fees:      fees,
		assembler: segwit.NewAssembler(opts.FeePolicy, logger.Named("assembler")),
		journal:   store,
		opts:      opts,
		logger:    logger,
	}, nil
}

// Locator returns the spender's UTXO locator.
func (s *Spender) Locator() *utxo.Locator {
	return s.locator
}

func (s *Spender) rate(ctx context.Context) (segwit.FeeRate, bool) {
	if s.opts.FixedRate > 0 {
		return s.opts.FixedRate, false
	}
	return s.fees.Rate(ctx)
}

// Spend pays one output owned by key, chosen by the configured strategy, to
// dest. The UTXO set is scanned fresh on every call.
func (s *Spender) Spend(ctx context.Context, key *keys.KeyPair, dest keys.Address) (*Result, error) {
	if key == nil || key.Zeroed() {
		return nil, segwit.ErrKeyUnavailable
	}
	owner, err := key.Address(s.opts.Network)
	if err != nil {
		return nil, err
	}

	snap, err := s.locator.Scan(ctx, owner)
	if err != nil {
		return nil, err
	}
	utxos := snap.UTXOs
	if !s.opts.SkipMaturity {
		utxos = utxo.Mature(utxos, snap.Height)
	}
	if len(utxos) == 0 {
		return nil, fmt.Errorf("no spendable outputs for %s: %w", owner, segwit.ErrInsufficientFunds)
	}

	rate, fallback := s.rate(ctx)

	// Every candidate yields the same one-in, one-out shape, so one fee
	// applies to all of them.
	need, err := s.assembler.Fee(utxos[0], dest.ScriptPubKey(), rate)
	if err != nil {
		return nil, err
	}
	chosen, err := utxo.Select(utxos, need+1, s.opts.Strategy)
	if err != nil {
		return nil, err
	}
	return s.spend(ctx, chosen, key, dest, rate, fallback)
}

// SpendOutput pays u, which must be owned by key, to dest.
func (s *Spender) SpendOutput(ctx context.Context, u segwit.UTXO, key *keys.KeyPair, dest keys.Address) (*Result, error) {
	if key == nil || key.Zeroed() {
		return nil, segwit.ErrKeyUnavailable
	}
	rate, fallback := s.rate(ctx)
	return s.spend(ctx, u, key, dest, rate, fallback)
}

func (s *Spender) spend(ctx context.Context, u segwit.UTXO, key *keys.KeyPair, dest keys.Address, rate segwit.FeeRate, fallback bool) (*Result, error) {
	tx, err := s.assembler.Build(u, dest.ScriptPubKey(), rate)
	if err != nil {
		return nil, err
	}

	if err := segwit.SignInput(tx, 0, u, key, s.opts.HashType); err != nil {
		metrics.Signatures.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("sign %s: %w", u.OutPoint, err)
	}
	metrics.Signatures.WithLabelValues("ok").Inc()

	txHex := segwit.SerializeHex(tx)
	localID := tx.TxIDHex()
	paid := u.Value - tx.Outputs[0].Value

	s.logger.Info("signed transaction",
		zap.String("txid", localID),
		zap.Stringer("spends", u.OutPoint),
		zap.String("destination", dest.String()),
		zap.Int64("value", tx.Outputs[0].Value),
		zap.Int64("fee", paid),
		zap.Int("vsize", tx.VSize()),
	)
	s.logger.Debug("signed transaction hex", zap.String("hex", txHex))

	nodeID, err := s.node.SendRawTransaction(ctx, txHex)
	if err != nil {
		var rejected *bitcoin.BroadcastRejectedError
		if errors.As(err, &rejected) {
			metrics.Broadcasts.WithLabelValues("rejected").Inc()
			s.logger.Warn("transaction rejected",
				zap.String("txid", localID),
				zap.Int("code", rejected.Code),
				zap.String("reason", rejected.Reason),
			)
		} else {
			metrics.Broadcasts.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	metrics.Broadcasts.WithLabelValues("ok").Inc()

	if nodeID != localID {
		s.logger.Warn("node reported a different txid",
			zap.String("local", localID),
			zap.String("node", nodeID),
		)
	}
	s.logger.Info("transaction broadcast", zap.String("txid", nodeID))

	res := &Result{
		TxID:     nodeID,
		Tx:       tx,
		Hex:      txHex,
		Spent:    u,
		Fee:      paid,
		FeeRate:  rate,
		Fallback: fallback,
	}
	s.record(res, dest)
	return res, nil
}

// record journals a broadcast. Failures are logged; the spend already
// happened.
func (s *Spender) record(res *Result, dest keys.Address) {
	if s.journal == nil {
		return
	}
	err := s.journal.Put(&journal.Record{
		TxID:        res.Tx.TxID(),
		RawTx:       segwit.Serialize(res.Tx),
		Spent:       res.Spent.OutPoint.String(),
		SpentValue:  res.Spent.Value,
		Destination: dest.String(),
		OutputValue: res.Tx.Outputs[0].Value,
		Fee:         res.Fee,
		FeeRate:     int64(res.FeeRate),
		FeePolicy:   s.opts.FeePolicy.String(),
		Fallback:    res.Fallback,
		Broadcast:   time.Now(),
	})
	if err != nil {
		s.logger.Warn("journal write failed", zap.String("txid", res.TxID), zap.Error(err))
	}
}
