package segwit

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

const (
	// placeholderSigLen is the longest DER-encoded secp256k1 signature plus
	// its hash-type byte, used for worst-case size estimation.
	placeholderSigLen = 73
	compressedKeyLen  = 33

	// DustLimit is the smallest P2WPKH output relayed by default policy.
	DustLimit int64 = 294
)

// FeeRate is a price in satoshis per virtual byte.
type FeeRate int64

// FeePolicy selects how the fee is derived from a FeeRate.
type FeePolicy uint8

const (
	// PerVByte charges rate × estimated vsize of the signed transaction.
	PerVByte FeePolicy = iota
	// FlatFee subtracts the rate itself as an absolute per-transaction fee.
	FlatFee
)

// ParseFeePolicy accepts "vsize" and "flat".
func ParseFeePolicy(s string) (FeePolicy, error) {
	switch s {
	case "vsize", "per-vbyte":
		return PerVByte, nil
	case "flat":
		return FlatFee, nil
	default:
		return 0, fmt.Errorf("unknown fee policy %q", s)
	}
}

func (p FeePolicy) String() string {
	switch p {
	case PerVByte:
		return "vsize"
	case FlatFee:
		return "flat"
	default:
		return fmt.Sprintf("FeePolicy(%d)", uint8(p))
	}
}

// Assembler builds unsigned single-input, single-output transactions.
type Assembler struct {
	policy FeePolicy
	logger *zap.Logger
}

// NewAssembler creates an assembler charging fees under policy.
func NewAssembler(policy FeePolicy, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{policy: policy, logger: logger}
}

// Policy returns the assembler's fee policy.
func (a *Assembler) Policy() FeePolicy {
	return a.policy
}

// Build spends utxo in full to destScript, less the fee. It fails with
// ErrInsufficientFunds when nothing positive would remain.
func (a *Assembler) Build(utxo UTXO, destScript []byte, rate FeeRate) (*Transaction, error) {
	if len(destScript) == 0 {
		return nil, fmt.Errorf("empty destination script")
	}
	if rate < 0 {
		return nil, fmt.Errorf("negative fee rate %d", rate)
	}

	tx := skeleton(utxo, destScript)

	fee, err := a.fee(tx, rate)
	if err != nil {
		return nil, err
	}
	value := utxo.Value - fee
	if value <= 0 {
		return nil, &InsufficientFundsError{Available: utxo.Value, Fee: fee}
	}
	tx.Outputs[0].Value = value

	if value < DustLimit {
		a.logger.Warn("output below dust limit",
			zap.Int64("value", value),
			zap.Int64("dust_limit", DustLimit),
		)
	}

	a.logger.Debug("transaction assembled",
		zap.Stringer("outpoint", utxo.OutPoint),
		zap.Int64("input_value", utxo.Value),
		zap.Int64("output_value", value),
		zap.Int64("fee", fee),
		zap.Stringer("policy", a.policy),
	)
	return tx, nil
}

// Fee returns the fee Build would charge for spending utxo to destScript.
func (a *Assembler) Fee(utxo UTXO, destScript []byte, rate FeeRate) (int64, error) {
	return a.fee(skeleton(utxo, destScript), rate)
}

func (a *Assembler) fee(tx *Transaction, rate FeeRate) (int64, error) {
	switch a.policy {
	case FlatFee:
		return int64(rate), nil
	case PerVByte:
		vsize := int64(EstimateVSize(tx))
		if rate > 0 && vsize > math.MaxInt64/int64(rate) {
			return 0, fmt.Errorf("fee overflow: rate %d × vsize %d", rate, vsize)
		}
		return int64(rate) * vsize, nil
	default:
		return 0, fmt.Errorf("unknown fee policy %s", a.policy)
	}
}

// EstimateVSize returns the vsize tx will have once every input carries a
// worst-case P2WPKH witness.
func EstimateVSize(tx *Transaction) int {
	est := tx.Copy()
	for _, in := range est.Inputs {
		in.Witness = Witness{
			make([]byte, placeholderSigLen),
			make([]byte, compressedKeyLen),
		}
	}
	return est.VSize()
}

func skeleton(utxo UTXO, destScript []byte) *Transaction {
	return &Transaction{
		Version: TxVersion,
		Inputs: []*TxIn{{
			PreviousOutPoint: utxo.OutPoint,
			SignatureScript:  nil,
			Sequence:         MaxSequence,
		}},
		Outputs: []*TxOut{{
			Value:    0,
			PkScript: cloneBytes(destScript),
		}},
		LockTime: NoLockTime,
	}
}
