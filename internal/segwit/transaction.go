// Package segwit builds, hashes, signs and encodes single-key P2WPKH
// transactions.
package segwit

import (
	"bytes"
	"fmt"

	"github.com/djkazic/p2wpkh-go/pkg/util"
)

const (
	// TxVersion is the standard transaction version.
	TxVersion int32 = 2

	// MaxSequence disables relative lock-time semantics for an input.
	MaxSequence uint32 = 0xffffffff

	// NoLockTime makes a transaction immediately spendable.
	NoLockTime uint32 = 0
)

// OutPoint references an output of a prior transaction. Hash is in internal
// byte order; String renders display order.
type OutPoint struct {
	Hash  [32]byte
	Index uint32
}

// NewOutPointFromHex parses a display-order txid as returned by bitcoind.
func NewOutPointFromHex(txid string, index uint32) (OutPoint, error) {
	h, err := util.HexToHash(txid)
	if err != nil {
		return OutPoint{}, fmt.Errorf("parse txid %q: %w", txid, err)
	}
	return OutPoint{Hash: h, Index: index}, nil
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", util.HashToHex(o.Hash), o.Index)
}

// Witness is the stack of data items proving authorization to spend an input.
type Witness [][]byte

// TxIn is a transaction input. Witness is populated only after signing.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32
	Witness          Witness
}

// TxOut is a transaction output paying Value satoshis to PkScript.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// Transaction is an ordered set of inputs and outputs with a version and
// absolute lock time.
type Transaction struct {
	Version  int32
	Inputs   []*TxIn
	Outputs  []*TxOut
	LockTime uint32
}

// HasWitness reports whether any input carries witness data.
func (tx *Transaction) HasWitness() bool {
	for _, in := range tx.Inputs {
		if len(in.Witness) > 0 {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of the transaction.
func (tx *Transaction) Copy() *Transaction {
	out := &Transaction{
		Version:  tx.Version,
		LockTime: tx.LockTime,
		Inputs:   make([]*TxIn, len(tx.Inputs)),
		Outputs:  make([]*TxOut, len(tx.Outputs)),
	}
	for i, in := range tx.Inputs {
		c := &TxIn{
			PreviousOutPoint: in.PreviousOutPoint,
			SignatureScript:  cloneBytes(in.SignatureScript),
			Sequence:         in.Sequence,
		}
		if in.Witness != nil {
			c.Witness = make(Witness, len(in.Witness))
			for j, item := range in.Witness {
				c.Witness[j] = cloneBytes(item)
			}
		}
		out.Inputs[i] = c
	}
	for i, o := range tx.Outputs {
		out.Outputs[i] = &TxOut{Value: o.Value, PkScript: cloneBytes(o.PkScript)}
	}
	return out
}

// Equal reports whether two transactions have identical fields. Nil and
// empty byte slices compare equal, as they encode identically.
func (tx *Transaction) Equal(other *Transaction) bool {
	if tx == nil || other == nil {
		return tx == other
	}
	if tx.Version != other.Version || tx.LockTime != other.LockTime {
		return false
	}
	if len(tx.Inputs) != len(other.Inputs) || len(tx.Outputs) != len(other.Outputs) {
		return false
	}
	for i, a := range tx.Inputs {
		b := other.Inputs[i]
		if a.PreviousOutPoint != b.PreviousOutPoint || a.Sequence != b.Sequence {
			return false
		}
		if !bytes.Equal(a.SignatureScript, b.SignatureScript) {
			return false
		}
		if len(a.Witness) != len(b.Witness) {
			return false
		}
		for j := range a.Witness {
			if !bytes.Equal(a.Witness[j], b.Witness[j]) {
				return false
			}
		}
	}
	for i, a := range tx.Outputs {
		b := other.Outputs[i]
		if a.Value != b.Value || !bytes.Equal(a.PkScript, b.PkScript) {
			return false
		}
	}
	return true
}

// UTXO is an unspent output observed by a locator snapshot. It is stale as
// soon as any transaction spends it.
type UTXO struct {
	OutPoint OutPoint
	Value    int64 // satoshis
	PkScript []byte
	Address  string
	Height   int64
	Coinbase bool
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
