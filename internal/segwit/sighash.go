package segwit

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/djkazic/p2wpkh-go/internal/keys"
	"github.com/djkazic/p2wpkh-go/pkg/util"
)

// SigHashType selects which parts of the transaction a signature commits to.
type SigHashType uint32

// Hash types. ALL commits to every output, NONE to none, and SINGLE to the
// output at the signed input's index. ANYONECANPAY may be or'ed with any of
// them to commit to the signed input alone.
const (
	SigHashAll          SigHashType = 0x01
	SigHashNone         SigHashType = 0x02
	SigHashSingle       SigHashType = 0x03
	SigHashAnyOneCanPay SigHashType = 0x80

	sigHashMask = 0x1f
)

func (t SigHashType) base() SigHashType {
	return t & sigHashMask
}

func (t SigHashType) anyoneCanPay() bool {
	return t&SigHashAnyOneCanPay != 0
}

// Valid reports whether t is one of the defined types, with or without
// ANYONECANPAY, and fits in the single byte appended to signatures.
func (t SigHashType) Valid() bool {
	if t > 0xff || t&^(sigHashMask|SigHashAnyOneCanPay) != 0 {
		return false
	}
	switch t.base() {
	case SigHashAll, SigHashNone, SigHashSingle:
		return true
	default:
		return false
	}
}

func (t SigHashType) String() string {
	var name string
	switch t.base() {
	case SigHashAll:
		name = "ALL"
	case SigHashNone:
		name = "NONE"
	case SigHashSingle:
		name = "SINGLE"
	default:
		return fmt.Sprintf("SigHashType(0x%02x)", uint32(t))
	}
	if t.anyoneCanPay() {
		name += "|ANYONECANPAY"
	}
	return name
}

// SighashCache holds the BIP143 midstate hashes of one transaction so they
// are computed once for all of its inputs. The transaction must not have its
// inputs, outputs, sequences or lock time changed while the cache is in use;
// populating witnesses is fine.
type SighashCache struct {
	tx *Transaction

	once         sync.Once
	hashPrevouts [32]byte
	hashSequence [32]byte
	hashOutputs  [32]byte
}

// NewSighashCache returns a cache bound to tx.
func NewSighashCache(tx *Transaction) *SighashCache {
	return &SighashCache{tx: tx}
}

func (c *SighashCache) midstate() {
	c.once.Do(func() {
		var prevouts, sequences, outputs bytes.Buffer
		for _, in := range c.tx.Inputs {
			prevouts.Write(in.PreviousOutPoint.Hash[:])
			prevouts.Write(util.Uint32ToBytes(in.PreviousOutPoint.Index))
			sequences.Write(util.Uint32ToBytes(in.Sequence))
		}
		for _, out := range c.tx.Outputs {
			writeTxOut(&outputs, out)
		}
		c.hashPrevouts = util.DoubleSHA256(prevouts.Bytes())
		c.hashSequence = util.DoubleSHA256(sequences.Bytes())
		c.hashOutputs = util.DoubleSHA256(outputs.Bytes())
	})
}

// P2WPKHSignatureHash computes the BIP143 digest for input idx spending a
// P2WPKH output with the given script and value.
func (c *SighashCache) P2WPKHSignatureHash(idx int, spentScript []byte, spentValue int64, hashType SigHashType) ([32]byte, error) {
	tx := c.tx
	if idx < 0 || idx >= len(tx.Inputs) {
		return [32]byte{}, &SighashError{Reason: fmt.Sprintf("input index %d out of range [0, %d)", idx, len(tx.Inputs))}
	}
	program, ok := keys.ExtractP2WPKHProgram(spentScript)
	if !ok {
		return [32]byte{}, &SighashError{Reason: fmt.Sprintf("spent script %x is not a p2wpkh program", spentScript)}
	}
	if spentValue < 0 {
		return [32]byte{}, &SighashError{Reason: fmt.Sprintf("negative spent value %d", spentValue)}
	}
	if !hashType.Valid() {
		return [32]byte{}, &SighashError{Reason: fmt.Sprintf("unsupported hash type %s", hashType)}
	}

	c.midstate()

	var zero [32]byte
	hashPrevouts, hashSequence, hashOutputs := zero, zero, zero

	if !hashType.anyoneCanPay() {
		hashPrevouts = c.hashPrevouts
		if hashType.base() == SigHashAll {
			hashSequence = c.hashSequence
		}
	}

	switch {
	case hashType.base() != SigHashSingle && hashType.base() != SigHashNone:
		hashOutputs = c.hashOutputs
	case hashType.base() == SigHashSingle && idx < len(tx.Outputs):
		var out bytes.Buffer
		writeTxOut(&out, tx.Outputs[idx])
		hashOutputs = util.DoubleSHA256(out.Bytes())
	}

	in := tx.Inputs[idx]
	var preimage bytes.Buffer
	preimage.Write(util.Uint32ToBytes(uint32(tx.Version)))
	preimage.Write(hashPrevouts[:])
	preimage.Write(hashSequence[:])
	preimage.Write(in.PreviousOutPoint.Hash[:])
	preimage.Write(util.Uint32ToBytes(in.PreviousOutPoint.Index))
	writeVarBytes(&preimage, keys.P2PKHScriptCode(program))
	preimage.Write(util.Uint64ToBytes(uint64(spentValue)))
	preimage.Write(util.Uint32ToBytes(in.Sequence))
	preimage.Write(hashOutputs[:])
	preimage.Write(util.Uint32ToBytes(tx.LockTime))
	preimage.Write(util.Uint32ToBytes(uint32(hashType)))

	return util.DoubleSHA256(preimage.Bytes()), nil
}

// ComputeP2WPKHSighash is the one-shot form of
// SighashCache.P2WPKHSignatureHash. It is a pure function of its arguments.
func ComputeP2WPKHSighash(tx *Transaction, idx int, spentScript []byte, spentValue int64, hashType SigHashType) ([32]byte, error) {
	return NewSighashCache(tx).P2WPKHSignatureHash(idx, spentScript, spentValue, hashType)
}
