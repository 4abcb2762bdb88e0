package segwit

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/djkazic/p2wpkh-go/pkg/util"
)

const (
	witnessMarker = 0x00
	witnessFlag   = 0x01

	// maxTxSize bounds decoding; no standard transaction exceeds a block.
	maxTxSize = 4_000_000

	// minimum encoded sizes, used to reject implausible counts early
	minTxInSize  = 32 + 4 + 1 + 4
	minTxOutSize = 8 + 1

	witnessScaleFactor = 4
)

// Serialize returns the canonical wire encoding. The segwit marker and flag
// are written iff at least one input carries a witness (BIP144).
//
// A transaction without inputs does not round-trip: its zero input count is
// read back as the segwit marker, so Deserialize rejects the bytes. Such a
// transaction is never valid on the network.
func Serialize(tx *Transaction) []byte {
	return encode(tx, tx.HasWitness())
}

// SerializeNoWitness returns the legacy encoding hashed into the txid.
func SerializeNoWitness(tx *Transaction) []byte {
	return encode(tx, false)
}

// SerializeHex is Serialize, hex encoded for sendrawtransaction.
func SerializeHex(tx *Transaction) string {
	return hex.EncodeToString(Serialize(tx))
}

func encode(tx *Transaction, withWitness bool) []byte {
	var buf bytes.Buffer

	buf.Write(util.Uint32ToBytes(uint32(tx.Version)))
	if withWitness {
		buf.WriteByte(witnessMarker)
		buf.WriteByte(witnessFlag)
	}

	buf.Write(util.WriteVarInt(uint64(len(tx.Inputs))))
	for _, in := range tx.Inputs {
		buf.Write(in.PreviousOutPoint.Hash[:])
		buf.Write(util.Uint32ToBytes(in.PreviousOutPoint.Index))
		writeVarBytes(&buf, in.SignatureScript)
		buf.Write(util.Uint32ToBytes(in.Sequence))
	}

	buf.Write(util.WriteVarInt(uint64(len(tx.Outputs))))
	for _, out := range tx.Outputs {
		writeTxOut(&buf, out)
	}

	if withWitness {
		for _, in := range tx.Inputs {
			buf.Write(util.WriteVarInt(uint64(len(in.Witness))))
			for _, item := range in.Witness {
				writeVarBytes(&buf, item)
			}
		}
	}

	buf.Write(util.Uint32ToBytes(tx.LockTime))
	return buf.Bytes()
}

func writeTxOut(buf *bytes.Buffer, out *TxOut) {
	buf.Write(util.Uint64ToBytes(uint64(out.Value)))
	writeVarBytes(buf, out.PkScript)
}

func writeVarBytes(buf *bytes.Buffer, b []byte) {
	buf.Write(util.WriteVarInt(uint64(len(b))))
	buf.Write(b)
}

// DeserializeHex decodes a hex transaction.
func DeserializeHex(s string) (*Transaction, error) {
	raw, err := util.HexToBytes(s)
	if err != nil {
		return nil, fmt.Errorf("decode tx hex: %w", err)
	}
	return Deserialize(raw)
}

// Deserialize decodes a wire-encoded transaction, with or without witness
// data. Trailing bytes are an error.
func Deserialize(data []byte) (*Transaction, error) {
	if len(data) > maxTxSize {
		return nil, fmt.Errorf("transaction too large: %d bytes", len(data))
	}
	r := &reader{data: data}

	version, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	tx := &Transaction{Version: int32(version)}

	// A zero input count followed by a non-zero byte is the segwit marker.
	withWitness := false
	if r.remaining() >= 2 && r.data[r.pos] == witnessMarker {
		if r.data[r.pos+1] != witnessFlag {
			return nil, fmt.Errorf("unknown witness flag 0x%02x", r.data[r.pos+1])
		}
		r.pos += 2
		withWitness = true
	}

	inCount, err := r.count(minTxInSize)
	if err != nil {
		return nil, fmt.Errorf("read input count: %w", err)
	}
	tx.Inputs = make([]*TxIn, inCount)
	for i := range tx.Inputs {
		in := &TxIn{}
		hash, err := r.bytes(32)
		if err != nil {
			return nil, fmt.Errorf("input %d outpoint: %w", i, err)
		}
		copy(in.PreviousOutPoint.Hash[:], hash)
		if in.PreviousOutPoint.Index, err = r.uint32(); err != nil {
			return nil, fmt.Errorf("input %d outpoint index: %w", i, err)
		}
		if in.SignatureScript, err = r.varBytes(); err != nil {
			return nil, fmt.Errorf("input %d script: %w", i, err)
		}
		if in.Sequence, err = r.uint32(); err != nil {
			return nil, fmt.Errorf("input %d sequence: %w", i, err)
		}
		tx.Inputs[i] = in
	}

	outCount, err := r.count(minTxOutSize)
	if err != nil {
		return nil, fmt.Errorf("read output count: %w", err)
	}
	tx.Outputs = make([]*TxOut, outCount)
	for i := range tx.Outputs {
		value, err := r.uint64()
		if err != nil {
			return nil, fmt.Errorf("output %d value: %w", i, err)
		}
		script, err := r.varBytes()
		if err != nil {
			return nil, fmt.Errorf("output %d script: %w", i, err)
		}
		tx.Outputs[i] = &TxOut{Value: int64(value), PkScript: script}
	}

	if withWitness {
		for i, in := range tx.Inputs {
			items, err := r.count(1)
			if err != nil {
				return nil, fmt.Errorf("input %d witness count: %w", i, err)
			}
			if items == 0 {
				continue
			}
			in.Witness = make(Witness, items)
			for j := range in.Witness {
				if in.Witness[j], err = r.varBytes(); err != nil {
					return nil, fmt.Errorf("input %d witness item %d: %w", i, j, err)
				}
			}
		}
		if !tx.HasWitness() {
			return nil, fmt.Errorf("witness flag set but all witnesses are empty")
		}
	}

	if tx.LockTime, err = r.uint32(); err != nil {
		return nil, fmt.Errorf("read lock time: %w", err)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after transaction", r.remaining())
	}
	return tx, nil
}

// TxID is the double-SHA256 of the legacy encoding, internal byte order.
func (tx *Transaction) TxID() [32]byte {
	return util.DoubleSHA256(SerializeNoWitness(tx))
}

// TxIDHex is TxID in display order.
func (tx *Transaction) TxIDHex() string {
	return util.HashToHex(tx.TxID())
}

// WTxID is the double-SHA256 of the full encoding, internal byte order.
func (tx *Transaction) WTxID() [32]byte {
	return util.DoubleSHA256(Serialize(tx))
}

// BaseSize is the size of the legacy encoding in bytes.
func (tx *Transaction) BaseSize() int {
	return len(SerializeNoWitness(tx))
}

// TotalSize is the size of the full encoding in bytes.
func (tx *Transaction) TotalSize() int {
	return len(Serialize(tx))
}

// Weight is base size × 3 + total size (BIP141).
func (tx *Transaction) Weight() int {
	return tx.BaseSize()*(witnessScaleFactor-1) + tx.TotalSize()
}

// VSize is the weight divided by four, rounded up.
func (tx *Transaction) VSize() int {
	return (tx.Weight() + witnessScaleFactor - 1) / witnessScaleFactor
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, fmt.Errorf("need %d bytes, have %d", n, r.remaining())
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) varInt() (uint64, error) {
	v, n, err := util.ReadVarInt(r.data[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// count reads a varint element count and rejects counts that cannot fit in
// the remaining data given the minimum encoded size of one element.
func (r *reader) count(minElemSize int) (int, error) {
	n, err := r.varInt()
	if err != nil {
		return 0, err
	}
	if n > uint64(r.remaining()/minElemSize) {
		return 0, fmt.Errorf("count %d exceeds remaining %d bytes", n, r.remaining())
	}
	return int(n), nil
}

func (r *reader) varBytes() ([]byte, error) {
	n, err := r.varInt()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.remaining()) {
		return nil, fmt.Errorf("length %d exceeds remaining %d bytes", n, r.remaining())
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return nil, err
	}
	return cloneBytes(b), nil
}
