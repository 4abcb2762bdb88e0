// Package journal keeps a local, append-only record of broadcast
// transactions.
package journal

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/djkazic/p2wpkh-go/pkg/util"
)

// maxRawTxSize bounds a decompressed transaction.
const maxRawTxSize = 4_000_000

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(1<<23))
)

// Record describes one broadcast spend.
type Record struct {
	TxID        [32]byte  // internal byte order
	RawTx       []byte    // full serialization including witness
	Spent       string    // outpoint, txid:vout
	SpentValue  int64     // satoshis
	Destination string    // address paid
	OutputValue int64     // satoshis
	Fee         int64     // satoshis
	FeeRate     int64     // sat/vB, or absolute sats under the flat policy
	FeePolicy   string    // "vsize" or "flat"
	Fallback    bool      // rate came from the fallback
	Broadcast   time.Time // when the node accepted it
}

// TxIDHex returns the txid in display order.
func (r *Record) TxIDHex() string {
	return util.HashToHex(r.TxID)
}

// diskRecord is the stored form. RawTx is zstd compressed.
type diskRecord struct {
	TxID        [32]byte `cbor:"1,keyasint"`
	RawTx       []byte   `cbor:"2,keyasint"`
	Spent       string   `cbor:"3,keyasint"`
	SpentValue  int64    `cbor:"4,keyasint"`
	Destination string   `cbor:"5,keyasint"`
	OutputValue int64    `cbor:"6,keyasint"`
	Fee         int64    `cbor:"7,keyasint"`
	FeeRate     int64    `cbor:"8,keyasint"`
	FeePolicy   string   `cbor:"9,keyasint"`
	Fallback    bool     `cbor:"10,keyasint"`
	Broadcast   int64    `cbor:"11,keyasint"` // unix nanoseconds
}

func encodeRecord(r *Record) ([]byte, error) {
	data, err := cbor.Marshal(diskRecord{
		TxID:        r.TxID,
		RawTx:       zstdEncoder.EncodeAll(r.RawTx, nil),
		Spent:       r.Spent,
		SpentValue:  r.SpentValue,
		Destination: r.Destination,
		OutputValue: r.OutputValue,
		Fee:         r.Fee,
		FeeRate:     r.FeeRate,
		FeePolicy:   r.FeePolicy,
		Fallback:    r.Fallback,
		Broadcast:   r.Broadcast.UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*Record, error) {
	var d diskRecord
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	raw, err := zstdDecoder.DecodeAll(d.RawTx, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress raw tx: %w", err)
	}
	if len(raw) > maxRawTxSize {
		return nil, fmt.Errorf("raw tx too large: %d bytes", len(raw))
	}
	return &Record{
		TxID:        d.TxID,
		RawTx:       raw,
		Spent:       d.Spent,
		SpentValue:  d.SpentValue,
		Destination: d.Destination,
		OutputValue: d.OutputValue,
		Fee:         d.Fee,
		FeeRate:     d.FeeRate,
		FeePolicy:   d.FeePolicy,
		Fallback:    d.Fallback,
		Broadcast:   time.Unix(0, d.Broadcast),
	}, nil
}
