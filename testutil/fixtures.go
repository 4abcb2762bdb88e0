package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/djkazic/p2wpkh-go/internal/bitcoin"
	"github.com/djkazic/p2wpkh-go/internal/keys"
	"github.com/djkazic/p2wpkh-go/internal/segwit"
	"github.com/djkazic/p2wpkh-go/pkg/util"
)

// CoinbaseValue is the regtest block subsidy at low heights.
const CoinbaseValue int64 = 5_000_000_000

// SampleKey returns a deterministic key whose secret is seed repeated.
// Seeds 0x01 through 0x7f are always valid scalars.
func SampleKey(seed byte) *keys.KeyPair {
	kp, err := keys.NewKeyPair(bytes.Repeat([]byte{seed}, 32))
	if err != nil {
		panic(fmt.Sprintf("testutil: seed %#x: %v", seed, err))
	}
	return kp
}

// SampleAddress returns the regtest address of SampleKey(seed).
func SampleAddress(seed byte) keys.Address {
	addr, err := SampleKey(seed).Address(keys.Regtest)
	if err != nil {
		panic(fmt.Sprintf("testutil: seed %#x: %v", seed, err))
	}
	return addr
}

// SampleTxID returns a display-order txid derived from n.
func SampleTxID(n uint32) string {
	return util.HashToHex(util.DoubleSHA256(util.Uint32ToBytes(n)))
}

// SampleUTXO returns an output of value sats paying addr.
func SampleUTXO(addr keys.Address, n uint32, value int64) segwit.UTXO {
	op, _ := segwit.NewOutPointFromHex(SampleTxID(n), 0)
	return segwit.UTXO{
		OutPoint: op,
		Value:    value,
		PkScript: addr.ScriptPubKey(),
		Address:  addr.String(),
		Height:   1,
	}
}

// Fund makes an output of sats paying addr visible to scans on mock.
func Fund(mock *bitcoin.MockRPC, addr keys.Address, txid string, vout uint32, sats, height int64, coinbase bool) {
	mock.AddUnspent(addr.String(), bitcoin.ScanUnspent{
		TxID:         txid,
		Vout:         vout,
		ScriptPubKey: util.BytesToHex(addr.ScriptPubKey()),
		Amount:       jsonAmount(sats),
		Coinbase:     coinbase,
		Height:       height,
	})
}

// CoinbaseBlock returns a verbosity-2 block whose coinbase pays sats to addr.
func CoinbaseBlock(height int64, addr keys.Address, sats int64) *bitcoin.Block {
	txid := SampleTxID(uint32(height) | 0x80000000)
	return &bitcoin.Block{
		Hash:   util.HashToHex(util.DoubleSHA256([]byte(txid))),
		Height: height,
		Tx: []bitcoin.BlockTx{{
			TxID: txid,
			Hash: txid,
			Vout: []bitcoin.BlockTxOut{
				{
					Value: jsonAmount(sats),
					N:     0,
					ScriptPubKey: bitcoin.ScriptPubKey{
						Hex:     util.BytesToHex(addr.ScriptPubKey()),
						Address: addr.String(),
						Type:    "witness_v0_keyhash",
					},
				},
				{
					// witness commitment
					Value: "0.00000000",
					N:     1,
					ScriptPubKey: bitcoin.ScriptPubKey{
						Hex:  "6a24aa21a9ede2f61c3f71d1defd3fa999dfa36953755c690689799962b48bebd836974e8cf9",
						Type: "nulldata",
					},
				},
			},
		}},
	}
}

func jsonAmount(sats int64) json.Number {
	return json.Number(bitcoin.SatsToBTC(sats))
}
