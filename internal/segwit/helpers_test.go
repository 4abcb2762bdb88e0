package segwit

import (
	"bytes"
	"encoding/hex"
	"testing"

	btcwire "github.com/btcsuite/btcd/wire"

	"github.com/djkazic/p2wpkh-go/internal/keys"
	"github.com/djkazic/p2wpkh-go/pkg/util"
)

// testKey derives a deterministic key pair from a repeated seed byte.
func testKey(t *testing.T, seed byte) *keys.KeyPair {
	t.Helper()
	kp, err := keys.NewKeyPair(bytes.Repeat([]byte{seed}, 32))
	if err != nil {
		t.Fatalf("NewKeyPair(%#x): %v", seed, err)
	}
	return kp
}

func testAddress(t *testing.T, kp *keys.KeyPair) keys.Address {
	t.Helper()
	addr, err := kp.Address(keys.Regtest)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	return addr
}

// testUTXO returns a UTXO owned by kp with a deterministic outpoint.
func testUTXO(t *testing.T, kp *keys.KeyPair, value int64) UTXO {
	t.Helper()
	addr := testAddress(t, kp)
	return UTXO{
		OutPoint: OutPoint{Hash: util.DoubleSHA256(kp.PublicKey()), Index: 0},
		Value:    value,
		PkScript: addr.ScriptPubKey(),
		Address:  addr.String(),
		Height:   1,
		Coinbase: true,
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid hex %q: %v", s, err)
	}
	return b
}

// toBtcd decodes our encoding with btcd's parser, an independent codec.
func toBtcd(t *testing.T, tx *Transaction) *btcwire.MsgTx {
	t.Helper()
	msg := btcwire.NewMsgTx(0)
	if err := msg.Deserialize(bytes.NewReader(Serialize(tx))); err != nil {
		t.Fatalf("btcd deserialize: %v", err)
	}
	return msg
}
