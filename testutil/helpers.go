package testutil

import (
	"encoding/hex"
	"testing"

	"github.com/djkazic/p2wpkh-go/internal/segwit"
)

// MustDecodeHex decodes hex or fails the test.
func MustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("invalid hex %q: %v", s, err)
	}
	return b
}

// MustDecodeTx decodes a hex transaction or fails the test.
func MustDecodeTx(t *testing.T, s string) *segwit.Transaction {
	t.Helper()
	tx, err := segwit.DeserializeHex(s)
	if err != nil {
		t.Fatalf("decode tx: %v", err)
	}
	return tx
}
