package utxo

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/djkazic/p2wpkh-go/internal/bitcoin"
	"github.com/djkazic/p2wpkh-go/internal/keys"
	"github.com/djkazic/p2wpkh-go/pkg/util"
)

const fundingTxID = "9f96ade4b41d5433f4eda31e1738ec2b36f6e7d1420d94a6af99801a88f7f7ff"

func testAddr(t *testing.T, seed byte) keys.Address {
	t.Helper()
	secret := make([]byte, 32)
	secret[31] = seed
	kp, err := keys.NewKeyPair(secret)
	if err != nil {
		t.Fatalf("NewKeyPair: %v", err)
	}
	addr, err := kp.Address(keys.Regtest)
	if err != nil {
		t.Fatalf("Address: %v", err)
	}
	return addr
}

func TestFindUTXOs_NeverFunded(t *testing.T) {
	mock := bitcoin.NewMockRPC()
	l := NewLocator(mock, zap.NewNop())

	utxos, err := l.FindUTXOs(context.Background(), testAddr(t, 1))
	if err != nil {
		t.Fatalf("FindUTXOs: %v", err)
	}
	if utxos == nil || len(utxos) != 0 {
		t.Errorf("utxos = %#v, want empty non-nil", utxos)
	}
}

func TestFindUTXOs_ConvertsNodeOutputs(t *testing.T) {
	mock := bitcoin.NewMockRPC()
	mock.BlockCount = 150
	addr := testAddr(t, 1)
	script := addr.ScriptPubKey()
	mock.AddUnspent(addr.String(), bitcoin.ScanUnspent{
		TxID:         fundingTxID,
		Vout:         1,
		ScriptPubKey: util.BytesToHex(script),
		Amount:       "49.99999",
		Coinbase:     true,
		Height:       1,
	})

	l := NewLocator(mock, zap.NewNop())
	snap, err := l.Scan(context.Background(), addr)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if snap.Height != 150 || len(snap.UTXOs) != 1 || snap.Total != 4_999_999_000 {
		t.Fatalf("snapshot = %+v", snap)
	}
	u := snap.UTXOs[0]
	if u.OutPoint.String() != fundingTxID+":1" {
		t.Errorf("outpoint = %s", u.OutPoint)
	}
	if u.Value != 4_999_999_000 || !u.Coinbase || u.Height != 1 || u.Address != addr.String() {
		t.Errorf("utxo = %+v", u)
	}
	if !addr.PaysTo(u.PkScript) {
		t.Errorf("script %x does not pay %s", u.PkScript, addr)
	}

	bal, err := l.Balance(context.Background(), addr)
	if err != nil || bal != 4_999_999_000 {
		t.Errorf("Balance = %d, %v", bal, err)
	}
}

func TestFindUTXOs_ScanFailure(t *testing.T) {
	mock := bitcoin.NewMockRPC()
	mock.ScanTxOutSetErr = errors.New("connection refused")
	addr := testAddr(t, 1)

	_, err := NewLocator(mock, nil).FindUTXOs(context.Background(), addr)
	var scanErr *ScanError
	if !errors.As(err, &scanErr) {
		t.Fatalf("err = %v, want *ScanError", err)
	}
	if scanErr.Address != addr.String() || !errors.Is(err, mock.ScanTxOutSetErr) {
		t.Errorf("err = %+v", scanErr)
	}
	if mock.ScanCalls != 1 {
		t.Errorf("scan attempted %d times, want 1", mock.ScanCalls)
	}
}

func TestFindUTXOs_MalformedOutputs(t *testing.T) {
	addr := testAddr(t, 1)
	other := testAddr(t, 2)
	otherScript := other.ScriptPubKey()

	tests := []struct {
		name string
		u    bitcoin.ScanUnspent
	}{
		{"bad txid", bitcoin.ScanUnspent{TxID: "xyz", Amount: "1"}},
		{"sub-satoshi", bitcoin.ScanUnspent{TxID: fundingTxID, Amount: "0.000000001"}},
		{"foreign script", bitcoin.ScanUnspent{TxID: fundingTxID, Amount: "1", ScriptPubKey: util.BytesToHex(otherScript)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := bitcoin.NewMockRPC()
			mock.AddUnspent(addr.String(), tt.u)
			_, err := NewLocator(mock, nil).FindUTXOs(context.Background(), addr)
			var scanErr *ScanError
			if !errors.As(err, &scanErr) {
				t.Errorf("err = %v, want *ScanError", err)
			}
		})
	}
}

func TestDescriptor(t *testing.T) {
	addr := testAddr(t, 1)
	if got := Descriptor(addr); got != "addr("+addr.String()+")" {
		t.Errorf("Descriptor = %s", got)
	}
}
