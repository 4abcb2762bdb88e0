package segwit

import (
	"bytes"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuild_FlatFee(t *testing.T) {
	kp := testKey(t, 0x11)
	utxo := testUTXO(t, kp, 5_000_000_000)
	dest := testAddress(t, testKey(t, 0x22)).ScriptPubKey()

	tx, err := NewAssembler(FlatFee, zap.NewNop()).Build(utxo, dest, 1000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := tx.Outputs[0].Value; got != 4_999_999_000 {
		t.Errorf("output value = %d, want 4999999000", got)
	}
}

func TestBuild_PerVByte(t *testing.T) {
	kp := testKey(t, 0x11)
	utxo := testUTXO(t, kp, 100_000)
	dest := testAddress(t, testKey(t, 0x22)).ScriptPubKey()
	a := NewAssembler(PerVByte, zap.NewNop())

	for _, rate := range []FeeRate{0, 1, 5, 250} {
		tx, err := a.Build(utxo, dest, rate)
		if err != nil {
			t.Fatalf("rate %d: %v", rate, err)
		}
		want := utxo.Value - int64(rate)*110
		if got := tx.Outputs[0].Value; got != want {
			t.Errorf("rate %d: output value = %d, want %d", rate, got, want)
		}
		fee, err := a.Fee(utxo, dest, rate)
		if err != nil {
			t.Fatalf("Fee: %v", err)
		}
		if fee+tx.Outputs[0].Value != utxo.Value {
			t.Errorf("rate %d: fee %d + output %d != input %d", rate, fee, tx.Outputs[0].Value, utxo.Value)
		}
	}
}

func TestBuild_Shape(t *testing.T) {
	kp := testKey(t, 0x11)
	utxo := testUTXO(t, kp, 100_000)
	dest := testAddress(t, testKey(t, 0x22)).ScriptPubKey()

	tx, err := NewAssembler(PerVByte, nil).Build(utxo, dest, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tx.Version != 2 || tx.LockTime != 0 {
		t.Errorf("version %d locktime %d, want 2 and 0", tx.Version, tx.LockTime)
	}
	if len(tx.Inputs) != 1 || len(tx.Outputs) != 1 {
		t.Fatalf("got %d inputs %d outputs, want 1 and 1", len(tx.Inputs), len(tx.Outputs))
	}
	in := tx.Inputs[0]
	if in.PreviousOutPoint != utxo.OutPoint {
		t.Errorf("outpoint = %s, want %s", in.PreviousOutPoint, utxo.OutPoint)
	}
	if in.Sequence != MaxSequence {
		t.Errorf("sequence = %#x", in.Sequence)
	}
	if len(in.SignatureScript) != 0 || len(in.Witness) != 0 {
		t.Error("assembled input must be unsigned")
	}
	if !bytes.Equal(tx.Outputs[0].PkScript, dest) {
		t.Errorf("output script = %x, want %x", tx.Outputs[0].PkScript, dest)
	}

	// The transaction owns its script.
	dest[2] ^= 0xff
	if bytes.Equal(tx.Outputs[0].PkScript, dest) {
		t.Error("output script aliases the caller's slice")
	}
}

func TestBuild_InsufficientFunds(t *testing.T) {
	kp := testKey(t, 0x11)
	dest := testAddress(t, testKey(t, 0x22)).ScriptPubKey()

	tests := []struct {
		name   string
		policy FeePolicy
		value  int64
		rate   FeeRate
	}{
		{"flat equal", FlatFee, 1000, 1000},
		{"flat above", FlatFee, 999, 1000},
		{"vsize equal", PerVByte, 1100, 10},
		{"zero value", PerVByte, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAssembler(tt.policy, nil).Build(testUTXO(t, kp, tt.value), dest, tt.rate)
			if !errors.Is(err, ErrInsufficientFunds) {
				t.Fatalf("err = %v, want ErrInsufficientFunds", err)
			}
			var fErr *InsufficientFundsError
			if !errors.As(err, &fErr) || fErr.Available != tt.value {
				t.Errorf("err = %#v", err)
			}
		})
	}
}

func TestBuild_InvalidArguments(t *testing.T) {
	kp := testKey(t, 0x11)
	utxo := testUTXO(t, kp, 100_000)
	a := NewAssembler(PerVByte, nil)

	if _, err := a.Build(utxo, nil, 1); err == nil {
		t.Error("expected error for empty destination")
	}
	if _, err := a.Build(utxo, utxo.PkScript, -1); err == nil {
		t.Error("expected error for negative rate")
	}
	if _, err := a.Build(utxo, utxo.PkScript, FeeRate(1<<62)); err == nil {
		t.Error("expected overflow error")
	}
	if _, err := NewAssembler(FeePolicy(9), nil).Build(utxo, utxo.PkScript, 1); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestBuild_DustWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	kp := testKey(t, 0x11)
	utxo := testUTXO(t, kp, 1200)

	tx, err := NewAssembler(FlatFee, zap.New(core)).Build(utxo, utxo.PkScript, 1000)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tx.Outputs[0].Value != 200 {
		t.Errorf("output value = %d", tx.Outputs[0].Value)
	}
	if logs.FilterMessage("output below dust limit").Len() != 1 {
		t.Error("expected a dust warning")
	}
}

func TestParseFeePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want FeePolicy
	}{
		{"vsize", PerVByte},
		{"per-vbyte", PerVByte},
		{"flat", FlatFee},
	}
	for _, tt := range tests {
		got, err := ParseFeePolicy(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFeePolicy(%q) = %v, %v", tt.in, got, err)
		}
		if got.String() != tt.in && tt.in != "per-vbyte" {
			t.Errorf("String() = %s, want %s", got, tt.in)
		}
	}
	if _, err := ParseFeePolicy("sat/kb"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
