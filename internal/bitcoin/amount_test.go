package bitcoin

import (
	"encoding/json"
	"testing"
)

func TestBTCToSats(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"50.00000000", 5_000_000_000},
		{"49.99999", 4_999_999_000},
		{"0.00000001", 1},
		{"0", 0},
		{"0.1", 10_000_000},
		{"0.29", 29_000_000}, // 0.29 * 1e8 is not exact in float64
		{"1e-8", 1},
		{"21000000", MaxMoney},
	}
	for _, tt := range tests {
		got, err := BTCToSats(json.Number(tt.in))
		if err != nil {
			t.Errorf("BTCToSats(%s): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("BTCToSats(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBTCToSats_Rejects(t *testing.T) {
	for _, in := range []string{"", "abc", "0.000000001", "-1", "21000000.00000001"} {
		if _, err := BTCToSats(json.Number(in)); err == nil {
			t.Errorf("BTCToSats(%q) should fail", in)
		}
	}
}

func TestSatsToBTC(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0.00000000"},
		{1, "0.00000001"},
		{4_999_999_000, "49.99999000"},
		{-150_000_000, "-1.50000000"},
	}
	for _, tt := range tests {
		if got := SatsToBTC(tt.in); got != tt.want {
			t.Errorf("SatsToBTC(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestBTCPerKvBToSatPerVByte(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0.00001000", 1},
		{"0.00001001", 2}, // 1.001 rounds up
		{"0.0002", 20},
		{"0.00000500", 1},
		{"0", 0},
	}
	for _, tt := range tests {
		got, err := BTCPerKvBToSatPerVByte(json.Number(tt.in))
		if err != nil {
			t.Errorf("%s: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("BTCPerKvBToSatPerVByte(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
	if _, err := BTCPerKvBToSatPerVByte("-0.1"); err == nil {
		t.Error("expected error for negative rate")
	}
}
