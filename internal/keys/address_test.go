package keys

import (
	"encoding/hex"
	"testing"
)

func TestDecodeAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		network Network
		script  string
	}{
		{
			name:    "mainnet uppercase",
			addr:    "BC1QW508D6QEJXTDG4Y5R3ZARVARY0C5XW7KV8F3T4",
			network: Mainnet,
			script:  "0014751e76e8199196d454941c45d1b3a323f1433bd6",
		},
		{
			name:    "testnet",
			addr:    "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx",
			network: Testnet,
			script:  "0014751e76e8199196d454941c45d1b3a323f1433bd6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := DecodeAddress(tt.addr)
			if err != nil {
				t.Fatalf("DecodeAddress: %v", err)
			}
			if a.Network() != tt.network {
				t.Errorf("network = %s, want %s", a.Network(), tt.network)
			}
			if got := hex.EncodeToString(a.ScriptPubKey()); got != tt.script {
				t.Errorf("script = %s, want %s", got, tt.script)
			}
		})
	}
}

func TestDecodeAddress_Rejects(t *testing.T) {
	bad := []string{
		"",
		"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t5",                     // bad checksum
		"bc1qrp33g0q5c5txsp9arysrx4k6zdkfs4nce4xj0gdcccefvpysxf3qccfmv3", // p2wsh, 32-byte program
		"bc1p0xlxvlhemja6c4dqv22uapctqupfhlxm9h8z3k2e72q4k9hcz7vqzk5jj0", // taproot, bech32m
		"ltc1qw508d6qejxtdg4y5r3zarvary0c5xw7kgmn4n9",                    // foreign prefix
		"1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2",                             // legacy base58
	}
	for _, s := range bad {
		if _, err := DecodeAddress(s); err == nil {
			t.Errorf("DecodeAddress(%q) should fail", s)
		}
	}
}

func TestAddressRoundTrip(t *testing.T) {
	var hash [20]byte
	for i := range hash {
		hash[i] = byte(i * 7)
	}
	for _, n := range []Network{Mainnet, Testnet, Regtest} {
		a := AddressFromHash(hash, n)
		decoded, err := DecodeAddress(a.String())
		if err != nil {
			t.Fatalf("%s: DecodeAddress(%s): %v", n, a, err)
		}
		if decoded != a {
			t.Errorf("%s: round trip mismatch", n)
		}
	}
}

func TestScriptTemplates(t *testing.T) {
	a, err := DecodeAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4")
	if err != nil {
		t.Fatalf("DecodeAddress: %v", err)
	}
	code := hex.EncodeToString(a.ScriptCode())
	if code != "76a914751e76e8199196d454941c45d1b3a323f1433bd688ac" {
		t.Errorf("script code = %s", code)
	}

	back, err := AddressFromScript(a.ScriptPubKey(), Mainnet)
	if err != nil {
		t.Fatalf("AddressFromScript: %v", err)
	}
	if back != a {
		t.Error("AddressFromScript did not recover the address")
	}
	if !a.PaysTo(a.ScriptPubKey()) {
		t.Error("PaysTo should accept its own script")
	}

	if IsP2WPKH(a.ScriptCode()) {
		t.Error("a p2pkh script code is not a witness program")
	}
	if _, err := AddressFromScript([]byte{0x51}, Mainnet); err == nil {
		t.Error("AddressFromScript should reject non-p2wpkh scripts")
	}
}

func TestParseNetwork(t *testing.T) {
	for in, want := range map[string]Network{"main": Mainnet, "test": Testnet, "regtest": Regtest} {
		got, err := ParseNetwork(in)
		if err != nil || got != want {
			t.Errorf("ParseNetwork(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseNetwork("signet2"); err == nil {
		t.Error("unknown network should fail")
	}
	if Regtest.HRP() != "bcrt" {
		t.Errorf("regtest hrp = %s", Regtest.HRP())
	}
}
