package keys

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/djkazic/p2wpkh-go/pkg/util"
)

const (
	opFalse       = 0x00
	opDup         = 0x76
	opHash160     = 0xa9
	opEqualVerify = 0x88
	opCheckSig    = 0xac

	// P2WPKHScriptLen is the length of OP_0 <20-byte program>.
	P2WPKHScriptLen = 22
)

// Address is a witness-v0 public-key-hash address bound to a network.
type Address struct {
	program [20]byte
	network Network
}

// NewAddress derives the P2WPKH address of a compressed public key.
func NewAddress(pubKey []byte, network Network) (Address, error) {
	if len(pubKey) != 33 || (pubKey[0] != 0x02 && pubKey[0] != 0x03) {
		return Address{}, fmt.Errorf("p2wpkh requires a 33-byte compressed public key, got %d bytes", len(pubKey))
	}
	if network.Params() == nil {
		return Address{}, fmt.Errorf("unsupported network %s", network)
	}
	return Address{program: util.Hash160(pubKey), network: network}, nil
}

// AddressFromHash wraps an existing 20-byte key hash.
func AddressFromHash(hash [20]byte, network Network) Address {
	return Address{program: hash, network: network}
}

// AddressFromScript recovers the address paying to a P2WPKH script.
func AddressFromScript(script []byte, network Network) (Address, error) {
	prog, ok := ExtractP2WPKHProgram(script)
	if !ok {
		return Address{}, fmt.Errorf("script %x is not a p2wpkh program", script)
	}
	return Address{program: prog, network: network}, nil
}

// DecodeAddress parses a bech32 witness-v0 address with a 20-byte program.
// Bech32m (v1+) and 32-byte (P2WSH) programs are rejected.
func DecodeAddress(s string) (Address, error) {
	hrp, data, version, err := bech32.DecodeGeneric(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode bech32: %w", err)
	}
	if version != bech32.Version0 {
		return Address{}, fmt.Errorf("address %q uses bech32m, want bech32", s)
	}

	network, ok := networkForHRP(hrp)
	if !ok {
		return Address{}, fmt.Errorf("unknown address prefix %q", hrp)
	}

	if len(data) == 0 {
		return Address{}, fmt.Errorf("empty witness program")
	}
	if data[0] != 0 {
		return Address{}, fmt.Errorf("unsupported witness version %d", data[0])
	}

	prog, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("convert program: %w", err)
	}
	if len(prog) != 20 {
		return Address{}, fmt.Errorf("witness program is %d bytes, want 20", len(prog))
	}

	var a Address
	copy(a.program[:], prog)
	a.network = network
	return a, nil
}

// String returns the lowercase bech32 encoding.
func (a Address) String() string {
	hrp := a.network.HRP()
	if hrp == "" {
		return ""
	}
	conv, err := bech32.ConvertBits(a.program[:], 8, 5, true)
	if err != nil {
		return ""
	}
	data := append([]byte{0}, conv...)
	s, err := bech32.Encode(hrp, data)
	if err != nil {
		return ""
	}
	return s
}

// Program returns the 20-byte key hash.
func (a Address) Program() [20]byte {
	return a.program
}

// Network returns the network the address is bound to.
func (a Address) Network() Network {
	return a.network
}

// IsZero reports whether a is the zero Address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// ScriptPubKey returns OP_0 <program>, the only template this address decodes to.
func (a Address) ScriptPubKey() []byte {
	return P2WPKHScript(a.program)
}

// ScriptCode returns the P2PKH-form script committed to by the BIP143 sighash.
func (a Address) ScriptCode() []byte {
	return P2PKHScriptCode(a.program)
}

// P2WPKHScript builds OP_0 <20-byte hash>.
func P2WPKHScript(hash [20]byte) []byte {
	script := make([]byte, 0, P2WPKHScriptLen)
	script = append(script, opFalse)
	script = append(script, util.WriteScriptLen(len(hash))...)
	return append(script, hash[:]...)
}

// P2PKHScriptCode builds OP_DUP OP_HASH160 <hash> OP_EQUALVERIFY OP_CHECKSIG.
func P2PKHScriptCode(hash [20]byte) []byte {
	script := make([]byte, 0, 25)
	script = append(script, opDup, opHash160)
	script = append(script, util.WriteScriptLen(len(hash))...)
	script = append(script, hash[:]...)
	return append(script, opEqualVerify, opCheckSig)
}

// ExtractP2WPKHProgram returns the key hash of an OP_0 <20> script.
func ExtractP2WPKHProgram(script []byte) ([20]byte, bool) {
	var prog [20]byte
	if len(script) != P2WPKHScriptLen || script[0] != opFalse || script[1] != 20 {
		return prog, false
	}
	copy(prog[:], script[2:])
	return prog, true
}

// IsP2WPKH reports whether script is a witness-v0 key-hash program.
func IsP2WPKH(script []byte) bool {
	_, ok := ExtractP2WPKHProgram(script)
	return ok
}

// PaysTo reports whether script pays to this address.
func (a Address) PaysTo(script []byte) bool {
	return bytes.Equal(script, a.ScriptPubKey())
}
