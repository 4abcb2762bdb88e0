package keys

import (
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// maxSampleAttempts bounds rejection sampling of the secret scalar. The
// probability of a uniformly random 32-byte value falling outside [1, n-1]
// is below 2^-127, so reaching the bound means the source is broken.
const maxSampleAttempts = 16

// ErrRandomnessExhausted is returned when the random source cannot supply a
// valid secret scalar. It is not recoverable.
var ErrRandomnessExhausted = errors.New("randomness exhausted")

// KeyPair is a secp256k1 secret scalar and its compressed public key.
// The secret never leaves the package; fmt verbs print only the public half.
type KeyPair struct {
	priv   *btcec.PrivateKey
	pubKey [33]byte
}

// GenerateIdentity draws a fresh secret from rand and derives the matching
// P2WPKH address on network.
func GenerateIdentity(network Network, rand io.Reader) (*KeyPair, Address, error) {
	if network.Params() == nil {
		return nil, Address{}, fmt.Errorf("unsupported network %s", network)
	}

	var buf [32]byte
	defer zeroBytes(buf[:])

	for attempt := 0; attempt < maxSampleAttempts; attempt++ {
		if _, err := io.ReadFull(rand, buf[:]); err != nil {
			return nil, Address{}, fmt.Errorf("%w: %v", ErrRandomnessExhausted, err)
		}

		kp, err := NewKeyPair(buf[:])
		if err != nil {
			continue
		}

		addr, err := kp.Address(network)
		if err != nil {
			kp.Zero()
			return nil, Address{}, err
		}
		return kp, addr, nil
	}

	return nil, Address{}, fmt.Errorf("%w: no valid scalar after %d draws", ErrRandomnessExhausted, maxSampleAttempts)
}

// NewKeyPair builds a key pair from a 32-byte big-endian secret scalar.
// The scalar must lie in [1, n-1]. The input slice is not retained.
func NewKeyPair(secret []byte) (*KeyPair, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("secret must be 32 bytes, got %d", len(secret))
	}

	var scalar btcec.ModNScalar
	if overflow := scalar.SetByteSlice(secret); overflow {
		scalar.Zero()
		return nil, fmt.Errorf("secret is not below the curve order")
	}
	if scalar.IsZero() {
		return nil, fmt.Errorf("secret is zero")
	}

	scalar.Zero()

	priv, pub := btcec.PrivKeyFromBytes(secret)

	kp := &KeyPair{priv: priv}
	copy(kp.pubKey[:], pub.SerializeCompressed())
	return kp, nil
}

// PublicKey returns the 33-byte compressed public key.
func (k *KeyPair) PublicKey() []byte {
	out := make([]byte, len(k.pubKey))
	copy(out, k.pubKey[:])
	return out
}

// Address derives the P2WPKH address of the key pair on network.
func (k *KeyPair) Address(network Network) (Address, error) {
	return NewAddress(k.pubKey[:], network)
}

// PrivateKey exposes the secret for signing. Callers must not copy or log it.
func (k *KeyPair) PrivateKey() *btcec.PrivateKey {
	return k.priv
}

// Zero wipes the secret scalar. The key pair is unusable afterwards.
func (k *KeyPair) Zero() {
	if k.priv != nil {
		k.priv.Zero()
		k.priv = nil
	}
}

// Zeroed reports whether Zero has been called.
func (k *KeyPair) Zeroed() bool {
	return k.priv == nil
}

func (k *KeyPair) String() string {
	return fmt.Sprintf("KeyPair{pub: %x}", k.pubKey[:])
}

func (k *KeyPair) GoString() string {
	return k.String()
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
