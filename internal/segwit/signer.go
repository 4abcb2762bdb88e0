package segwit

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/djkazic/p2wpkh-go/internal/keys"
	"github.com/djkazic/p2wpkh-go/pkg/util"
)

// Sign produces the P2WPKH witness [DER signature ‖ hash type, pubkey] for
// sighash. Signatures are deterministic (RFC6979) and low-S. The signature is
// verified against the digest before it is returned.
func Sign(sighash [32]byte, key *keys.KeyPair, hashType SigHashType) (Witness, error) {
	if key == nil || key.Zeroed() {
		return nil, fmt.Errorf("sign: %w", ErrKeyUnavailable)
	}
	if !hashType.Valid() {
		return nil, fmt.Errorf("sign: unsupported hash type %s", hashType)
	}

	priv := key.PrivateKey()
	sig := ecdsa.Sign(priv, sighash[:])
	if !sig.Verify(sighash[:], priv.PubKey()) {
		return nil, &SignatureError{Reason: "fresh signature does not verify"}
	}

	der := sig.Serialize()
	sigWithType := make([]byte, 0, len(der)+1)
	sigWithType = append(sigWithType, der...)
	sigWithType = append(sigWithType, byte(hashType))

	return Witness{sigWithType, key.PublicKey()}, nil
}

// SignInput signs input idx of tx as a spend of utxo, attaches the witness
// and verifies it against utxo's script. On failure the input's witness is
// left empty.
func SignInput(tx *Transaction, idx int, utxo UTXO, key *keys.KeyPair, hashType SigHashType) error {
	sighash, err := ComputeP2WPKHSighash(tx, idx, utxo.PkScript, utxo.Value, hashType)
	if err != nil {
		return err
	}

	witness, err := Sign(sighash, key, hashType)
	if err != nil {
		return err
	}

	tx.Inputs[idx].Witness = witness
	if err := VerifyInput(tx, idx, utxo.PkScript, utxo.Value); err != nil {
		tx.Inputs[idx].Witness = nil
		return err
	}
	return nil
}

// VerifyInput checks that the witness of input idx satisfies a P2WPKH
// spentScript holding spentValue: the key hashes to the program and the
// signature verifies over a freshly computed sighash.
func VerifyInput(tx *Transaction, idx int, spentScript []byte, spentValue int64) error {
	if idx < 0 || idx >= len(tx.Inputs) {
		return &SignatureError{Input: idx, Reason: "input index out of range"}
	}
	in := tx.Inputs[idx]
	if len(in.SignatureScript) != 0 {
		return &SignatureError{Input: idx, Reason: "witness input must have an empty unlock script"}
	}
	if len(in.Witness) != 2 {
		return &SignatureError{Input: idx, Reason: fmt.Sprintf("witness has %d items, want 2", len(in.Witness))}
	}

	sigWithType, pubKeyBytes := in.Witness[0], in.Witness[1]
	if len(sigWithType) < 2 {
		return &SignatureError{Input: idx, Reason: "signature too short"}
	}

	program, ok := keys.ExtractP2WPKHProgram(spentScript)
	if !ok {
		return &SignatureError{Input: idx, Reason: "spent script is not a p2wpkh program"}
	}
	if util.Hash160(pubKeyBytes) != program {
		return &SignatureError{Input: idx, Reason: "public key does not match spent program"}
	}

	pubKey, err := btcec.ParsePubKey(pubKeyBytes)
	if err != nil {
		return &SignatureError{Input: idx, Reason: fmt.Sprintf("parse public key: %v", err)}
	}
	if len(pubKeyBytes) != compressedKeyLen {
		return &SignatureError{Input: idx, Reason: "witness public key must be compressed"}
	}

	hashType := SigHashType(sigWithType[len(sigWithType)-1])
	sig, err := ecdsa.ParseDERSignature(sigWithType[:len(sigWithType)-1])
	if err != nil {
		return &SignatureError{Input: idx, Reason: fmt.Sprintf("parse signature: %v", err)}
	}

	sighash, err := ComputeP2WPKHSighash(tx, idx, spentScript, spentValue, hashType)
	if err != nil {
		return &SignatureError{Input: idx, Reason: err.Error()}
	}
	if !sig.Verify(sighash[:], pubKey) {
		return &SignatureError{Input: idx, Reason: "signature does not verify"}
	}
	return nil
}
