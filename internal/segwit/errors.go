package segwit

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds is returned when the spent value cannot cover the fee.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSignatureInvalid is returned when a witness fails self-verification.
	// Such a transaction must never be broadcast.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrKeyUnavailable is returned for a nil or zeroed key pair.
	ErrKeyUnavailable = errors.New("key material unavailable")
)

// InsufficientFundsError carries the amounts behind an ErrInsufficientFunds.
type InsufficientFundsError struct {
	Available int64
	Fee       int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: value %d sats does not cover fee %d sats", e.Available, e.Fee)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// SighashError reports malformed sighash inputs. It is fatal for the
// transaction being signed.
type SighashError struct {
	Reason string
}

func (e *SighashError) Error() string {
	return "sighash computation failed: " + e.Reason
}

// SignatureError reports a witness that does not satisfy its spent script.
type SignatureError struct {
	Input  int
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("input %d: %s: %s", e.Input, ErrSignatureInvalid, e.Reason)
}

func (e *SignatureError) Unwrap() error {
	return ErrSignatureInvalid
}
