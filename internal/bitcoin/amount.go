package bitcoin

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// SatsPerBTC is the number of satoshis in one bitcoin.
const SatsPerBTC = 100_000_000

// MaxMoney is the largest amount, in satoshis, that can exist.
const MaxMoney = 21_000_000 * SatsPerBTC

var satsPerBTC = big.NewRat(SatsPerBTC, 1)

// BTCToSats converts a decimal BTC amount as returned by the node to
// satoshis without going through floating point. Amounts with more than
// eight decimal places, negative amounts and amounts above MaxMoney are
// rejected.
func BTCToSats(amount json.Number) (int64, error) {
	r, ok := new(big.Rat).SetString(amount.String())
	if !ok {
		return 0, fmt.Errorf("invalid amount %q", amount)
	}
	r.Mul(r, satsPerBTC)
	if !r.IsInt() {
		return 0, fmt.Errorf("amount %s has sub-satoshi precision", amount)
	}
	sats := r.Num()
	if sats.Sign() < 0 {
		return 0, fmt.Errorf("negative amount %s", amount)
	}
	if !sats.IsInt64() || sats.Int64() > MaxMoney {
		return 0, fmt.Errorf("amount %s exceeds max money", amount)
	}
	return sats.Int64(), nil
}

// SatsToBTC formats satoshis as a fixed eight-decimal BTC string.
func SatsToBTC(sats int64) string {
	sign := ""
	mag := uint64(sats)
	if sats < 0 {
		sign = "-"
		mag = uint64(-(sats + 1)) + 1
	}
	return fmt.Sprintf("%s%d.%08d", sign, mag/SatsPerBTC, mag%SatsPerBTC)
}

// BTCPerKvBToSatPerVByte converts a node fee rate (BTC per 1000 virtual
// bytes) to whole satoshis per virtual byte, rounding up.
func BTCPerKvBToSatPerVByte(rate json.Number) (int64, error) {
	r, ok := new(big.Rat).SetString(rate.String())
	if !ok {
		return 0, fmt.Errorf("invalid fee rate %q", rate)
	}
	if r.Sign() < 0 {
		return 0, fmt.Errorf("negative fee rate %s", rate)
	}
	// sat/vB = BTC/kvB × 1e8 / 1000
	r.Mul(r, big.NewRat(SatsPerBTC, 1000))

	q, m := new(big.Int).QuoRem(r.Num(), r.Denom(), new(big.Int))
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	if !q.IsInt64() {
		return 0, fmt.Errorf("fee rate %s out of range", rate)
	}
	return q.Int64(), nil
}
