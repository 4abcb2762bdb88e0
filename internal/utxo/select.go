package utxo

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/djkazic/p2wpkh-go/internal/segwit"
)

// CoinbaseMaturity is the number of blocks a coinbase output must wait
// before it can be spent.
const CoinbaseMaturity = 100

// Strategy chooses one output from a scan.
type Strategy uint8

const (
	// FirstMatch takes the first sufficient output in scan order.
	FirstMatch Strategy = iota
	// LargestFirst takes the highest-value output.
	LargestFirst
	// SmallestSufficient takes the lowest-value output that covers the need.
	SmallestSufficient
)

// ParseStrategy accepts "first", "largest" and "smallest".
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "first":
		return FirstMatch, nil
	case "largest":
		return LargestFirst, nil
	case "smallest":
		return SmallestSufficient, nil
	default:
		return 0, fmt.Errorf("unknown selection strategy %q", s)
	}
}

func (s Strategy) String() string {
	switch s {
	case FirstMatch:
		return "first"
	case LargestFirst:
		return "largest"
	case SmallestSufficient:
		return "smallest"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(s))
	}
}

// Mature drops coinbase outputs that cannot yet be spent in the block after
// tip. The input slice is not modified.
func Mature(utxos []segwit.UTXO, tip int64) []segwit.UTXO {
	out := make([]segwit.UTXO, 0, len(utxos))
	for _, u := range utxos {
		if u.Coinbase && tip+1-u.Height < CoinbaseMaturity {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Select returns one output worth at least minValue. It fails with
// segwit.ErrInsufficientFunds when none qualifies.
func Select(utxos []segwit.UTXO, minValue int64, strategy Strategy) (segwit.UTXO, error) {
	candidates := make([]segwit.UTXO, 0, len(utxos))
	var largest int64
	for _, u := range utxos {
		if u.Value > largest {
			largest = u.Value
		}
		if u.Value >= minValue {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return segwit.UTXO{}, fmt.Errorf("no output of at least %d sats among %d (largest %d): %w",
			minValue, len(utxos), largest, segwit.ErrInsufficientFunds)
	}

	switch strategy {
	case FirstMatch:
		return candidates[0], nil
	case LargestFirst:
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Value != candidates[j].Value {
				return candidates[i].Value > candidates[j].Value
			}
			return tieBreak(candidates[i], candidates[j])
		})
	case SmallestSufficient:
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Value != candidates[j].Value {
				return candidates[i].Value < candidates[j].Value
			}
			return tieBreak(candidates[i], candidates[j])
		})
	default:
		return segwit.UTXO{}, fmt.Errorf("unknown selection strategy %s", strategy)
	}
	return candidates[0], nil
}

// tieBreak orders equal-value outputs by height, then txid bytes, then vout.
func tieBreak(a, b segwit.UTXO) bool {
	if a.Height != b.Height {
		return a.Height < b.Height
	}
	if c := bytes.Compare(a.OutPoint.Hash[:], b.OutPoint.Hash[:]); c != 0 {
		return c < 0
	}
	return a.OutPoint.Index < b.OutPoint.Index
}
