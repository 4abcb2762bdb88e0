package keys

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Network selects the chain an address is bound to.
type Network uint8

const (
	Mainnet Network = iota + 1
	Testnet
	Regtest
)

// ParseNetwork maps the names used by bitcoind ("main", "test", "regtest")
// and their common aliases to a Network.
func ParseNetwork(s string) (Network, error) {
	switch s {
	case "main", "mainnet", "bitcoin":
		return Mainnet, nil
	case "test", "testnet", "testnet3":
		return Testnet, nil
	case "regtest":
		return Regtest, nil
	default:
		return 0, fmt.Errorf("unknown network %q", s)
	}
}

// Params returns the btcd chain parameters for the network.
func (n Network) Params() *chaincfg.Params {
	switch n {
	case Mainnet:
		return &chaincfg.MainNetParams
	case Testnet:
		return &chaincfg.TestNet3Params
	case Regtest:
		return &chaincfg.RegressionNetParams
	default:
		return nil
	}
}

// HRP returns the bech32 human-readable part for segwit addresses.
func (n Network) HRP() string {
	p := n.Params()
	if p == nil {
		return ""
	}
	return p.Bech32HRPSegwit
}

func (n Network) String() string {
	switch n {
	case Mainnet:
		return "mainnet"
	case Testnet:
		return "testnet"
	case Regtest:
		return "regtest"
	default:
		return fmt.Sprintf("network(%d)", uint8(n))
	}
}

func networkForHRP(hrp string) (Network, bool) {
	for _, n := range []Network{Mainnet, Testnet, Regtest} {
		if n.HRP() == hrp {
			return n, true
		}
	}
	return 0, false
}
