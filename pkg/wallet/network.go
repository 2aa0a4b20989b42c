package wallet

import (
	"github.com/btcsuite/btcd/chaincfg"
)

// NetworkKey identifies one of the supported networks.
type NetworkKey string

const (
	MainnetKey NetworkKey = "mainnet"
	TestnetKey NetworkKey = "testnet"
)

// Network selects the derivation constants and the address encoding rules.
type Network struct {
	Key                 NetworkKey
	CoinIndex           uint32
	DefaultAccountIndex uint32
	Params              *chaincfg.Params
}

var (
	// Mainnet uses coin type 0 as per SLIP-44
	Mainnet = Network{
		Key:                 MainnetKey,
		CoinIndex:           0,
		DefaultAccountIndex: 0,
		Params:              &chaincfg.MainNetParams,
	}
	// Testnet uses coin type 1 as per SLIP-44
	Testnet = Network{
		Key:                 TestnetKey,
		CoinIndex:           1,
		DefaultAccountIndex: 0,
		Params:              &chaincfg.TestNet3Params,
	}
)

// NetworkByKey returns the network matching the given key.
func NetworkByKey(key string) (Network, error) {
	switch NetworkKey(key) {
	case MainnetKey:
		return Mainnet, nil
	case TestnetKey:
		return Testnet, nil
	default:
		return Network{}, ErrInvalidNetwork
	}
}

func (n Network) String() string {
	return string(n.Key)
}
