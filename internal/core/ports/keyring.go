package ports

import (
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

type KeyRing interface {
	Network() wallet.Network
	BranchKey(
		scheme *wallet.Scheme, account, branch uint32,
	) (*hdkeychain.ExtendedKey, error)
	DeriveAddresses(
		scheme *wallet.Scheme, account, branch, from, to uint32,
	) ([]string, error)
	KeyMaterial(
		scheme *wallet.Scheme, account, branch, index uint32,
	) (wallet.KeyMaterial, error)
}
