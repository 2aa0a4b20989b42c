package ports

import (
	"context"

	"github.com/tdex-network/tdex-btc-wallet/internal/core/domain"
)

// UtxoLoader fetches the current utxo set of a wallet from the data source
// when it's not cached.
type UtxoLoader func(ctx context.Context) (domain.Utxos, error)

// BalanceCache caches the utxo set of every wallet. Concurrent reads of a
// missing entry are collapsed into a single call to the loader.
type BalanceCache interface {
	GetUtxos(
		ctx context.Context, walletID string, load UtxoLoader,
	) (domain.Utxos, error)
	// ApplyDelta updates the cached utxo set, if any, with the changes caused
	// by a broadcasted transaction.
	ApplyDelta(ctx context.Context, walletID string, delta domain.UtxoDelta) error
	Invalidate(ctx context.Context, walletID string) error
}
