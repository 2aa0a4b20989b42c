package explorer

import (
	"context"

	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

// Input is an input of a transaction together with the output it spends.
type Input struct {
	TxID       string
	Vout       uint32
	Sequence   uint32
	Address    string
	ScriptType wallet.ScriptType
	Value      int64
	IsCoinbase bool
}

// Output is an output of a transaction.
type Output struct {
	Address    string
	ScriptType wallet.ScriptType
	Script     string
	Value      int64
}

// Transaction is a transaction as returned by the explorer. Confirmation
// count is not part of it since it depends on the current chain tip.
type Transaction struct {
	TxID        string
	Confirmed   bool
	BlockHeight int64
	BlockTime   int64
	Fee         int64
	Weight      int64
	Inputs      []Input
	Outputs     []Output
}

// Service is representation of an explorer that allows to fetch data from the
// blockchain and to broadcast transactions.
type Service interface {
	// GetTransactionsForAddresses returns the list of all txs relative to
	// any of the given addresses, without duplicates.
	GetTransactionsForAddresses(
		ctx context.Context, addresses []string,
	) ([]Transaction, error)
	// GetBlockHeight returns the height of the current chain tip.
	GetBlockHeight(ctx context.Context) (int64, error)
	// BroadcastTransaction attempts to add the given tx in hex format to the
	// mempool and returns its tx hash.
	BroadcastTransaction(ctx context.Context, txhex string) (string, error)
	// GetFeeEstimates returns the sats/vbyte rate expected to get a tx
	// confirmed within the number of blocks used as key.
	GetFeeEstimates(ctx context.Context) (map[int]float64, error)
}
