package domain

import (
	"fmt"

	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

// UtxoKey represent the ID of an Utxo, composed by its txid and vout.
type UtxoKey struct {
	TxID string
	VOut uint32
}

func (k UtxoKey) String() string {
	return fmt.Sprintf("%s:%d", k.TxID, k.VOut)
}

// Utxo is an unspent output of the wallet. It is derived from the
// transaction history and never mutated.
type Utxo struct {
	TxID          string
	VOut          uint32
	Value         int64
	Confirmations int64
	ScriptType    wallet.ScriptType
	Address       string
}

// Key returns the UtxoKey of the Utxo
func (u Utxo) Key() UtxoKey {
	return UtxoKey{u.TxID, u.VOut}
}

// IsConfirmed returns whether the utxo has at least one confirmation
func (u Utxo) IsConfirmed() bool {
	return u.Confirmations > 0
}

// Input returns the utxo in the format expected by the transaction builder
func (u Utxo) Input() wallet.Input {
	return wallet.Input{
		TxID:       u.TxID,
		Vout:       u.VOut,
		Value:      u.Value,
		Address:    u.Address,
		ScriptType: u.ScriptType,
	}
}

// Utxos is a list of Utxo
type Utxos []Utxo

// Inputs converts the list to transaction builder inputs
func (us Utxos) Inputs() []wallet.Input {
	inputs := make([]wallet.Input, 0, len(us))
	for _, u := range us {
		inputs = append(inputs, u.Input())
	}
	return inputs
}

// TotalValue returns the sum of the values of all utxos
func (us Utxos) TotalValue() int64 {
	var total int64
	for _, u := range us {
		total += u.Value
	}
	return total
}

// Keys returns the keys of all utxos
func (us Utxos) Keys() []UtxoKey {
	keys := make([]UtxoKey, 0, len(us))
	for _, u := range us {
		keys = append(keys, u.Key())
	}
	return keys
}
