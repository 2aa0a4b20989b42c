package domain

import (
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

// UtxoDelta is the change to apply to the cached utxo set of a wallet after
// broadcasting a transaction.
type UtxoDelta struct {
	Spent []UtxoKey
	Added Utxos
}

// IsEmpty returns whether applying the delta is a no-op
func (d UtxoDelta) IsEmpty() bool {
	return len(d.Spent) <= 0 && len(d.Added) <= 0
}

// Apply returns a new list with spent utxos removed and added ones appended.
// Added utxos already in the list are not duplicated.
func (d UtxoDelta) Apply(utxos Utxos) Utxos {
	removed := make(map[UtxoKey]struct{}, len(d.Spent))
	for _, key := range d.Spent {
		removed[key] = struct{}{}
	}

	result := make(Utxos, 0, len(utxos)+len(d.Added))
	present := make(map[UtxoKey]struct{}, len(utxos))
	for _, u := range utxos {
		if _, ok := removed[u.Key()]; ok {
			continue
		}
		present[u.Key()] = struct{}{}
		result = append(result, u)
	}
	for _, u := range d.Added {
		if _, ok := present[u.Key()]; ok {
			continue
		}
		if _, ok := removed[u.Key()]; ok {
			continue
		}
		present[u.Key()] = struct{}{}
		result = append(result, u)
	}
	return result
}

// ComputeUtxoDelta returns the delta caused by the transaction with the
// given txid built from plan: all plan utxos are spent, while the change
// output and the target one, if paying to the wallet, are added unconfirmed.
func ComputeUtxoDelta(plan *TxPlan, txid string, book AddressBook) UtxoDelta {
	delta := UtxoDelta{
		Spent: plan.Utxos.Keys(),
		Added: make(Utxos, 0),
	}

	if book.Contains(plan.TargetAddress) {
		delta.Added = append(delta.Added, newPendingUtxo(
			txid, wallet.TargetOutputIndex, plan.Amount, plan.TargetAddress,
			plan.Network, book,
		))
	}
	if plan.HasChange() {
		delta.Added = append(delta.Added, newPendingUtxo(
			txid, wallet.ChangeOutputIndex, plan.Change, plan.ChangeAddress,
			plan.Network, book,
		))
	}
	return delta
}

// WithReplaced returns a copy of the delta that also drops the outputs of
// the replaced transaction.
func (d UtxoDelta) WithReplaced(oldTx Transaction) UtxoDelta {
	spent := append([]UtxoKey{}, d.Spent...)
	for i := range oldTx.Outputs {
		spent = append(spent, UtxoKey{oldTx.TxID, uint32(i)})
	}
	return UtxoDelta{Spent: spent, Added: d.Added}
}

func newPendingUtxo(
	txid string, vout uint32, value int64, addr string,
	net wallet.Network, book AddressBook,
) Utxo {
	scriptType, ok := book.ScriptType(addr)
	if !ok {
		scriptType, _ = wallet.ScriptTypeForAddress(addr, net)
	}
	return Utxo{
		TxID:       txid,
		VOut:       vout,
		Value:      value,
		ScriptType: scriptType,
		Address:    addr,
	}
}
