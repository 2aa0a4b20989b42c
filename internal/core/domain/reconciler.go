package domain

import "sort"

// ReconcileTransactions returns a copy of the given transaction list with
// double-spends marked and spend-linkage between outputs and inputs
// threaded:
//   - members of a group of transactions spending the same outpoint are
//     flagged as DoubleSpend
//   - unconfirmed members of a group with a confirmed one are removed
//   - if no remaining member of a group is confirmed, the one paying the
//     highest fee is flagged as MostProbableDoubleSpend, the others are not,
//     unless it lost in another group (see markMostProbable)
//   - SpendingTxID of every output is set to the retained transaction
//     spending it, if any
//
// DoubleSpend flags are never cleared, so reconciling a reconciled list
// returns the same list.
func ReconcileTransactions(txs []Transaction) []Transaction {
	list := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		cp := tx.Copy()
		cp.MostProbableDoubleSpend = nil
		list = append(list, cp)
	}

	groups, keys := groupBySpentOutpoint(list)

	lost := make(map[int]struct{})
	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 || !hasConfirmed(list, group) {
			continue
		}
		for _, i := range group {
			if !list[i].IsConfirmed() {
				lost[i] = struct{}{}
			}
		}
	}

	contested := make(map[int][][]int)
	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}

		contenders := make([]int, 0, len(group))
		for _, i := range group {
			list[i].DoubleSpend = boolPtr(true)
			if _, ok := lost[i]; !ok {
				contenders = append(contenders, i)
			}
		}
		if len(contenders) < 2 || hasConfirmed(list, contenders) {
			continue
		}
		for _, i := range contenders {
			contested[i] = append(contested[i], contenders)
		}
	}
	markMostProbable(list, contested)

	retained := make([]Transaction, 0, len(list))
	for i, tx := range list {
		if _, ok := lost[i]; ok {
			continue
		}
		retained = append(retained, tx)
	}

	backfillSpendingTxIDs(retained)
	return retained
}

// UpdateConfirmations returns a copy of the given list with confirmations
// recomputed against the given chain tip.
func UpdateConfirmations(txs []Transaction, tipHeight int64) []Transaction {
	list := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		cp := tx.Copy()
		cp.Confirmations = 0
		if cp.BlockHeight > 0 && tipHeight >= cp.BlockHeight {
			cp.Confirmations = tipHeight - cp.BlockHeight + 1
		}
		list = append(list, cp)
	}
	return list
}

// groupBySpentOutpoint returns the indexes of the transactions spending
// every outpoint, along with the outpoints in order of first appearance.
func groupBySpentOutpoint(txs []Transaction) (map[UtxoKey][]int, []UtxoKey) {
	groups := make(map[UtxoKey][]int)
	keys := make([]UtxoKey, 0)
	for i, tx := range txs {
		seen := make(map[UtxoKey]struct{})
		for _, in := range tx.Inputs {
			key := in.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			if _, ok := groups[key]; !ok {
				keys = append(keys, key)
			}
			groups[key] = append(groups[key], i)
		}
	}
	return groups, keys
}

// markMostProbable flags the winners of the unconfirmed double-spend groups.
// Contenders are visited by highest fee, ties going to the lowest txid: one
// that is not beaten yet wins every group it belongs to and beats all the
// other members of those groups. A transaction beaten in one group can't win
// another, so a group whose top payer lost elsewhere is won by its best
// remaining member. No winner is left only for a group whose members all lost
// to the winners of other groups.
func markMostProbable(txs []Transaction, contested map[int][][]int) {
	order := make([]int, 0, len(contested))
	for i := range contested {
		order = append(order, i)
	}
	sort.Slice(order, func(a, b int) bool {
		ta, tb := txs[order[a]], txs[order[b]]
		if ta.Fee != tb.Fee {
			return ta.Fee > tb.Fee
		}
		return ta.TxID < tb.TxID
	})

	beaten := make(map[int]struct{})
	for _, i := range order {
		if _, ok := beaten[i]; ok {
			txs[i].MostProbableDoubleSpend = boolPtr(false)
			continue
		}
		txs[i].MostProbableDoubleSpend = boolPtr(true)
		for _, group := range contested[i] {
			for _, j := range group {
				if j != i {
					beaten[j] = struct{}{}
				}
			}
		}
	}
}

func backfillSpendingTxIDs(txs []Transaction) {
	positions := make(map[string]int, len(txs))
	for i, tx := range txs {
		positions[tx.TxID] = i
		for j := range tx.Outputs {
			txs[i].Outputs[j].SpendingTxID = ""
		}
	}

	for _, tx := range txs {
		if isLosingDoubleSpend(tx) {
			continue
		}
		for _, in := range tx.Inputs {
			i, ok := positions[in.PrevTxID]
			if !ok || int(in.PrevVOut) >= len(txs[i].Outputs) {
				continue
			}
			txs[i].Outputs[in.PrevVOut].SpendingTxID = tx.TxID
		}
	}
}

func hasConfirmed(txs []Transaction, group []int) bool {
	for _, i := range group {
		if txs[i].IsConfirmed() {
			return true
		}
	}
	return false
}

func boolPtr(b bool) *bool {
	return &b
}
