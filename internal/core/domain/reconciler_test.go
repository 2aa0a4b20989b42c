package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/domain"
	"pgregory.net/rapid"
)

func newSpendingTx(i int, fee, confirmations int64, spent ...domain.UtxoKey) domain.Transaction {
	inputs := make([]domain.Input, 0, len(spent))
	for _, key := range spent {
		inputs = append(inputs, domain.Input{
			PrevTxID: key.TxID,
			PrevVOut: key.VOut,
			Value:    10000,
		})
	}
	return domain.Transaction{
		TxID:          testTxid(i),
		Confirmations: confirmations,
		Fee:           fee,
		Inputs:        inputs,
		Outputs: []domain.Output{
			{Addresses: []string{testTargetAddress}, Value: 10000 - fee},
		},
	}
}

func TestReconcileTransactions(t *testing.T) {
	outpoint := domain.UtxoKey{TxID: testTxid(100), VOut: 0}

	t.Run("unconfirmed_double_spend", func(t *testing.T) {
		tx1 := newSpendingTx(1, 500, 0, outpoint)
		tx2 := newSpendingTx(2, 1200, 0, outpoint)

		txs := domain.ReconcileTransactions([]domain.Transaction{tx1, tx2})
		require.Len(t, txs, 2)

		require.NotNil(t, txs[0].DoubleSpend)
		require.True(t, *txs[0].DoubleSpend)
		require.NotNil(t, txs[1].DoubleSpend)
		require.True(t, *txs[1].DoubleSpend)

		require.NotNil(t, txs[0].MostProbableDoubleSpend)
		require.False(t, *txs[0].MostProbableDoubleSpend)
		require.NotNil(t, txs[1].MostProbableDoubleSpend)
		require.True(t, *txs[1].MostProbableDoubleSpend)

		// input list is left untouched
		require.Nil(t, tx1.DoubleSpend)
		require.Nil(t, tx2.MostProbableDoubleSpend)
	})

	t.Run("confirmed_double_spend", func(t *testing.T) {
		tx1 := newSpendingTx(1, 500, 3, outpoint)
		tx2 := newSpendingTx(2, 1200, 0, outpoint)
		tx3 := newSpendingTx(3, 300, 0, domain.UtxoKey{TxID: testTxid(101)})

		txs := domain.ReconcileTransactions([]domain.Transaction{tx1, tx2, tx3})
		require.Len(t, txs, 2)
		require.Equal(t, tx1.TxID, txs[0].TxID)
		require.Equal(t, tx3.TxID, txs[1].TxID)

		require.True(t, *txs[0].DoubleSpend)
		require.Nil(t, txs[0].MostProbableDoubleSpend)
		require.Nil(t, txs[1].DoubleSpend)
	})

	t.Run("fee_tie", func(t *testing.T) {
		tx1 := newSpendingTx(2, 500, 0, outpoint)
		tx2 := newSpendingTx(1, 500, 0, outpoint)

		txs := domain.ReconcileTransactions([]domain.Transaction{tx1, tx2})
		require.False(t, *txs[0].MostProbableDoubleSpend)
		require.True(t, *txs[1].MostProbableDoubleSpend)
	})

	t.Run("losing_in_any_group", func(t *testing.T) {
		other := domain.UtxoKey{TxID: testTxid(101), VOut: 1}
		tx1 := newSpendingTx(1, 1000, 0, outpoint, other)
		tx2 := newSpendingTx(2, 500, 0, outpoint)
		tx3 := newSpendingTx(3, 2000, 0, other)

		txs := domain.ReconcileTransactions([]domain.Transaction{tx1, tx2, tx3})
		require.Len(t, txs, 3)
		// tx1 loses against tx3, so tx2 is left as the winner of the other
		// group.
		require.False(t, *txs[0].MostProbableDoubleSpend)
		require.True(t, *txs[1].MostProbableDoubleSpend)
		require.True(t, *txs[2].MostProbableDoubleSpend)
	})

	t.Run("losing_chain", func(t *testing.T) {
		a := domain.UtxoKey{TxID: testTxid(101), VOut: 0}
		b := domain.UtxoKey{TxID: testTxid(102), VOut: 0}
		// tx1 spends outpoint, tx2 spends outpoint and a, tx3 spends a and b,
		// tx4 spends b.
		tx1 := newSpendingTx(1, 100, 0, outpoint)
		tx2 := newSpendingTx(2, 300, 0, outpoint, a)
		tx3 := newSpendingTx(3, 200, 0, a, b)
		tx4 := newSpendingTx(4, 400, 0, b)

		txs := domain.ReconcileTransactions([]domain.Transaction{tx1, tx2, tx3, tx4})
		require.Len(t, txs, 4)
		require.False(t, *txs[0].MostProbableDoubleSpend)
		require.True(t, *txs[1].MostProbableDoubleSpend)
		require.False(t, *txs[2].MostProbableDoubleSpend)
		require.True(t, *txs[3].MostProbableDoubleSpend)
	})

	t.Run("spending_txid", func(t *testing.T) {
		funding := newSpendingTx(1, 100, 2, outpoint)
		spending := newSpendingTx(2, 100, 1, domain.UtxoKey{TxID: funding.TxID})

		txs := domain.ReconcileTransactions([]domain.Transaction{funding, spending})
		require.Len(t, txs, 2)
		require.Equal(t, spending.TxID, txs[0].Outputs[0].SpendingTxID)
		require.Empty(t, txs[1].Outputs[0].SpendingTxID)
		require.Nil(t, txs[0].DoubleSpend)
	})
}

func TestUpdateConfirmations(t *testing.T) {
	txs := []domain.Transaction{
		{TxID: testTxid(1), BlockHeight: 100, Confirmations: 1},
		{TxID: testTxid(2), BlockHeight: 0, Confirmations: 5},
		{TxID: testTxid(3), BlockHeight: 110},
	}

	updated := domain.UpdateConfirmations(txs, 110)
	require.Len(t, updated, 3)
	require.Equal(t, int64(11), updated[0].Confirmations)
	require.Equal(t, int64(0), updated[1].Confirmations)
	require.Equal(t, int64(1), updated[2].Confirmations)
	require.Equal(t, int64(1), txs[0].Confirmations)
}

func TestReconcileTransactionsIdempotence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")

		txs := make([]domain.Transaction, 0, n)
		for i := 0; i < n; i++ {
			numInputs := rapid.IntRange(1, 3).Draw(t, "numInputs")
			spent := make([]domain.UtxoKey, 0, numInputs)
			for j := 0; j < numInputs; j++ {
				// spend either a foreign outpoint or an output of a
				// previous tx of the list
				prev := rapid.IntRange(0, n+2).Draw(t, "prev")
				spent = append(spent, domain.UtxoKey{TxID: testTxid(prev)})
			}
			fee := rapid.Int64Range(1, 5000).Draw(t, "fee")
			confirmations := rapid.Int64Range(0, 2).Draw(t, "confirmations")
			txs = append(txs, newSpendingTx(i, fee, confirmations, spent...))
		}

		once := domain.ReconcileTransactions(txs)
		twice := domain.ReconcileTransactions(once)
		require.Equal(t, once, twice)

		// at most one retained tx per group is the most probable
		winners := make(map[domain.UtxoKey]int)
		for _, tx := range once {
			if tx.MostProbableDoubleSpend == nil || !*tx.MostProbableDoubleSpend {
				continue
			}
			for _, in := range tx.Inputs {
				winners[in.Key()]++
			}
		}
		for _, count := range winners {
			require.LessOrEqual(t, count, 1)
		}

		// a retained tx not flagged as the most probable always conflicts
		// with one that is
		for _, tx := range once {
			if tx.MostProbableDoubleSpend == nil || *tx.MostProbableDoubleSpend {
				continue
			}
			beaten := false
			for _, in := range tx.Inputs {
				if winners[in.Key()] > 0 {
					beaten = true
					break
				}
			}
			require.True(t, beaten, "tx %s lost without a winning conflict", tx.TxID)
		}
	})
}
