package application

import (
	"context"

	"github.com/tdex-network/tdex-btc-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-btc-wallet/pkg/explorer"
)

// explorerOracle is a UsageOracle marking as used any address that appears in
// the history of the explorer.
type explorerOracle struct {
	explorer explorer.Service
}

func newExplorerOracle(explorerSvc explorer.Service) UsageOracle {
	return explorerOracle{explorerSvc}
}

func (o explorerOracle) UsedAddresses(
	ctx context.Context, addresses []string,
) (map[string]bool, error) {
	txs, err := o.explorer.GetTransactionsForAddresses(ctx, addresses)
	if err != nil {
		return nil, err
	}

	usage := make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		usage[addr] = false
	}
	for _, tx := range txs {
		for _, in := range tx.Inputs {
			if _, ok := usage[in.Address]; ok {
				usage[in.Address] = true
			}
		}
		for _, out := range tx.Outputs {
			if _, ok := usage[out.Address]; ok {
				usage[out.Address] = true
			}
		}
	}
	return usage, nil
}

func toDomainTransactions(txs []explorer.Transaction) []domain.Transaction {
	list := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		list = append(list, toDomainTransaction(tx))
	}
	return list
}

func toDomainTransaction(tx explorer.Transaction) domain.Transaction {
	inputs := make([]domain.Input, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		inputs = append(inputs, domain.Input{
			PrevTxID:   in.TxID,
			PrevVOut:   in.Vout,
			Addresses:  addressList(in.Address),
			Value:      in.Value,
			ScriptType: in.ScriptType,
			Sequence:   in.Sequence,
		})
	}

	outputs := make([]domain.Output, 0, len(tx.Outputs))
	for _, out := range tx.Outputs {
		outputs = append(outputs, domain.Output{
			Addresses:  addressList(out.Address),
			Value:      out.Value,
			ScriptType: out.ScriptType,
		})
	}

	var blockHeight int64
	if tx.Confirmed {
		blockHeight = tx.BlockHeight
	}

	return domain.Transaction{
		TxID:        tx.TxID,
		BlockHeight: blockHeight,
		Time:        tx.BlockTime,
		Fee:         tx.Fee,
		Inputs:      inputs,
		Outputs:     outputs,
	}
}

func addressList(addr string) []string {
	if len(addr) <= 0 {
		return nil
	}
	return []string{addr}
}
