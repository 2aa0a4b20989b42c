package domain

import (
	"fmt"

	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

// AddressDeriver regenerates the addresses of a derivation branch in the
// index range [from, to).
type AddressDeriver interface {
	DeriveAddresses(
		scheme *wallet.Scheme, account, branch, from, to uint32,
	) ([]string, error)
}

// ClassifyOpts is the struct given to ClassifyUtxos
type ClassifyOpts struct {
	Utxos            Utxos
	Indexes          []AddressIndexRecord
	Book             AddressBook
	Deriver          AddressDeriver
	Account          uint32
	MinConfirmations int64
	Network          wallet.Network
}

func (o ClassifyOpts) validate() error {
	if o.MinConfirmations <= 0 {
		return ErrInvalidMinConfirmations
	}
	if o.Deriver == nil {
		return ErrNullAddressDeriver
	}
	if o.Network.Params == nil {
		return wallet.ErrInvalidNetwork
	}
	return nil
}

// Balances are the totals of the classification buckets
type Balances struct {
	Unconfirmed int64
	Spendable   int64
	Signable    int64
	Confirmed   int64
}

// UtxoClassification is the result of ClassifyUtxos. Every bucket only
// contains non-dust utxos:
//   - Unconfirmed: all of them
//   - Spendable: internal ones and confirmed external ones
//   - Signable: spendable ones the wallet can sign
//   - Confirmed: those with at least MinConfirmations on both branches
type UtxoClassification struct {
	Unconfirmed Utxos
	Spendable   Utxos
	Signable    Utxos
	Confirmed   Utxos
	Balances    Balances
}

// ClassifyUtxos filters the observed utxos of the wallet into the buckets
// of UtxoClassification. External utxos need MinConfirmations to be
// spendable while change ones are spendable right away. Wrapped segwit
// utxos are signable only if their address is proven to be derived with the
// wrapped segwit scheme; their script type is promoted to P2SH-P2WPKH.
func ClassifyUtxos(opts ClassifyOpts) (*UtxoClassification, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	wrappedSegwit, err := provenWrappedSegwitAddresses(opts)
	if err != nil {
		return nil, err
	}

	result := &UtxoClassification{
		Unconfirmed: make(Utxos, 0),
		Spendable:   make(Utxos, 0),
		Signable:    make(Utxos, 0),
		Confirmed:   make(Utxos, 0),
	}

	for _, u := range opts.Utxos {
		if wallet.IsDust(u.Value, u.Address, opts.Network) {
			continue
		}

		if u.ScriptType == wallet.ScriptTypeP2SH ||
			u.ScriptType == wallet.ScriptTypeP2SHP2WPKH {
			if _, ok := wrappedSegwit[u.Address]; ok {
				u.ScriptType = wallet.ScriptTypeP2SHP2WPKH
			} else {
				u.ScriptType = wallet.ScriptTypeP2SH
			}
		}

		isConfirmed := u.Confirmations >= opts.MinConfirmations
		isSpendable := opts.Book.IsInternal(u.Address) || isConfirmed

		result.Unconfirmed = append(result.Unconfirmed, u)
		if isConfirmed {
			result.Confirmed = append(result.Confirmed, u)
		}
		if isSpendable {
			result.Spendable = append(result.Spendable, u)
			if u.ScriptType.IsSignable() {
				result.Signable = append(result.Signable, u)
			}
		}
	}

	result.Balances = Balances{
		Unconfirmed: result.Unconfirmed.TotalValue(),
		Spendable:   result.Spendable.TotalValue(),
		Signable:    result.Signable.TotalValue(),
		Confirmed:   result.Confirmed.TotalValue(),
	}
	return result, nil
}

// provenWrappedSegwitAddresses regenerates the wrapped segwit addresses of
// both branches up to their current index, only if any utxo needs it.
func provenWrappedSegwitAddresses(opts ClassifyOpts) (map[string]struct{}, error) {
	proven := make(map[string]struct{})

	needed := false
	for _, u := range opts.Utxos {
		if u.ScriptType == wallet.ScriptTypeP2SH ||
			u.ScriptType == wallet.ScriptTypeP2SHP2WPKH {
			needed = true
			break
		}
	}
	if !needed {
		return proven, nil
	}

	for _, branch := range []uint32{wallet.ExternalBranch, wallet.InternalBranch} {
		path := BranchPath(wallet.WrappedSegwit, opts.Network, opts.Account, branch)
		lastIndex := LastIndex(opts.Indexes, path)
		if lastIndex < 0 {
			continue
		}

		addresses, err := opts.Deriver.DeriveAddresses(
			wallet.WrappedSegwit, opts.Account, branch, 0, uint32(lastIndex+1),
		)
		if err != nil {
			return nil, fmt.Errorf("derive wrapped segwit addresses: %w", err)
		}
		for _, addr := range addresses {
			proven[addr] = struct{}{}
		}
	}
	return proven, nil
}

// UtxosFromTransactions returns the outputs of the given reconciled
// transactions that pay to an address of the book and are not spent by any
// other transaction of the list. Outputs of transactions that are not the
// most probable ones of their double-spend group are ignored.
func UtxosFromTransactions(txs []Transaction, book AddressBook) Utxos {
	spent := make(map[UtxoKey]struct{})
	for _, tx := range txs {
		if isLosingDoubleSpend(tx) {
			continue
		}
		for _, in := range tx.Inputs {
			spent[in.Key()] = struct{}{}
		}
	}

	utxos := make(Utxos, 0)
	for _, tx := range txs {
		if isLosingDoubleSpend(tx) {
			continue
		}
		for i, out := range tx.Outputs {
			key := UtxoKey{tx.TxID, uint32(i)}
			if _, ok := spent[key]; ok {
				continue
			}
			addr := out.Address()
			if !book.Contains(addr) {
				continue
			}
			utxos = append(utxos, Utxo{
				TxID:          tx.TxID,
				VOut:          uint32(i),
				Value:         out.Value,
				Confirmations: tx.Confirmations,
				ScriptType:    out.ScriptType,
				Address:       addr,
			})
		}
	}
	return utxos
}

func isLosingDoubleSpend(tx Transaction) bool {
	return tx.MostProbableDoubleSpend != nil && !*tx.MostProbableDoubleSpend &&
		!tx.IsConfirmed()
}
