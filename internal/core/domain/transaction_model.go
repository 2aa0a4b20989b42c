package domain

import (
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

// Input is an input of a transaction, carrying the details of the output it
// spends.
type Input struct {
	PrevTxID   string
	PrevVOut   uint32
	Addresses  []string
	Value      int64
	ScriptType wallet.ScriptType
	Sequence   uint32
}

// Key returns the key of the utxo spent by the input
func (i Input) Key() UtxoKey {
	return UtxoKey{i.PrevTxID, i.PrevVOut}
}

// Address returns the first address of the input, if any
func (i Input) Address() string {
	if len(i.Addresses) <= 0 {
		return ""
	}
	return i.Addresses[0]
}

// Output is an output of a transaction. SpendingTxID is set only once a
// transaction spending the output has been observed.
type Output struct {
	Addresses    []string
	Value        int64
	ScriptType   wallet.ScriptType
	SpendingTxID string
}

// Address returns the first address of the output, if any
func (o Output) Address() string {
	if len(o.Addresses) <= 0 {
		return ""
	}
	return o.Addresses[0]
}

// Transaction is a wallet transaction. DoubleSpend and
// MostProbableDoubleSpend are nil until the transaction list is reconciled
// and the transaction is part of a double-spend group.
type Transaction struct {
	TxID                    string
	Confirmations           int64
	BlockHeight             int64
	Time                    int64
	Fee                     int64
	DoubleSpend             *bool
	MostProbableDoubleSpend *bool
	Inputs                  []Input
	Outputs                 []Output
}

// IsConfirmed returns whether the transaction is included in a block
func (t Transaction) IsConfirmed() bool {
	return t.Confirmations > 0
}

// IsReplaceable returns whether any input of the transaction signals
// replaceability
func (t Transaction) IsReplaceable() bool {
	for _, in := range t.Inputs {
		if in.Sequence <= wallet.MaxRBFSequence {
			return true
		}
	}
	return false
}

// InputsValue returns the sum of the values of the inputs
func (t Transaction) InputsValue() int64 {
	var total int64
	for _, in := range t.Inputs {
		total += in.Value
	}
	return total
}

// OutputsValue returns the sum of the values of the outputs
func (t Transaction) OutputsValue() int64 {
	var total int64
	for _, out := range t.Outputs {
		total += out.Value
	}
	return total
}

// Copy returns a deep copy of the transaction
func (t Transaction) Copy() Transaction {
	cp := t
	if t.DoubleSpend != nil {
		v := *t.DoubleSpend
		cp.DoubleSpend = &v
	}
	if t.MostProbableDoubleSpend != nil {
		v := *t.MostProbableDoubleSpend
		cp.MostProbableDoubleSpend = &v
	}
	cp.Inputs = make([]Input, len(t.Inputs))
	for i, in := range t.Inputs {
		in.Addresses = append([]string(nil), in.Addresses...)
		cp.Inputs[i] = in
	}
	cp.Outputs = make([]Output, len(t.Outputs))
	for i, out := range t.Outputs {
		out.Addresses = append([]string(nil), out.Addresses...)
		cp.Outputs[i] = out
	}
	return cp
}

// FeeRate is a sats/vbyte rate expected to get a transaction confirmed
// within BlocksCount blocks. A nil BlocksCount denotes an unconditional
// floor rate.
type FeeRate struct {
	Network      wallet.NetworkKey
	BlocksCount  *int
	SatsPerVByte float64
}
