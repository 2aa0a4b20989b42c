package domain

import (
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

// TxPlan is the staged, unsigned description of a payment produced by the
// payment planner or the RBF engine. An empty ChangeAddress means the
// transaction has no change output.
type TxPlan struct {
	Amount        int64
	TargetAddress string
	Change        int64
	ChangeAddress string
	Fee           int64
	Utxos         Utxos
	Network       wallet.Network
	FeeRate       float64
	Sequence      uint32
}

// HasChange returns whether the plan has a change output
func (p *TxPlan) HasChange() bool {
	return p.Change > 0 && len(p.ChangeAddress) > 0
}

// IsBalanced returns whether the sum of the inputs exactly covers amount,
// change and fee.
func (p *TxPlan) IsBalanced() bool {
	return p.Utxos.TotalValue() == p.Amount+p.Change+p.Fee
}

// BuildTxOpts returns the options to build the transaction described by the
// plan. Keys are left empty and must be set before calling wallet.BuildTx.
func (p *TxPlan) BuildTxOpts() wallet.BuildTxOpts {
	return wallet.BuildTxOpts{
		Amount:        p.Amount,
		TargetAddress: p.TargetAddress,
		Change:        p.Change,
		ChangeAddress: p.ChangeAddress,
		Inputs:        p.Utxos.Inputs(),
		Network:       p.Network,
		Sequence:      p.Sequence,
	}
}
