package domain

import (
	"fmt"
	"sort"

	"github.com/tdex-network/tdex-btc-wallet/pkg/mathutil"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

// PaymentOpts is the struct given to PlanPayment
type PaymentOpts struct {
	Amount        int64
	TargetAddress string
	ChangeAddress string
	FeeRate       float64
	Candidates    Utxos
	Network       wallet.Network
}

func (o PaymentOpts) validate() *PlanningError {
	if o.Network.Params == nil {
		return newValidationError(
			"network is not set", "select either mainnet or testnet",
		)
	}
	if o.Amount <= 0 {
		return newValidationError(
			"amount must be greater than zero", "enter a positive amount",
		)
	}
	if _, err := wallet.ScriptForAddress(o.TargetAddress, o.Network); err != nil {
		return newValidationError(
			fmt.Sprintf("target address is not valid: %s", err),
			fmt.Sprintf("enter a valid %s address", o.Network),
		)
	}
	if _, err := wallet.ScriptForAddress(o.ChangeAddress, o.Network); err != nil {
		return newValidationError(
			fmt.Sprintf("change address is not valid: %s", err),
			"sync the wallet to derive a new change address",
		)
	}
	if o.FeeRate <= 0 {
		return newValidationError(
			"fee rate must be greater than zero", "select a positive fee rate",
		)
	}
	if !wallet.IsAboveDust(o.Amount, o.TargetAddress, o.Network) {
		return newValidationError(
			fmt.Sprintf(
				"amount must be greater than %d sats",
				wallet.DustThresholdForAddress(o.TargetAddress, o.Network),
			),
			"increase the amount to send",
		)
	}
	return nil
}

// SweepOpts is the struct given to PlanSweep
type SweepOpts struct {
	TargetAddress string
	FeeRate       float64
	Candidates    Utxos
	Network       wallet.Network
}

func (o SweepOpts) validate() *PlanningError {
	if o.Network.Params == nil {
		return newValidationError(
			"network is not set", "select either mainnet or testnet",
		)
	}
	if _, err := wallet.ScriptForAddress(o.TargetAddress, o.Network); err != nil {
		return newValidationError(
			fmt.Sprintf("target address is not valid: %s", err),
			fmt.Sprintf("enter a valid %s address", o.Network),
		)
	}
	if o.FeeRate <= 0 {
		return newValidationError(
			"fee rate must be greater than zero", "select a positive fee rate",
		)
	}
	return nil
}

// PlanPayment selects the utxos to pay amount to the target address at the
// given fee rate. Candidates are sorted by value, the largest one is always
// selected and any other one is selected only if the fee it adds to the
// transaction doesn't exceed its own value. Utxos are added until their sum
// covers amount plus fee. Change below dust is left to miners.
func PlanPayment(opts PaymentOpts) (*TxPlan, *PlanningError) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	candidates := sortUtxosByValueDesc(opts.Candidates)
	if len(candidates) <= 0 {
		return nil, insufficientFundsForPayment()
	}

	estimator := newFeeEstimator(
		opts.TargetAddress, opts.ChangeAddress, opts.FeeRate, opts.Network,
	)
	selected := Utxos{candidates[0]}
	next := 1

	for {
		if sum := selected.TotalValue(); sum > opts.Amount {
			plan, err := estimator.finalize(selected, opts.Amount)
			if err != nil {
				return nil, err
			}
			if plan != nil {
				return plan, nil
			}
		}

		var (
			candidate *Utxo
			err       *PlanningError
		)
		candidate, next, err = estimator.nextEconomical(candidates, next)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			return nil, insufficientFundsForPayment()
		}
		selected = append(selected, *candidate)
	}
}

// PlanSweep spends all economical candidates to the target address with no
// change, the fee being subtracted from the total amount.
func PlanSweep(opts SweepOpts) (*TxPlan, *PlanningError) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	candidates := sortUtxosByValueDesc(opts.Candidates)
	if len(candidates) <= 0 {
		return nil, insufficientFundsForSweep()
	}

	estimator := newFeeEstimator(
		opts.TargetAddress, "", opts.FeeRate, opts.Network,
	)
	selected := Utxos{candidates[0]}
	next := 1
	for {
		candidate, i, err := estimator.nextEconomical(candidates, next)
		if err != nil {
			return nil, err
		}
		if candidate == nil {
			break
		}
		selected = append(selected, *candidate)
		next = i
	}

	total := selected.TotalValue()
	fee, err := estimator.fee(selected, total, 0)
	if err != nil {
		return nil, err
	}
	amount := total - fee
	if !wallet.IsAboveDust(amount, opts.TargetAddress, opts.Network) {
		return nil, insufficientFundsForSweep()
	}

	return &TxPlan{
		Amount:        amount,
		TargetAddress: opts.TargetAddress,
		Fee:           fee,
		Utxos:         selected,
		Network:       opts.Network,
		FeeRate:       opts.FeeRate,
		Sequence:      wallet.MaxRBFSequence,
	}, nil
}

// feeEstimator computes fees of fake-signed transactions at a fixed rate.
// Marginal fees of an additional input are cached per script type.
type feeEstimator struct {
	targetAddress string
	changeAddress string
	feeRate       float64
	network       wallet.Network
	marginalFees  map[wallet.ScriptType]int64
}

func newFeeEstimator(
	targetAddress, changeAddress string, feeRate float64, net wallet.Network,
) *feeEstimator {
	return &feeEstimator{
		targetAddress: targetAddress,
		changeAddress: changeAddress,
		feeRate:       feeRate,
		network:       net,
		marginalFees:  make(map[wallet.ScriptType]int64),
	}
}

// fee returns the fee of a transaction spending utxos, with a change output
// only if change is greater than zero.
func (e *feeEstimator) fee(utxos Utxos, amount, change int64) (int64, *PlanningError) {
	vsize, err := e.virtualSize(utxos, amount, change)
	if err != nil {
		return 0, err
	}
	return e.feeForSize(vsize), nil
}

func (e *feeEstimator) virtualSize(
	utxos Utxos, amount, change int64,
) (int64, *PlanningError) {
	tx, err := wallet.BuildFakeTx(wallet.BuildTxOpts{
		Amount:        amount,
		TargetAddress: e.targetAddress,
		Change:        change,
		ChangeAddress: e.changeAddress,
		Inputs:        utxos.Inputs(),
		Network:       e.network,
		Sequence:      wallet.MaxRBFSequence,
		AllowDust:     true,
	})
	if err != nil {
		return 0, newValidationError(
			fmt.Sprintf("failed to build transaction: %s", err),
			"check that all utxos are spendable by the wallet",
		)
	}
	return wallet.VirtualSize(tx), nil
}

func (e *feeEstimator) feeForSize(vsize int64) int64 {
	return mathutil.FeeForVirtualSize(vsize, e.feeRate)
}

// marginalFee returns the fee added to a transaction by an input of the
// same type of the given candidate, measured on a 2-input transaction.
func (e *feeEstimator) marginalFee(first, candidate Utxo) (int64, *PlanningError) {
	if fee, ok := e.marginalFees[candidate.ScriptType]; ok {
		return fee, nil
	}

	amount := first.Value
	oneInputFee, err := e.fee(Utxos{first}, amount, 0)
	if err != nil {
		return 0, err
	}
	twoInputsFee, err := e.fee(Utxos{first, candidate}, amount, 0)
	if err != nil {
		return 0, err
	}

	fee := twoInputsFee - oneInputFee
	e.marginalFees[candidate.ScriptType] = fee
	return fee, nil
}

// nextEconomical returns the first candidate starting from index next that
// is worth more than the fee needed to spend it, along with the index
// following it.
func (e *feeEstimator) nextEconomical(
	candidates Utxos, next int,
) (*Utxo, int, *PlanningError) {
	for i := next; i < len(candidates); i++ {
		candidate := candidates[i]
		fee, err := e.marginalFee(candidates[0], candidate)
		if err != nil {
			return nil, len(candidates), err
		}
		if fee <= candidate.Value {
			return &candidate, i + 1, nil
		}
	}
	return nil, len(candidates), nil
}

// finalize returns the plan spending selected if they cover amount and fee,
// nil otherwise.
func (e *feeEstimator) finalize(selected Utxos, amount int64) (*TxPlan, *PlanningError) {
	leftover := selected.TotalValue() - amount

	plan := &TxPlan{
		Amount:        amount,
		TargetAddress: e.targetAddress,
		Utxos:         selected,
		Network:       e.network,
		FeeRate:       e.feeRate,
		Sequence:      wallet.MaxRBFSequence,
	}

	if wallet.IsAboveDust(leftover, e.changeAddress, e.network) {
		fee, err := e.fee(selected, amount, leftover)
		if err != nil {
			return nil, err
		}
		if change := leftover - fee; change >= 0 &&
			wallet.IsAboveDust(change, e.changeAddress, e.network) {
			plan.Change = change
			plan.ChangeAddress = e.changeAddress
			plan.Fee = fee
			return plan, nil
		}
	}

	// change would be dust, the whole leftover goes to miners
	fee, err := e.fee(selected, amount, 0)
	if err != nil {
		return nil, err
	}
	if leftover < fee {
		return nil, nil
	}
	plan.Fee = leftover
	return plan, nil
}

func insufficientFundsForPayment() *PlanningError {
	return newInsufficientFundsError(
		"amount plus fee exceeds the spendable balance",
		"lower the amount or the fee rate, or wait for pending "+
			"transactions to confirm",
	)
}

func insufficientFundsForSweep() *PlanningError {
	return newInsufficientFundsError(
		"spendable balance is not enough to pay the fee",
		"lower the fee rate or wait for pending transactions to confirm",
	)
}

// sortUtxosByValueDesc returns a copy of the list sorted by value, from the
// largest. Ties are broken by txid and vout.
func sortUtxosByValueDesc(utxos Utxos) Utxos {
	sorted := make(Utxos, len(utxos))
	copy(sorted, utxos)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Value != sorted[j].Value {
			return sorted[i].Value > sorted[j].Value
		}
		if sorted[i].TxID != sorted[j].TxID {
			return sorted[i].TxID < sorted[j].TxID
		}
		return sorted[i].VOut < sorted[j].VOut
	})
	return sorted
}
