package domain

import (
	"fmt"

	"github.com/tdex-network/tdex-btc-wallet/pkg/mathutil"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

// ReplacementOpts is the struct given to ComputeReplacement. ChangeAddress
// is used only if the replaced transaction has no change output and the
// replacement needs one.
type ReplacementOpts struct {
	OldTx         Transaction
	NewFee        int64
	ChangeAddress string
	Candidates    Utxos
	Book          AddressBook
	IsFinal       bool
	Network       wallet.Network
}

func (o ReplacementOpts) validate() *PlanningError {
	if o.Network.Params == nil {
		return newValidationError(
			"network is not set", "select either mainnet or testnet",
		)
	}
	if o.NewFee <= 0 {
		return newValidationError(
			"new fee must be greater than zero", "select a positive fee",
		)
	}
	return nil
}

// FeeTableOpts is the struct given to EstimateFeesForRates
type FeeTableOpts struct {
	OldTx         Transaction
	ChangeAddress string
	Rates         []FeeRate
	Candidates    Utxos
	Book          AddressBook
	Network       wallet.Network
}

func (o FeeTableOpts) validate() *PlanningError {
	if o.Network.Params == nil {
		return newValidationError(
			"network is not set", "select either mainnet or testnet",
		)
	}
	for _, r := range o.Rates {
		if r.SatsPerVByte <= 0 {
			return newValidationError(
				"fee rates must be greater than zero",
				"refresh the fee estimates",
			)
		}
	}
	return nil
}

// RateFee is an entry of the fee table returned by EstimateFeesForRates.
// Rational is false if another rate targeting fewer blocks costs less.
type RateFee struct {
	Rate               FeeRate
	Fee                int64
	CoverableByBalance bool
	Rational           bool
}

// replaceableTx is the decomposition of a transaction to replace into
// sending output, change output and spent utxos.
type replaceableTx struct {
	targetAddress string
	amount        int64
	changeAddress string
	change        int64
	fee           int64
	utxos         Utxos
}

func (r replaceableTx) hasChange() bool {
	return len(r.changeAddress) > 0
}

func parseReplaceableTx(
	tx Transaction, book AddressBook, net wallet.Network,
) (*replaceableTx, *PlanningError) {
	if tx.IsConfirmed() {
		return nil, newValidationError(
			fmt.Sprintf("transaction %s is already confirmed", tx.TxID),
			"only unconfirmed transactions can be replaced",
		)
	}
	if !tx.IsReplaceable() {
		return nil, newValidationError(
			fmt.Sprintf("transaction %s does not signal replaceability", tx.TxID),
			"only transactions with RBF enabled can be replaced",
		)
	}
	if len(tx.Outputs) <= 0 || len(tx.Outputs) > 2 {
		return nil, newMalformedTransactionError(fmt.Sprintf(
			"transaction %s has %d outputs", tx.TxID, len(tx.Outputs),
		))
	}

	result := &replaceableTx{}
	if len(tx.Outputs) == 1 {
		out := tx.Outputs[0]
		result.targetAddress = out.Address()
		result.amount = out.Value
	} else {
		var sending, change []Output
		for _, out := range tx.Outputs {
			if book.IsInternal(out.Address()) {
				change = append(change, out)
			} else {
				sending = append(sending, out)
			}
		}
		if len(change) != 1 || len(sending) != 1 {
			return nil, newConsistencyError(fmt.Sprintf(
				"transaction %s must have exactly one change and one sending "+
					"output, got %d change outputs", tx.TxID, len(change),
			))
		}
		result.targetAddress = sending[0].Address()
		result.amount = sending[0].Value
		result.changeAddress = change[0].Address()
		result.change = change[0].Value
	}

	if _, err := wallet.ScriptForAddress(result.targetAddress, net); err != nil {
		return nil, newMalformedTransactionError(fmt.Sprintf(
			"sending output of transaction %s has no standard address", tx.TxID,
		))
	}

	result.utxos = make(Utxos, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		addr := in.Address()
		scriptType, ok := book.ScriptType(addr)
		if !ok {
			return nil, newConsistencyError(fmt.Sprintf(
				"input %s of transaction %s is not owned by the wallet",
				in.Key(), tx.TxID,
			))
		}
		result.utxos = append(result.utxos, Utxo{
			TxID:       in.PrevTxID,
			VOut:       in.PrevVOut,
			Value:      in.Value,
			ScriptType: scriptType,
			Address:    addr,
		})
	}

	result.fee = result.utxos.TotalValue() - result.amount - result.change
	if result.fee < 0 {
		return nil, newConsistencyError(fmt.Sprintf(
			"outputs of transaction %s exceed its inputs", tx.TxID,
		))
	}
	return result, nil
}

// replacementCandidates returns the candidates sorted by value, excluding
// those spent or created by the replaced transaction.
func replacementCandidates(tx Transaction, candidates Utxos) Utxos {
	excluded := make(map[UtxoKey]struct{})
	for _, in := range tx.Inputs {
		excluded[in.Key()] = struct{}{}
	}

	filtered := make(Utxos, 0, len(candidates))
	for _, u := range candidates {
		if u.TxID == tx.TxID {
			continue
		}
		if _, ok := excluded[u.Key()]; ok {
			continue
		}
		filtered = append(filtered, u)
	}
	return sortUtxosByValueDesc(filtered)
}

// ComputeReplacement returns the plan of a transaction replacing the given
// one and paying exactly NewFee. Target and amount are preserved, the
// difference with the old fee is taken from the change output and, if not
// enough, from additional candidate utxos selected from the largest. A
// change left below dust goes to miners.
func ComputeReplacement(opts ReplacementOpts) (*TxPlan, *PlanningError) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	old, err := parseReplaceableTx(opts.OldTx, opts.Book, opts.Network)
	if err != nil {
		return nil, err
	}
	if opts.NewFee <= old.fee {
		return nil, newValidationError(
			fmt.Sprintf(
				"new fee must be greater than the current one of %d sats", old.fee,
			),
			"select a higher fee",
		)
	}

	changeAddress := old.changeAddress
	if len(changeAddress) <= 0 {
		changeAddress = opts.ChangeAddress
	}

	utxos := append(Utxos{}, old.utxos...)
	newChange := old.change + old.fee - opts.NewFee
	if newChange < 0 {
		for _, u := range replacementCandidates(opts.OldTx, opts.Candidates) {
			utxos = append(utxos, u)
			newChange += u.Value
			if newChange >= 0 {
				break
			}
		}
		if newChange < 0 {
			return nil, newInsufficientFundsError(
				fmt.Sprintf(
					"spendable balance can't cover the additional %d sats of fee",
					-newChange,
				),
				"select a lower fee or wait for pending transactions to confirm",
			)
		}
	}

	fee := opts.NewFee
	if newChange > 0 {
		if len(changeAddress) <= 0 {
			return nil, newValidationError(
				"replacement requires a change output but no change address "+
					"was given",
				"sync the wallet to derive a new change address",
			)
		}
		if _, err := wallet.ScriptForAddress(changeAddress, opts.Network); err != nil {
			return nil, newValidationError(
				fmt.Sprintf("change address is not valid: %s", err),
				"sync the wallet to derive a new change address",
			)
		}
		if !wallet.IsAboveDust(newChange, changeAddress, opts.Network) {
			fee += newChange
			newChange = 0
		}
	}

	sequence := wallet.MaxRBFSequence
	if opts.IsFinal {
		sequence = wallet.ForbidRBFSequence
	}

	plan := &TxPlan{
		Amount:        old.amount,
		TargetAddress: old.targetAddress,
		Change:        newChange,
		Fee:           fee,
		Utxos:         utxos,
		Network:       opts.Network,
		Sequence:      sequence,
	}
	if newChange > 0 {
		plan.ChangeAddress = changeAddress
	}

	estimator := newFeeEstimator(
		plan.TargetAddress, changeAddress, 1, opts.Network,
	)
	vsize, perr := estimator.virtualSize(plan.Utxos, plan.Amount, plan.Change)
	if perr != nil {
		return nil, perr
	}
	plan.FeeRate = mathutil.FeeRate(plan.Fee, vsize)

	return plan, nil
}

// EstimateFeesForRates returns, for every given rate, the fee of the
// replacement of the given transaction. Candidate utxos are added one at a
// time, from the largest, until every rate is covered or candidates run
// out. Rates that can't be covered are returned with CoverableByBalance
// false, as are those whose fee doesn't exceed the one of the replaced
// transaction since no replacement can pay it.
func EstimateFeesForRates(opts FeeTableOpts) ([]RateFee, *PlanningError) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	old, err := parseReplaceableTx(opts.OldTx, opts.Book, opts.Network)
	if err != nil {
		return nil, err
	}

	changeAddress := old.changeAddress
	if len(changeAddress) <= 0 {
		changeAddress = opts.ChangeAddress
	}
	if len(changeAddress) > 0 {
		if _, err := wallet.ScriptForAddress(changeAddress, opts.Network); err != nil {
			changeAddress = ""
		}
	}

	table := make([]RateFee, len(opts.Rates))
	resolved := make([]bool, len(opts.Rates))
	for i, rate := range opts.Rates {
		table[i] = RateFee{Rate: rate, Rational: true}
	}

	candidates := replacementCandidates(opts.OldTx, opts.Candidates)
	utxos := append(Utxos{}, old.utxos...)

	for k := 0; k <= len(candidates); k++ {
		if k > 0 {
			utxos = append(utxos, candidates[k-1])
		}
		leftover := utxos.TotalValue() - old.amount

		// all rates share the same tx shapes, only their vsize is needed
		var withChangeSize, noChangeSize int64
		if len(changeAddress) > 0 {
			estimator := newFeeEstimator(
				old.targetAddress, changeAddress, 1, opts.Network,
			)
			size, err := estimator.virtualSize(utxos, old.amount, 1)
			if err != nil {
				return nil, err
			}
			withChangeSize = size
		}
		estimator := newFeeEstimator(old.targetAddress, "", 1, opts.Network)
		size, perr := estimator.virtualSize(utxos, old.amount, 0)
		if perr != nil {
			return nil, perr
		}
		noChangeSize = size

		allResolved := true
		for i, rate := range opts.Rates {
			if resolved[i] {
				continue
			}

			if withChangeSize > 0 {
				fee := mathutil.FeeForVirtualSize(withChangeSize, rate.SatsPerVByte)
				if wallet.IsAboveDust(leftover-fee, changeAddress, opts.Network) {
					table[i].Fee = fee
					table[i].CoverableByBalance = fee > old.fee
					resolved[i] = true
					continue
				}
			}

			fee := mathutil.FeeForVirtualSize(noChangeSize, rate.SatsPerVByte)
			if leftover >= fee {
				table[i].Fee = leftover
				table[i].CoverableByBalance = leftover > old.fee
				resolved[i] = true
				continue
			}

			table[i].Fee = fee
			allResolved = false
		}
		if allResolved {
			break
		}
	}

	for i := range table {
		if !table[i].CoverableByBalance {
			continue
		}
		for j := range table {
			if i == j || !table[j].CoverableByBalance {
				continue
			}
			if table[j].Fee < table[i].Fee &&
				hasHigherPriority(table[j].Rate, table[i].Rate) {
				table[i].Rational = false
				break
			}
		}
	}

	return table, nil
}

// hasHigherPriority returns whether rate a targets fewer blocks than b. A
// floor rate has the lowest priority.
func hasHigherPriority(a, b FeeRate) bool {
	if a.BlocksCount == nil {
		return false
	}
	if b.BlocksCount == nil {
		return true
	}
	return *a.BlocksCount < *b.BlocksCount
}
