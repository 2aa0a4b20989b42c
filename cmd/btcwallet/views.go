package main

import (
	"github.com/tdex-network/tdex-btc-wallet/internal/core/application"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-btc-wallet/pkg/mathutil"
)

// The following types are the JSON representation of the domain types
// printed by the commands.

type addressView struct {
	Address string `json:"address"`
	Scheme  string `json:"scheme"`
	Branch  uint32 `json:"branch"`
	Index   uint32 `json:"index"`
}

type utxoView struct {
	Outpoint      string `json:"outpoint"`
	Value         int64  `json:"value"`
	Confirmations int64  `json:"confirmations"`
	ScriptType    string `json:"script_type"`
	Address       string `json:"address"`
}

type balanceView struct {
	Unconfirmed int64      `json:"unconfirmed"`
	Spendable   int64      `json:"spendable"`
	Signable    int64      `json:"signable"`
	Confirmed   int64      `json:"confirmed"`
	TotalBtc    string     `json:"total_btc"`
	Utxos       []utxoView `json:"utxos"`
}

type txView struct {
	TxID                    string   `json:"txid"`
	Confirmations           int64    `json:"confirmations"`
	BlockHeight             int64    `json:"block_height,omitempty"`
	Time                    int64    `json:"time,omitempty"`
	Fee                     int64    `json:"fee"`
	Replaceable             bool     `json:"replaceable"`
	DoubleSpend             *bool    `json:"double_spend,omitempty"`
	MostProbableDoubleSpend *bool    `json:"most_probable_double_spend,omitempty"`
	Inputs                  []string `json:"inputs"`
	Outputs                 []string `json:"outputs"`
}

type planView struct {
	Amount        int64      `json:"amount"`
	TargetAddress string     `json:"target_address"`
	Change        int64      `json:"change,omitempty"`
	ChangeAddress string     `json:"change_address,omitempty"`
	Fee           int64      `json:"fee"`
	FeeRate       float64    `json:"fee_rate"`
	Sequence      uint32     `json:"sequence"`
	Utxos         []utxoView `json:"utxos"`
}

type sendView struct {
	Result           bool      `json:"result"`
	TxID             string    `json:"txid,omitempty"`
	TxHex            string    `json:"tx_hex,omitempty"`
	Plan             *planView `json:"plan,omitempty"`
	ErrorDescription string    `json:"error_description,omitempty"`
	HowToFix         string    `json:"how_to_fix,omitempty"`
}

type feeRateView struct {
	BlocksCount  *int    `json:"blocks_count,omitempty"`
	SatsPerVByte float64 `json:"sats_per_vbyte"`
}

type rateFeeView struct {
	feeRateView
	Fee                int64 `json:"fee"`
	CoverableByBalance bool  `json:"coverable_by_balance"`
	Rational           bool  `json:"rational"`
}

func newAddressViews(addresses []domain.DerivedAddress) []addressView {
	views := make([]addressView, 0, len(addresses))
	for _, a := range addresses {
		views = append(views, addressView{
			Address: a.Address,
			Scheme:  a.Scheme.Name,
			Branch:  a.Branch,
			Index:   a.Index,
		})
	}
	return views
}

func newUtxoViews(utxos domain.Utxos) []utxoView {
	views := make([]utxoView, 0, len(utxos))
	for _, u := range utxos {
		views = append(views, utxoView{
			Outpoint:      u.Key().String(),
			Value:         u.Value,
			Confirmations: u.Confirmations,
			ScriptType:    u.ScriptType.String(),
			Address:       u.Address,
		})
	}
	return views
}

func newBalanceView(c *domain.UtxoClassification) balanceView {
	return balanceView{
		Unconfirmed: c.Balances.Unconfirmed,
		Spendable:   c.Balances.Spendable,
		Signable:    c.Balances.Signable,
		Confirmed:   c.Balances.Confirmed,
		TotalBtc:    mathutil.SatsToBtc(c.Balances.Unconfirmed),
		Utxos:       newUtxoViews(c.Unconfirmed),
	}
}

func newTxViews(txs []domain.Transaction) []txView {
	views := make([]txView, 0, len(txs))
	for _, tx := range txs {
		inputs := make([]string, 0, len(tx.Inputs))
		for _, in := range tx.Inputs {
			inputs = append(inputs, in.Key().String())
		}
		outputs := make([]string, 0, len(tx.Outputs))
		for _, out := range tx.Outputs {
			outputs = append(outputs, out.Address())
		}
		views = append(views, txView{
			TxID:                    tx.TxID,
			Confirmations:           tx.Confirmations,
			BlockHeight:             tx.BlockHeight,
			Time:                    tx.Time,
			Fee:                     tx.Fee,
			Replaceable:             tx.IsReplaceable(),
			DoubleSpend:             tx.DoubleSpend,
			MostProbableDoubleSpend: tx.MostProbableDoubleSpend,
			Inputs:                  inputs,
			Outputs:                 outputs,
		})
	}
	return views
}

func newSendView(res *application.SendResult) sendView {
	view := sendView{
		Result:           res.Result,
		TxID:             res.TxID,
		TxHex:            res.TxHex,
		ErrorDescription: res.ErrorDescription,
		HowToFix:         res.HowToFix,
	}
	if p := res.Plan; p != nil {
		view.Plan = &planView{
			Amount:        p.Amount,
			TargetAddress: p.TargetAddress,
			Change:        p.Change,
			ChangeAddress: p.ChangeAddress,
			Fee:           p.Fee,
			FeeRate:       p.FeeRate,
			Sequence:      p.Sequence,
			Utxos:         newUtxoViews(p.Utxos),
		}
	}
	return view
}

func newFeeRateViews(rates []domain.FeeRate) []feeRateView {
	views := make([]feeRateView, 0, len(rates))
	for _, r := range rates {
		views = append(views, feeRateView{r.BlocksCount, r.SatsPerVByte})
	}
	return views
}

func newRateFeeViews(table []domain.RateFee) []rateFeeView {
	views := make([]rateFeeView, 0, len(table))
	for _, r := range table {
		views = append(views, rateFeeView{
			feeRateView:        feeRateView{r.Rate.BlocksCount, r.Rate.SatsPerVByte},
			Fee:                r.Fee,
			CoverableByBalance: r.CoverableByBalance,
			Rational:           r.Rational,
		})
	}
	return views
}
