package esplora

import (
	"github.com/tdex-network/tdex-btc-wallet/pkg/explorer"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

var scriptTypes = map[string]wallet.ScriptType{
	"p2pkh":     wallet.ScriptTypeP2PKH,
	"p2sh":      wallet.ScriptTypeP2SH,
	"v0_p2wpkh": wallet.ScriptTypeP2WPKH,
	"v0_p2wsh":  wallet.ScriptTypeP2WSH,
	"v1_p2tr":   wallet.ScriptTypeP2TR,
}

type txStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height"`
	BlockHash   string `json:"block_hash"`
	BlockTime   int64  `json:"block_time"`
}

type prevout struct {
	Script     string `json:"scriptpubkey"`
	ScriptType string `json:"scriptpubkey_type"`
	Address    string `json:"scriptpubkey_address"`
	Value      int64  `json:"value"`
}

type vin struct {
	TxID       string   `json:"txid"`
	Vout       uint32   `json:"vout"`
	Prevout    *prevout `json:"prevout"`
	Sequence   uint32   `json:"sequence"`
	IsCoinbase bool     `json:"is_coinbase"`
}

type tx struct {
	TxID   string    `json:"txid"`
	Vin    []vin     `json:"vin"`
	Vout   []prevout `json:"vout"`
	Weight int64     `json:"weight"`
	Fee    int64     `json:"fee"`
	Status txStatus  `json:"status"`
}

func parseScriptType(scriptType string) wallet.ScriptType {
	if t, ok := scriptTypes[scriptType]; ok {
		return t
	}
	return wallet.ScriptTypeNonStandard
}

func (t tx) toTransaction() explorer.Transaction {
	inputs := make([]explorer.Input, 0, len(t.Vin))
	for _, in := range t.Vin {
		input := explorer.Input{
			TxID:       in.TxID,
			Vout:       in.Vout,
			Sequence:   in.Sequence,
			IsCoinbase: in.IsCoinbase,
		}
		if in.Prevout != nil {
			input.Address = in.Prevout.Address
			input.ScriptType = parseScriptType(in.Prevout.ScriptType)
			input.Value = in.Prevout.Value
		}
		inputs = append(inputs, input)
	}

	outputs := make([]explorer.Output, 0, len(t.Vout))
	for _, out := range t.Vout {
		outputs = append(outputs, explorer.Output{
			Address:    out.Address,
			ScriptType: parseScriptType(out.ScriptType),
			Script:     out.Script,
			Value:      out.Value,
		})
	}

	return explorer.Transaction{
		TxID:        t.TxID,
		Confirmed:   t.Status.Confirmed,
		BlockHeight: t.Status.BlockHeight,
		BlockTime:   t.Status.BlockTime,
		Fee:         t.Fee,
		Weight:      t.Weight,
		Inputs:      inputs,
		Outputs:     outputs,
	}
}
