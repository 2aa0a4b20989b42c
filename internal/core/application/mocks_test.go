package application_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/tdex-btc-wallet/pkg/explorer"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

// **** Explorer ****

type mockExplorer struct {
	mock.Mock
}

func (m *mockExplorer) GetTransactionsForAddresses(
	ctx context.Context, addresses []string,
) ([]explorer.Transaction, error) {
	args := m.Called(ctx, addresses)

	var res []explorer.Transaction
	if a := args.Get(0); a != nil {
		res = a.([]explorer.Transaction)
	}
	return res, args.Error(1)
}

func (m *mockExplorer) GetBlockHeight(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockExplorer) BroadcastTransaction(
	ctx context.Context, txhex string,
) (string, error) {
	args := m.Called(ctx, txhex)
	return args.String(0), args.Error(1)
}

func (m *mockExplorer) GetFeeEstimates(
	ctx context.Context,
) (map[int]float64, error) {
	args := m.Called(ctx)

	var res map[int]float64
	if a := args.Get(0); a != nil {
		res = a.(map[int]float64)
	}
	return res, args.Error(1)
}

// **** Usage oracle ****

// mockOracle marks as used the addresses in the used set. If cancelAfter is
// positive, cancel is called once that many batches have been checked.
type mockOracle struct {
	used        map[string]bool
	err         error
	cancelAfter int
	cancel      context.CancelFunc

	lock    sync.Mutex
	batches [][]string
}

func (m *mockOracle) UsedAddresses(
	_ context.Context, addresses []string,
) (map[string]bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	m.batches = append(m.batches, addresses)
	usage := make(map[string]bool, len(addresses))
	for _, addr := range addresses {
		usage[addr] = m.used[addr]
	}
	if m.cancelAfter > 0 && len(m.batches) == m.cancelAfter {
		m.cancel()
	}
	return usage, nil
}

func (m *mockOracle) numOfBatches() int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return len(m.batches)
}

// **** Chain ****

// fakeChain is an in-memory explorer.Service. Broadcasted transactions are
// added to the mempool replacing any conflicting one, and mine confirms all
// of them in a new block.
type fakeChain struct {
	network      wallet.Network
	tip          int64
	feeEstimates map[int]float64

	lock        sync.Mutex
	txs         []explorer.Transaction
	broadcasted []string
	nextFunding int
}

func newFakeChain(network wallet.Network) *fakeChain {
	return &fakeChain{
		network:      network,
		tip:          100,
		feeEstimates: map[int]float64{1: 20, 3: 10, 6: 5},
	}
}

// fund adds to the chain a confirmed transaction paying the given amounts to
// the given address, each one in its own output.
func (c *fakeChain) fund(addr string, amounts ...int64) string {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.nextFunding++
	scriptType, _ := wallet.ScriptTypeForAddress(addr, c.network)

	var total int64
	outputs := make([]explorer.Output, 0, len(amounts))
	for _, amount := range amounts {
		total += amount
		outputs = append(outputs, explorer.Output{
			Address:    addr,
			ScriptType: scriptType,
			Value:      amount,
		})
	}

	txid := fmt.Sprintf("%064x", 0xf0000+c.nextFunding)
	c.txs = append(c.txs, explorer.Transaction{
		TxID:        txid,
		Confirmed:   true,
		BlockHeight: c.tip - 5,
		Fee:         1000,
		Inputs: []explorer.Input{{
			TxID:       fmt.Sprintf("%064x", 0xe0000+c.nextFunding),
			Vout:       0,
			Sequence:   wallet.ForbidRBFSequence,
			ScriptType: wallet.ScriptTypeP2WPKH,
			Value:      total + 1000,
		}},
		Outputs: outputs,
	})
	return txid
}

func (c *fakeChain) mine() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.tip++
	for i, tx := range c.txs {
		if !tx.Confirmed {
			c.txs[i].Confirmed = true
			c.txs[i].BlockHeight = c.tip
		}
	}
}

func (c *fakeChain) numOfBroadcasted() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.broadcasted)
}

func (c *fakeChain) GetTransactionsForAddresses(
	_ context.Context, addresses []string,
) ([]explorer.Transaction, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	wanted := make(map[string]struct{}, len(addresses))
	for _, addr := range addresses {
		wanted[addr] = struct{}{}
	}

	txs := make([]explorer.Transaction, 0)
	for _, tx := range c.txs {
		if touches(tx, wanted) {
			txs = append(txs, tx)
		}
	}
	return txs, nil
}

func (c *fakeChain) GetBlockHeight(context.Context) (int64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.tip, nil
}

func (c *fakeChain) GetFeeEstimates(context.Context) (map[int]float64, error) {
	return c.feeEstimates, nil
}

func (c *fakeChain) BroadcastTransaction(
	_ context.Context, txhex string,
) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	msgTx, err := wallet.DeserializeTx(txhex)
	if err != nil {
		return "", err
	}

	spent := make(map[string]struct{})
	inputs := make([]explorer.Input, 0, len(msgTx.TxIn))
	var inputsValue int64
	for _, in := range msgTx.TxIn {
		prevTxID := in.PreviousOutPoint.Hash.String()
		prevVout := in.PreviousOutPoint.Index
		prevOut, ok := c.findOutput(prevTxID, prevVout)
		if !ok {
			return "", fmt.Errorf("missing input %s:%d", prevTxID, prevVout)
		}
		spent[fmt.Sprintf("%s:%d", prevTxID, prevVout)] = struct{}{}
		inputsValue += prevOut.Value
		inputs = append(inputs, explorer.Input{
			TxID:       prevTxID,
			Vout:       prevVout,
			Sequence:   in.Sequence,
			Address:    prevOut.Address,
			ScriptType: prevOut.ScriptType,
			Value:      prevOut.Value,
		})
	}

	outputs := make([]explorer.Output, 0, len(msgTx.TxOut))
	var outputsValue int64
	for _, out := range msgTx.TxOut {
		_, addrs, _, err := txscript.ExtractPkScriptAddrs(
			out.PkScript, c.network.Params,
		)
		if err != nil || len(addrs) <= 0 {
			return "", fmt.Errorf("non standard output script")
		}
		outputsValue += out.Value
		outputs = append(outputs, explorer.Output{
			Address:    addrs[0].EncodeAddress(),
			ScriptType: wallet.ScriptTypeForScript(out.PkScript),
			Value:      out.Value,
		})
	}

	// Replace the conflicting mempool transactions.
	txs := make([]explorer.Transaction, 0, len(c.txs)+1)
	for _, tx := range c.txs {
		if !tx.Confirmed && spendsAny(tx, spent) {
			continue
		}
		txs = append(txs, tx)
	}

	txid := msgTx.TxHash().String()
	c.txs = append(txs, explorer.Transaction{
		TxID:    txid,
		Fee:     inputsValue - outputsValue,
		Weight:  blockchain.GetTransactionWeight(btcutil.NewTx(msgTx)),
		Inputs:  inputs,
		Outputs: outputs,
	})
	c.broadcasted = append(c.broadcasted, txid)
	return txid, nil
}

func (c *fakeChain) findOutput(txid string, vout uint32) (explorer.Output, bool) {
	for _, tx := range c.txs {
		if tx.TxID == txid && int(vout) < len(tx.Outputs) {
			return tx.Outputs[vout], true
		}
	}
	return explorer.Output{}, false
}

func touches(tx explorer.Transaction, addresses map[string]struct{}) bool {
	for _, in := range tx.Inputs {
		if _, ok := addresses[in.Address]; ok {
			return true
		}
	}
	for _, out := range tx.Outputs {
		if _, ok := addresses[out.Address]; ok {
			return true
		}
	}
	return false
}

func spendsAny(tx explorer.Transaction, outpoints map[string]struct{}) bool {
	for _, in := range tx.Inputs {
		if _, ok := outpoints[fmt.Sprintf("%s:%d", in.TxID, in.Vout)]; ok {
			return true
		}
	}
	return false
}
