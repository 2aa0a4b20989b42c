package wallet

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

const (
	testTxid1 = "0b0f2a1d3c1e7a5c1d6b7e0d3ed9e5d6c1a2b3c4d5e6f708192a3b4c5d6e7f80"
	testTxid2 = "1c0f2a1d3c1e7a5c1d6b7e0d3ed9e5d6c1a2b3c4d5e6f708192a3b4c5d6e7f81"
	testTxid3 = "2d0f2a1d3c1e7a5c1d6b7e0d3ed9e5d6c1a2b3c4d5e6f708192a3b4c5d6e7f82"

	testTargetAddress = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"
)

func newTestInputs(t *testing.T, w *Wallet) ([]Input, map[string]KeyMaterial) {
	keys := make(map[string]KeyMaterial)
	inputs := make([]Input, 0)

	for i, scheme := range Schemes {
		key, err := w.KeyMaterial(scheme, 0, ExternalBranch, uint32(i))
		require.NoError(t, err)
		keys[key.Address] = key
		inputs = append(inputs, Input{
			TxID:       []string{testTxid1, testTxid2, testTxid3}[i],
			Vout:       uint32(i),
			Value:      100000,
			Address:    key.Address,
			ScriptType: scheme.ScriptType,
		})
	}
	return inputs, keys
}

func TestBuildTx(t *testing.T) {
	w := newTestWallet(t, Mainnet)
	inputs, keys := newTestInputs(t, w)
	change, err := w.KeyMaterial(NativeSegwit, 0, InternalBranch, 0)
	require.NoError(t, err)

	opts := BuildTxOpts{
		Amount:        150000,
		TargetAddress: testTargetAddress,
		Change:        140000,
		ChangeAddress: change.Address,
		Inputs:        inputs,
		Keys:          keys,
		Network:       Mainnet,
		Sequence:      MaxRBFSequence,
	}

	tx, err := BuildTx(opts)
	require.NoError(t, err)
	require.Len(t, tx.TxIn, 3)
	require.Len(t, tx.TxOut, 2)
	require.Equal(t, int64(150000), tx.TxOut[TargetOutputIndex].Value)
	require.Equal(t, int64(140000), tx.TxOut[ChangeOutputIndex].Value)
	require.True(t, IsReplaceable(tx))
	for _, in := range tx.TxIn {
		require.Equal(t, MaxRBFSequence, in.Sequence)
	}

	// legacy input has no witness, the others do
	require.Empty(t, tx.TxIn[0].Witness)
	require.NotEmpty(t, tx.TxIn[0].SignatureScript)
	require.Len(t, tx.TxIn[1].Witness, 2)
	require.NotEmpty(t, tx.TxIn[1].SignatureScript)
	require.Len(t, tx.TxIn[2].Witness, 2)
	require.Empty(t, tx.TxIn[2].SignatureScript)

	txHex, err := SerializeTx(tx)
	require.NoError(t, err)
	parsedTx, err := DeserializeTx(txHex)
	require.NoError(t, err)
	require.Equal(t, tx.TxHash(), parsedTx.TxHash())

	fakeTx, err := BuildFakeTx(opts)
	require.NoError(t, err)
	require.GreaterOrEqual(t, VirtualSize(fakeTx), VirtualSize(tx))
	require.InDelta(
		t, VirtualSize(tx), VirtualSize(fakeTx), float64(len(inputs)),
	)

	opts.Sequence = ForbidRBFSequence
	tx, err = BuildTx(opts)
	require.NoError(t, err)
	require.False(t, IsReplaceable(tx))
}

func TestBuildFakeTxNeverSmaller(t *testing.T) {
	w := newTestWallet(t, Mainnet)

	for _, scheme := range Schemes {
		scheme := scheme
		t.Run(scheme.Name, func(t *testing.T) {
			for i := uint32(0); i < 20; i++ {
				key, err := w.KeyMaterial(scheme, 0, ExternalBranch, i)
				require.NoError(t, err)

				opts := BuildTxOpts{
					Amount:        90000,
					TargetAddress: testTargetAddress,
					Inputs: []Input{{
						TxID:       testTxid1,
						Vout:       i,
						Value:      100000,
						Address:    key.Address,
						ScriptType: scheme.ScriptType,
					}},
					Keys:     map[string]KeyMaterial{key.Address: key},
					Network:  Mainnet,
					Sequence: MaxRBFSequence,
				}

				tx, err := BuildTx(opts)
				require.NoError(t, err)
				fakeTx, err := BuildFakeTx(opts)
				require.NoError(t, err)

				require.GreaterOrEqual(t, txWeight(fakeTx), txWeight(tx))
				require.GreaterOrEqual(t, VirtualSize(fakeTx), VirtualSize(tx))
			}
		})
	}
}

func txWeight(tx *wire.MsgTx) int64 {
	return blockchain.GetTransactionWeight(btcutil.NewTx(tx))
}

func TestBuildTxOmitsDustChange(t *testing.T) {
	w := newTestWallet(t, Mainnet)
	inputs, keys := newTestInputs(t, w)
	change, err := w.KeyMaterial(NativeSegwit, 0, InternalBranch, 0)
	require.NoError(t, err)

	opts := BuildTxOpts{
		Amount:        290000,
		TargetAddress: testTargetAddress,
		Change:        SegwitDustThreshold,
		ChangeAddress: change.Address,
		Inputs:        inputs,
		Keys:          keys,
		Network:       Mainnet,
		Sequence:      MaxRBFSequence,
	}

	tx, err := BuildTx(opts)
	require.NoError(t, err)
	require.Len(t, tx.TxOut, 1)

	opts.AllowDust = true
	tx, err = BuildTx(opts)
	require.NoError(t, err)
	require.Len(t, tx.TxOut, 2)
}

func TestFailingBuildTx(t *testing.T) {
	w := newTestWallet(t, Mainnet)
	inputs, keys := newTestInputs(t, w)
	change, err := w.KeyMaterial(NativeSegwit, 0, InternalBranch, 0)
	require.NoError(t, err)
	otherKey, err := w.KeyMaterial(NativeSegwit, 0, ExternalBranch, 10)
	require.NoError(t, err)

	validOpts := func() BuildTxOpts {
		return BuildTxOpts{
			Amount:        150000,
			TargetAddress: testTargetAddress,
			Change:        140000,
			ChangeAddress: change.Address,
			Inputs:        append([]Input{}, inputs...),
			Keys:          keys,
			Network:       Mainnet,
			Sequence:      MaxRBFSequence,
		}
	}

	tests := []struct {
		name   string
		modify func(*BuildTxOpts)
		err    error
	}{
		{"empty utxo set", func(o *BuildTxOpts) { o.Inputs = nil }, ErrEmptyUtxoSet},
		{"invalid target", func(o *BuildTxOpts) { o.TargetAddress = "bc1qinvalid" }, ErrInvalidAddress},
		{"wrong network target", func(o *BuildTxOpts) {
			o.TargetAddress = "tb1q6rz28mcfaxtmd6v789l9rrlrusdprr9pqcpvkl"
		}, ErrInvalidAddress},
		{"invalid change", func(o *BuildTxOpts) { o.ChangeAddress = "" }, ErrInvalidAddress},
		{"negative amount", func(o *BuildTxOpts) { o.Amount = -1 }, ErrNegativeAmount},
		{"negative change", func(o *BuildTxOpts) { o.Change = -1 }, ErrNegativeAmount},
		{"dust amount", func(o *BuildTxOpts) { o.Amount = SegwitDustThreshold }, ErrDustOutput},
		{"invalid sequence", func(o *BuildTxOpts) { o.Sequence = MaxRBFSequence + 1 }, ErrInvalidSequence},
		{"invalid txid", func(o *BuildTxOpts) { o.Inputs[0].TxID = "abc" }, ErrInvalidInput},
		{"zero value", func(o *BuildTxOpts) { o.Inputs[0].Value = 0 }, ErrInvalidInput},
		{"unsupported script type", func(o *BuildTxOpts) {
			o.Inputs[0].ScriptType = ScriptTypeP2SH
		}, ErrUnsupportedScriptType},
		{"missing key", func(o *BuildTxOpts) { o.Keys = map[string]KeyMaterial{} }, ErrKeyMismatch},
		{"wrong key", func(o *BuildTxOpts) {
			k := make(map[string]KeyMaterial)
			for addr, key := range keys {
				k[addr] = key
			}
			addr := o.Inputs[2].Address
			wrong := otherKey
			wrong.Address = addr
			k[addr] = wrong
			o.Keys = k
		}, ErrKeyMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOpts()
			tt.modify(&opts)
			_, err := BuildTx(opts)
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.err), err.Error())
		})
	}
}
