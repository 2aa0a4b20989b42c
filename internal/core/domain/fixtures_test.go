package domain_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

const (
	testTargetAddress = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"
	testAccount       = uint32(0)
)

var (
	testMnemonic = strings.Split(
		"abandon abandon abandon abandon abandon abandon "+
			"abandon abandon abandon abandon abandon about",
		" ",
	)
	testNetwork = wallet.Mainnet
)

type testAddresses struct {
	w        *wallet.Wallet
	external []string
	internal []string
	wrapped  []string
	legacy   []string
	book     domain.AddressBook
}

func newTestAddresses(t testing.TB) *testAddresses {
	w, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
		Mnemonic: testMnemonic,
		Network:  testNetwork,
	})
	require.NoError(t, err)

	derive := func(scheme *wallet.Scheme, branch uint32, n uint32) []string {
		addrs, err := w.DeriveAddresses(scheme, testAccount, branch, 0, n)
		require.NoError(t, err)
		return addrs
	}

	a := &testAddresses{
		w:        w,
		external: derive(wallet.NativeSegwit, wallet.ExternalBranch, 5),
		internal: derive(wallet.NativeSegwit, wallet.InternalBranch, 5),
		wrapped:  derive(wallet.WrappedSegwit, wallet.ExternalBranch, 6),
		legacy:   derive(wallet.Legacy, wallet.ExternalBranch, 2),
	}

	derived := make([]domain.DerivedAddress, 0)
	add := func(addrs []string, scheme *wallet.Scheme, branch uint32) {
		for i, addr := range addrs {
			derived = append(derived, domain.DerivedAddress{
				Address: addr,
				Scheme:  scheme,
				Branch:  branch,
				Index:   uint32(i),
			})
		}
	}
	add(a.external, wallet.NativeSegwit, wallet.ExternalBranch)
	add(a.internal, wallet.NativeSegwit, wallet.InternalBranch)
	add(a.wrapped, wallet.WrappedSegwit, wallet.ExternalBranch)
	add(a.legacy, wallet.Legacy, wallet.ExternalBranch)
	a.book = domain.NewAddressBook(derived)

	return a
}

func testTxid(i int) string {
	return fmt.Sprintf("%064x", i+1)
}

func newUtxo(
	i int, value, confirmations int64, addr string, scriptType wallet.ScriptType,
) domain.Utxo {
	return domain.Utxo{
		TxID:          testTxid(i),
		VOut:          uint32(i % 3),
		Value:         value,
		Confirmations: confirmations,
		ScriptType:    scriptType,
		Address:       addr,
	}
}

func newSegwitUtxos(addr string, values ...int64) domain.Utxos {
	utxos := make(domain.Utxos, 0, len(values))
	for i, v := range values {
		utxos = append(utxos, newUtxo(i, v, 6, addr, wallet.ScriptTypeP2WPKH))
	}
	return utxos
}

func requireSafePlan(t require.TestingT, plan *domain.TxPlan) {
	require.NotNil(t, plan)
	require.True(t, plan.IsBalanced())
	require.True(t, plan.Fee > 0)
	require.True(t, wallet.IsAboveDust(plan.Amount, plan.TargetAddress, plan.Network))
	if plan.Change != 0 {
		require.True(t, plan.HasChange())
		require.True(t, wallet.IsAboveDust(plan.Change, plan.ChangeAddress, plan.Network))
	}
}

func requirePlanningError(
	t require.TestingT, err *domain.PlanningError, kind domain.PlanningErrorKind,
) {
	require.NotNil(t, err)
	require.Equal(t, kind, err.Kind, err.Error())
	require.NotEmpty(t, err.Description)
	require.NotEmpty(t, err.HowToFix)
}

func intPtr(i int) *int {
	return &i
}
