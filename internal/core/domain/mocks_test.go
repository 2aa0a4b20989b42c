package domain_test

import (
	"github.com/stretchr/testify/mock"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

type mockAddressDeriver struct {
	mock.Mock
}

func (m *mockAddressDeriver) DeriveAddresses(
	scheme *wallet.Scheme, account, branch, from, to uint32,
) ([]string, error) {
	args := m.Called(scheme, account, branch, from, to)

	var res []string
	if a := args.Get(0); a != nil {
		res = a.([]string)
	}
	return res, args.Error(1)
}
