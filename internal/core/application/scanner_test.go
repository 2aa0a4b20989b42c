package application_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/application"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-btc-wallet/internal/infrastructure/storage/db/inmemory"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
	"pgregory.net/rapid"
)

const (
	testWalletID      = "test-wallet"
	testAccount       = uint32(0)
	testTargetAddress = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"
)

var (
	ctx          = context.Background()
	testNetwork  = wallet.Mainnet
	testMnemonic = strings.Split(
		"abandon abandon abandon abandon abandon abandon "+
			"abandon abandon abandon abandon abandon about",
		" ",
	)
	externalPath = domain.BranchPath(
		wallet.NativeSegwit, testNetwork, testAccount, wallet.ExternalBranch,
	)
)

func TestScanner(t *testing.T) {
	w := newTestWallet(t)
	addresses, err := w.DeriveAddresses(
		wallet.NativeSegwit, testAccount, wallet.ExternalBranch, 0, 100,
	)
	require.NoError(t, err)

	t.Run("fresh_wallet", func(t *testing.T) {
		repo := inmemory.NewAddressIndexRepositoryImpl()
		oracle := &mockOracle{}

		discovered := scan(t, w, repo, 0, oracle)
		require.Empty(t, discovered)
		require.Equal(t, 1, oracle.numOfBatches())
		require.Equal(t, -1, lastIndex(t, repo))
	})

	t.Run("used_addresses", func(t *testing.T) {
		tests := []struct {
			name            string
			used            []int
			expectedLast    int
			expectedBatches int
		}{
			{"first", []int{0}, 1, 2},
			{"within_first_batch", []int{3}, 4, 2},
			{"gap_across_batches", []int{0, 19}, 20, 2},
			{"multiple_batches", []int{0, 25}, 26, 3},
			{"last_of_batch", []int{19}, 20, 2},
		}

		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				repo := inmemory.NewAddressIndexRepositoryImpl()
				oracle := &mockOracle{used: usedSet(addresses, tt.used...)}

				discovered := scan(t, w, repo, 0, oracle)
				require.Len(t, discovered, tt.expectedLast+1)
				for i, a := range discovered {
					require.Equal(t, addresses[i], a.Address)
					require.Equal(t, uint32(i), a.Index)
					require.Equal(t, wallet.NativeSegwit, a.Scheme)
				}
				require.Equal(t, tt.expectedBatches, oracle.numOfBatches())
				require.Equal(t, tt.expectedLast, lastIndex(t, repo))

				stored, err := repo.GetAddresses(ctx, testWalletID)
				require.NoError(t, err)
				require.Equal(t, discovered, stored)
			})
		}
	})

	t.Run("unused_beyond_gap", func(t *testing.T) {
		repo := inmemory.NewAddressIndexRepositoryImpl()
		oracle := &mockOracle{used: usedSet(addresses, 25)}

		discovered := scan(t, w, repo, 0, oracle)
		require.Empty(t, discovered)
		require.Equal(t, 1, oracle.numOfBatches())
	})

	t.Run("resume_from_index", func(t *testing.T) {
		repo := inmemory.NewAddressIndexRepositoryImpl()
		err := repo.IncrementIndex(ctx, testWalletID, externalPath, 4, -1)
		require.NoError(t, err)

		oracle := &mockOracle{used: usedSet(addresses, 7)}
		discovered := scan(t, w, repo, 5, oracle)
		require.Len(t, discovered, 4)
		require.Equal(t, uint32(5), discovered[0].Index)
		require.Equal(t, uint32(8), discovered[3].Index)
		require.Equal(t, 8, lastIndex(t, repo))
	})

	t.Run("resume_without_usage", func(t *testing.T) {
		repo := inmemory.NewAddressIndexRepositoryImpl()
		err := repo.IncrementIndex(ctx, testWalletID, externalPath, 4, -1)
		require.NoError(t, err)

		discovered := scan(t, w, repo, 5, &mockOracle{})
		require.Empty(t, discovered)
		require.Equal(t, 4, lastIndex(t, repo))
	})

	t.Run("repeated_scans", func(t *testing.T) {
		repo := inmemory.NewAddressIndexRepositoryImpl()
		used := usedSet(addresses, 0)

		discovered := scan(t, w, repo, 0, &mockOracle{used: used})
		require.Len(t, discovered, 2)
		require.Equal(t, 1, lastIndex(t, repo))

		for i := 0; i < application.GapLimit+10; i++ {
			indexes, err := repo.GetIndexes(ctx, testWalletID)
			require.NoError(t, err)
			start := domain.NextUnusedIndex(indexes, externalPath)

			discovered := scan(t, w, repo, start, &mockOracle{used: used})
			require.Empty(t, discovered)
			require.Equal(t, 1, lastIndex(t, repo))
		}

		// A restore from scratch finds every address handed out so far.
		restored := scan(
			t, w, inmemory.NewAddressIndexRepositoryImpl(), 0,
			&mockOracle{used: usedSet(addresses, 0, 1)},
		)
		require.Len(t, restored, 3)
	})

	t.Run("canceled", func(t *testing.T) {
		repo := inmemory.NewAddressIndexRepositoryImpl()
		cancelCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		oracle := &mockOracle{
			used:        usedSet(addresses, 2, 30),
			cancelAfter: 1,
			cancel:      cancel,
		}
		scanner := application.NewScanner(repo, testNetwork, testAccount)
		discovered, err := scanner.Scan(
			cancelCtx, testWalletID, wallet.NativeSegwit,
			branchKey(t, w), wallet.ExternalBranch, 0, oracle,
		)
		require.ErrorIs(t, err, context.Canceled)
		require.Len(t, discovered, 1)
		require.Equal(t, addresses[2], discovered[0].Address)
		require.Equal(t, 1, oracle.numOfBatches())
		require.Equal(t, 2, lastIndex(t, repo))
	})

	t.Run("canceled_before_usage", func(t *testing.T) {
		repo := inmemory.NewAddressIndexRepositoryImpl()
		cancelCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		oracle := &mockOracle{cancelAfter: 1, cancel: cancel}
		scanner := application.NewScanner(repo, testNetwork, testAccount)
		discovered, err := scanner.Scan(
			cancelCtx, testWalletID, wallet.NativeSegwit,
			branchKey(t, w), wallet.ExternalBranch, 0, oracle,
		)
		// The gap limit is reached within the first batch.
		require.NoError(t, err)
		require.Empty(t, discovered)

		oracle = &mockOracle{cancelAfter: 1, cancel: cancel}
		discovered, err = scanner.Scan(
			cancelCtx, testWalletID, wallet.NativeSegwit,
			branchKey(t, w), wallet.ExternalBranch, 0, oracle,
		)
		require.ErrorIs(t, err, context.Canceled)
		require.Empty(t, discovered)
		require.Equal(t, -1, lastIndex(t, repo))
	})

	t.Run("oracle_error", func(t *testing.T) {
		repo := inmemory.NewAddressIndexRepositoryImpl()
		expectedErr := errors.New("explorer unreachable")
		oracle := &mockOracle{err: expectedErr}

		scanner := application.NewScanner(repo, testNetwork, testAccount)
		discovered, err := scanner.Scan(
			ctx, testWalletID, wallet.NativeSegwit,
			branchKey(t, w), wallet.ExternalBranch, 0, oracle,
		)
		require.ErrorIs(t, err, expectedErr)
		require.Nil(t, discovered)
		require.Equal(t, -1, lastIndex(t, repo))
	})

	t.Run("stale_start_index", func(t *testing.T) {
		repo := inmemory.NewAddressIndexRepositoryImpl()
		err := repo.IncrementIndex(ctx, testWalletID, externalPath, 10, -1)
		require.NoError(t, err)

		oracle := &mockOracle{used: usedSet(addresses, 3)}
		scanner := application.NewScanner(repo, testNetwork, testAccount)
		_, err = scanner.Scan(
			ctx, testWalletID, wallet.NativeSegwit,
			branchKey(t, w), wallet.ExternalBranch, 0, oracle,
		)
		require.ErrorIs(t, err, domain.ErrIndexConflict)
		require.Equal(t, 10, lastIndex(t, repo))
	})

	t.Run("invalid_args", func(t *testing.T) {
		scanner := application.NewScanner(
			inmemory.NewAddressIndexRepositoryImpl(), testNetwork, testAccount,
		)
		_, err := scanner.Scan(
			ctx, testWalletID, nil, branchKey(t, w), wallet.ExternalBranch, 0,
			&mockOracle{},
		)
		require.ErrorIs(t, err, wallet.ErrNullScheme)

		_, err = scanner.Scan(
			ctx, testWalletID, wallet.NativeSegwit, branchKey(t, w), 2, 0,
			&mockOracle{},
		)
		require.ErrorIs(t, err, wallet.ErrInvalidBranch)
	})
}

func TestScannerProperties(t *testing.T) {
	w := newTestWallet(t)
	addresses, err := w.DeriveAddresses(
		wallet.NativeSegwit, testAccount, wallet.ExternalBranch, 0, 80,
	)
	require.NoError(t, err)
	key := branchKey(t, w)

	rapid.Check(t, func(t *rapid.T) {
		used := rapid.SliceOfDistinct(
			rapid.IntRange(0, 59), rapid.ID[int],
		).Draw(t, "used")

		// Usage beyond a gap of GapLimit unused addresses can't be found.
		lastUsed, gap := -1, 0
		set := usedSet(addresses, used...)
		for i := 0; gap < application.GapLimit; i++ {
			if set[addresses[i]] {
				lastUsed, gap = i, 0
				continue
			}
			gap++
		}

		repo := inmemory.NewAddressIndexRepositoryImpl()
		oracle := &mockOracle{used: set}
		scanner := application.NewScanner(repo, testNetwork, testAccount)
		discovered, err := scanner.Scan(
			ctx, testWalletID, wallet.NativeSegwit, key,
			wallet.ExternalBranch, 0, oracle,
		)
		require.NoError(t, err)

		if lastUsed < 0 {
			require.Empty(t, discovered)
			return
		}
		require.Len(t, discovered, lastUsed+2)
		for i, a := range discovered[:len(discovered)-1] {
			require.LessOrEqual(t, int(a.Index), lastUsed)
			require.Equal(t, uint32(i), a.Index)
		}
		require.Equal(t, uint32(lastUsed+1), discovered[len(discovered)-1].Index)

		expectedBatches := (lastUsed+application.GapLimit)/application.GapLimit + 1
		require.Equal(t, expectedBatches, oracle.numOfBatches())
	})
}

func scan(
	t *testing.T, w *wallet.Wallet, repo domain.AddressIndexRepository,
	startIndex uint32, oracle application.UsageOracle,
) []domain.DerivedAddress {
	scanner := application.NewScanner(repo, testNetwork, testAccount)
	discovered, err := scanner.Scan(
		ctx, testWalletID, wallet.NativeSegwit, branchKey(t, w),
		wallet.ExternalBranch, startIndex, oracle,
	)
	require.NoError(t, err)
	return discovered
}

func newTestWallet(t require.TestingT) *wallet.Wallet {
	w, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
		Mnemonic: testMnemonic,
		Network:  testNetwork,
	})
	require.NoError(t, err)
	return w
}

func branchKey(t require.TestingT, w *wallet.Wallet) *hdkeychain.ExtendedKey {
	key, err := w.BranchKey(wallet.NativeSegwit, testAccount, wallet.ExternalBranch)
	require.NoError(t, err)
	return key
}

func lastIndex(t *testing.T, repo domain.AddressIndexRepository) int {
	indexes, err := repo.GetIndexes(ctx, testWalletID)
	require.NoError(t, err)
	return domain.LastIndex(indexes, externalPath)
}

func usedSet(addresses []string, indexes ...int) map[string]bool {
	used := make(map[string]bool, len(indexes))
	for _, i := range indexes {
		used[addresses[i]] = true
	}
	return used
}
