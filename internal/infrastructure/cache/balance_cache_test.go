package cache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/ports"
	"github.com/tdex-network/tdex-btc-wallet/internal/infrastructure/cache"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

var ctx = context.Background()

func TestBalanceCache(t *testing.T) {
	t.Run("GetUtxos", testGetUtxos())
	t.Run("ConcurrentLoads", testConcurrentLoads())
	t.Run("ApplyDelta", testApplyDelta())
	t.Run("Invalidate", testInvalidate())
	t.Run("LoaderError", testLoaderError())
	t.Run("CanceledLeader", testCanceledLeader())
}

func TestNewBalanceCacheInvalidTTL(t *testing.T) {
	c, err := cache.NewBalanceCache(0)
	require.ErrorIs(t, err, cache.ErrInvalidTTL)
	require.Nil(t, c)
}

func testGetUtxos() func(t *testing.T) {
	return func(t *testing.T) {
		c := newTestCache(t)
		loader, calls := countingLoader(makeUtxos(3), nil)

		utxos, err := c.GetUtxos(ctx, "wallet", loader)
		require.NoError(t, err)
		require.Equal(t, makeUtxos(3), utxos)

		utxos, err = c.GetUtxos(ctx, "wallet", loader)
		require.NoError(t, err)
		require.Equal(t, makeUtxos(3), utxos)
		require.Equal(t, int32(1), calls.Load())

		// Entries are per wallet.
		_, err = c.GetUtxos(ctx, "other-wallet", loader)
		require.NoError(t, err)
		require.Equal(t, int32(2), calls.Load())

		_, err = c.GetUtxos(ctx, "wallet", nil)
		require.ErrorIs(t, err, cache.ErrNullLoader)
	}
}

func testConcurrentLoads() func(t *testing.T) {
	return func(t *testing.T) {
		c := newTestCache(t)

		var calls atomic.Int32
		release := make(chan struct{})
		loader := func(context.Context) (domain.Utxos, error) {
			calls.Add(1)
			<-release
			return makeUtxos(2), nil
		}

		numOfReaders := 20
		var wg sync.WaitGroup
		results := make(chan domain.Utxos, numOfReaders)
		for i := 0; i < numOfReaders; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				utxos, err := c.GetUtxos(ctx, "wallet", loader)
				if err != nil {
					t.Error(err)
				}
				results <- utxos
			}()
		}

		time.Sleep(100 * time.Millisecond)
		close(release)
		wg.Wait()
		close(results)

		require.Equal(t, int32(1), calls.Load())
		for utxos := range results {
			require.Equal(t, makeUtxos(2), utxos)
		}
	}
}

func testApplyDelta() func(t *testing.T) {
	return func(t *testing.T) {
		c := newTestCache(t)
		utxos := makeUtxos(3)
		loader, calls := countingLoader(utxos, nil)

		// No cached entry, nothing to update.
		err := c.ApplyDelta(ctx, "wallet", domain.UtxoDelta{
			Spent: []domain.UtxoKey{utxos[0].Key()},
		})
		require.NoError(t, err)

		_, err = c.GetUtxos(ctx, "wallet", loader)
		require.NoError(t, err)

		change := domain.Utxo{
			TxID:       fmt.Sprintf("%064x", 100),
			VOut:       1,
			Value:      5000,
			ScriptType: wallet.ScriptTypeP2WPKH,
			Address:    "bc1q-change",
		}
		err = c.ApplyDelta(ctx, "wallet", domain.UtxoDelta{
			Spent: []domain.UtxoKey{utxos[0].Key(), utxos[1].Key()},
			Added: domain.Utxos{change},
		})
		require.NoError(t, err)

		got, err := c.GetUtxos(ctx, "wallet", loader)
		require.NoError(t, err)
		require.Equal(t, domain.Utxos{utxos[2], change}, got)
		require.Equal(t, int32(1), calls.Load())
	}
}

func testInvalidate() func(t *testing.T) {
	return func(t *testing.T) {
		c := newTestCache(t)
		loader, calls := countingLoader(makeUtxos(1), nil)

		err := c.Invalidate(ctx, "wallet")
		require.NoError(t, err)

		_, err = c.GetUtxos(ctx, "wallet", loader)
		require.NoError(t, err)

		err = c.Invalidate(ctx, "wallet")
		require.NoError(t, err)

		_, err = c.GetUtxos(ctx, "wallet", loader)
		require.NoError(t, err)
		require.Equal(t, int32(2), calls.Load())
	}
}

func testLoaderError() func(t *testing.T) {
	return func(t *testing.T) {
		c := newTestCache(t)
		expectedErr := errors.New("explorer unreachable")
		failing, _ := countingLoader(nil, expectedErr)

		utxos, err := c.GetUtxos(ctx, "wallet", failing)
		require.ErrorIs(t, err, expectedErr)
		require.Nil(t, utxos)

		loader, calls := countingLoader(makeUtxos(1), nil)
		utxos, err = c.GetUtxos(ctx, "wallet", loader)
		require.NoError(t, err)
		require.Len(t, utxos, 1)
		require.Equal(t, int32(1), calls.Load())
	}
}

func testCanceledLeader() func(t *testing.T) {
	return func(t *testing.T) {
		c := newTestCache(t)

		started := make(chan struct{})
		release := make(chan struct{})
		loader := func(ctx context.Context) (domain.Utxos, error) {
			close(started)
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return makeUtxos(2), nil
		}

		leaderCtx, cancel := context.WithCancel(ctx)
		leaderErr := make(chan error, 1)
		go func() {
			_, err := c.GetUtxos(leaderCtx, "wallet", loader)
			leaderErr <- err
		}()
		<-started

		type result struct {
			utxos domain.Utxos
			err   error
		}
		follower := make(chan result, 1)
		go func() {
			utxos, err := c.GetUtxos(ctx, "wallet", loader)
			follower <- result{utxos, err}
		}()

		time.Sleep(100 * time.Millisecond)
		cancel()
		close(release)

		res := <-follower
		require.NoError(t, res.err)
		require.Equal(t, makeUtxos(2), res.utxos)
		require.NoError(t, <-leaderErr)
	}
}

func newTestCache(t *testing.T) ports.BalanceCache {
	c, err := cache.NewBalanceCache(time.Minute)
	require.NoError(t, err)
	return c
}

func countingLoader(
	utxos domain.Utxos, err error,
) (ports.UtxoLoader, *atomic.Int32) {
	calls := &atomic.Int32{}
	return func(context.Context) (domain.Utxos, error) {
		calls.Add(1)
		return utxos, err
	}, calls
}

func makeUtxos(num int) domain.Utxos {
	utxos := make(domain.Utxos, 0, num)
	for i := 0; i < num; i++ {
		utxos = append(utxos, domain.Utxo{
			TxID:          fmt.Sprintf("%064x", i+1),
			VOut:          uint32(i),
			Value:         int64(10000 * (i + 1)),
			Confirmations: 3,
			ScriptType:    wallet.ScriptTypeP2WPKH,
			Address:       fmt.Sprintf("bc1q-test-%d", i),
		})
	}
	return utxos
}
