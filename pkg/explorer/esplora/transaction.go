package esplora

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/tdex-network/tdex-btc-wallet/pkg/explorer"
	"golang.org/x/sync/errgroup"
)

// confirmedPageSize is the max number of confirmed txs returned by esplora
// for a single page of an address history.
const confirmedPageSize = 25

func (e *esplora) GetTransactionsForAddresses(
	ctx context.Context, addresses []string,
) ([]explorer.Transaction, error) {
	var mu sync.Mutex
	txsByID := make(map[string]explorer.Transaction)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)

	for _, addr := range addresses {
		addr := addr
		g.Go(func() error {
			txs, err := e.getTransactionsForAddress(gctx, addr)
			if err != nil {
				return fmt.Errorf("address %s: %w", addr, err)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, tx := range txs {
				txsByID[tx.TxID] = tx
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	txs := make([]explorer.Transaction, 0, len(txsByID))
	for _, tx := range txsByID {
		txs = append(txs, tx)
	}
	sortTransactions(txs)
	return txs, nil
}

func (e *esplora) BroadcastTransaction(
	ctx context.Context, txHex string,
) (string, error) {
	headers := map[string]string{
		"Content-Type": "text/plain",
	}

	resp, err := e.request(ctx, http.MethodPost, "/tx", txHex, headers)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp), nil
}

// getTransactionsForAddress returns the whole history of an address, ie.
// the mempool txs plus all pages of confirmed ones.
func (e *esplora) getTransactionsForAddress(
	ctx context.Context, addr string,
) ([]explorer.Transaction, error) {
	path := fmt.Sprintf("/address/%s/txs", addr)
	result := make([]explorer.Transaction, 0)

	for {
		txs, err := e.getTransactions(ctx, path)
		if err != nil {
			return nil, err
		}

		confirmed := make([]tx, 0, len(txs))
		for _, t := range txs {
			result = append(result, t.toTransaction())
			if t.Status.Confirmed {
				confirmed = append(confirmed, t)
			}
		}

		if len(confirmed) < confirmedPageSize {
			break
		}
		lastSeen := confirmed[len(confirmed)-1].TxID
		path = fmt.Sprintf("/address/%s/txs/chain/%s", addr, lastSeen)
	}

	return result, nil
}

func (e *esplora) getTransactions(ctx context.Context, path string) ([]tx, error) {
	resp, err := e.request(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}

	var txs []tx
	if err := json.Unmarshal([]byte(resp), &txs); err != nil {
		return nil, fmt.Errorf("invalid txs JSON: %w", err)
	}
	return txs, nil
}

// sortTransactions orders txs from the most recent (unconfirmed first) to the
// oldest one.
func sortTransactions(txs []explorer.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Confirmed != txs[j].Confirmed {
			return !txs[i].Confirmed
		}
		if txs[i].BlockHeight != txs[j].BlockHeight {
			return txs[i].BlockHeight > txs[j].BlockHeight
		}
		return txs[i].TxID < txs[j].TxID
	})
}
