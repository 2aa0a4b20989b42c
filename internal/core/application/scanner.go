package application

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

// GapLimit is the number of consecutive unused addresses after which a
// branch is considered fully scanned. It's also the size of the batches of
// addresses given to the usage oracle.
const GapLimit = 20

// UsageOracle tells which of the given addresses have been used on chain.
type UsageOracle interface {
	UsedAddresses(ctx context.Context, addresses []string) (map[string]bool, error)
}

// Scanner walks the derivation branches of a wallet to discover used
// addresses and persists the new branch index.
type Scanner struct {
	repository domain.AddressIndexRepository
	network    wallet.Network
	account    uint32
}

// NewScanner returns a Scanner for the given account
func NewScanner(
	repository domain.AddressIndexRepository, network wallet.Network,
	account uint32,
) *Scanner {
	return &Scanner{repository, network, account}
}

// scanAccumulator holds the state of a scan across oracle batches.
type scanAccumulator struct {
	startIndex uint32
	derived    []domain.DerivedAddress
	used       []domain.DerivedAddress
	lastUsed   int
	gap        int
}

func newScanAccumulator(startIndex uint32) *scanAccumulator {
	return &scanAccumulator{startIndex: startIndex, lastUsed: -1}
}

func (a *scanAccumulator) nextIndex() uint32 {
	return a.startIndex + uint32(len(a.derived))
}

func (a *scanAccumulator) isDone() bool {
	return a.gap >= GapLimit
}

// add processes a batch in order and stops as soon as the gap limit is
// reached.
func (a *scanAccumulator) add(
	batch []domain.DerivedAddress, usage map[string]bool,
) {
	for _, addr := range batch {
		if a.isDone() {
			return
		}
		a.derived = append(a.derived, addr)
		if usage[addr.Address] {
			a.used = append(a.used, addr)
			a.lastUsed = len(a.derived) - 1
			a.gap = 0
			continue
		}
		a.gap++
	}
}

// discovered returns the derived addresses without the trailing ones that
// only prove the gap, keeping the first unused one. Nothing is returned if
// no address of the scanned range is used, so that a branch index never
// moves past the last used address plus one.
func (a *scanAccumulator) discovered() []domain.DerivedAddress {
	if len(a.used) <= 0 {
		return nil
	}
	n := len(a.derived) - (GapLimit - 1)
	if n <= 0 {
		return nil
	}
	return a.derived[:n]
}

// confirmed returns the derived addresses up to the last used one.
func (a *scanAccumulator) confirmed() []domain.DerivedAddress {
	return a.derived[:a.lastUsed+1]
}

// Scan derives the addresses of the given branch key starting from
// startIndex, GapLimit at a time, until GapLimit consecutive unused ones are
// found. The discovered addresses are persisted along with the new branch
// index and returned. If the context is canceled between two batches, only
// the used addresses found so far are persisted and returned, together with
// the context error.
func (s *Scanner) Scan(
	ctx context.Context, walletID string, scheme *wallet.Scheme,
	branchKey *hdkeychain.ExtendedKey, branch, startIndex uint32,
	oracle UsageOracle,
) ([]domain.DerivedAddress, error) {
	if scheme == nil {
		return nil, wallet.ErrNullScheme
	}
	if branch != wallet.ExternalBranch && branch != wallet.InternalBranch {
		return nil, wallet.ErrInvalidBranch
	}

	path := domain.BranchPath(scheme, s.network, s.account, branch)
	expectedBase := int(startIndex) - 1
	acc := newScanAccumulator(startIndex)

	for !acc.isDone() {
		if err := ctx.Err(); err != nil {
			return s.persistCanceled(ctx, walletID, path, expectedBase, acc, err)
		}

		batch, err := s.deriveBatch(scheme, branchKey, branch, acc.nextIndex())
		if err != nil {
			return nil, err
		}

		usage, err := oracle.UsedAddresses(ctx, addressesOf(batch))
		if err != nil {
			return nil, fmt.Errorf("failed to check address usage: %w", err)
		}

		acc.add(batch, usage)
		log.Debugf(
			"scanned %s up to index %d, gap %d", path, acc.nextIndex()-1, acc.gap,
		)
	}

	discovered := acc.discovered()
	if len(discovered) <= 0 {
		return nil, nil
	}

	if err := s.repository.IncrementIndexAndStoreAddresses(
		ctx, walletID, path, discovered, expectedBase,
	); err != nil {
		return nil, err
	}

	log.Debugf(
		"branch %s moved to index %d", path, discovered[len(discovered)-1].Index,
	)
	return discovered, nil
}

func (s *Scanner) persistCanceled(
	ctx context.Context, walletID, path string, expectedBase int,
	acc *scanAccumulator, ctxErr error,
) ([]domain.DerivedAddress, error) {
	confirmed := acc.confirmed()
	if len(confirmed) <= 0 {
		return nil, ctxErr
	}

	if err := s.repository.IncrementIndexAndStoreAddresses(
		context.WithoutCancel(ctx), walletID, path, confirmed, expectedBase,
	); err != nil {
		return nil, err
	}
	return acc.used, ctxErr
}

func (s *Scanner) deriveBatch(
	scheme *wallet.Scheme, branchKey *hdkeychain.ExtendedKey,
	branch, from uint32,
) ([]domain.DerivedAddress, error) {
	batch := make([]domain.DerivedAddress, 0, GapLimit)
	for i := from; i < from+GapLimit; i++ {
		addr, err := scheme.DeriveAddress(branchKey, s.network, i)
		if err != nil {
			return nil, fmt.Errorf("failed to derive address %d: %w", i, err)
		}
		batch = append(batch, domain.DerivedAddress{
			Address: addr,
			Scheme:  scheme,
			Branch:  branch,
			Index:   i,
		})
	}
	return batch, nil
}

func addressesOf(list []domain.DerivedAddress) []string {
	addresses := make([]string, 0, len(list))
	for _, a := range list {
		addresses = append(addresses, a.Address)
	}
	return addresses
}
