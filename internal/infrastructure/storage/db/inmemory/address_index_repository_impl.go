package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tdex-network/tdex-btc-wallet/internal/core/domain"
)

type walletIndexes struct {
	indexes   map[string]int
	addresses map[string]domain.DerivedAddress
}

// AddressIndexRepositoryImpl keeps the address indexes of every wallet in
// memory. Increments are serialized by a single lock.
type AddressIndexRepositoryImpl struct {
	wallets map[string]*walletIndexes
	lock    *sync.RWMutex
}

// NewAddressIndexRepositoryImpl returns a new empty repository
func NewAddressIndexRepositoryImpl() *AddressIndexRepositoryImpl {
	return &AddressIndexRepositoryImpl{
		wallets: make(map[string]*walletIndexes),
		lock:    &sync.RWMutex{},
	}
}

func (r *AddressIndexRepositoryImpl) GetIndexes(
	_ context.Context, walletID string,
) ([]domain.AddressIndexRecord, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	w, ok := r.wallets[walletID]
	if !ok {
		return nil, nil
	}

	records := make([]domain.AddressIndexRecord, 0, len(w.indexes))
	for path, index := range w.indexes {
		records = append(records, domain.AddressIndexRecord{
			Path:  path,
			Index: index,
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Path < records[j].Path
	})
	return records, nil
}

func (r *AddressIndexRepositoryImpl) GetAddresses(
	_ context.Context, walletID string,
) ([]domain.DerivedAddress, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	w, ok := r.wallets[walletID]
	if !ok {
		return nil, nil
	}

	addresses := make([]domain.DerivedAddress, 0, len(w.addresses))
	for _, a := range w.addresses {
		addresses = append(addresses, a)
	}
	domain.SortAddresses(addresses)
	return addresses, nil
}

func (r *AddressIndexRepositoryImpl) IncrementIndex(
	_ context.Context, walletID, path string, newIndex, expectedBase int,
) error {
	if _, _, err := domain.ParseBranchPath(path); err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	return r.incrementIndex(walletID, path, newIndex, expectedBase)
}

func (r *AddressIndexRepositoryImpl) IncrementIndexAndStoreAddresses(
	_ context.Context, walletID, path string,
	addresses []domain.DerivedAddress, expectedBase int,
) error {
	if err := domain.ValidateAddressesForPath(path, addresses); err != nil {
		return err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if err := r.incrementIndex(
		walletID, path, domain.HighestIndex(addresses), expectedBase,
	); err != nil {
		return err
	}

	w := r.wallets[walletID]
	for _, a := range addresses {
		w.addresses[a.Address] = a
	}
	return nil
}

func (r *AddressIndexRepositoryImpl) incrementIndex(
	walletID, path string, newIndex, expectedBase int,
) error {
	w, ok := r.wallets[walletID]
	if !ok {
		w = &walletIndexes{
			indexes:   make(map[string]int),
			addresses: make(map[string]domain.DerivedAddress),
		}
	}

	current, ok := w.indexes[path]
	if !ok {
		current = -1
	}
	if err := domain.ValidateIndexIncrement(
		current, newIndex, expectedBase,
	); err != nil {
		return err
	}

	w.indexes[path] = newIndex
	r.wallets[walletID] = w
	return nil
}
