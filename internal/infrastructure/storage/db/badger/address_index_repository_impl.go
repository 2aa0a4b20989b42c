package dbbadger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
	"github.com/timshannon/badgerhold/v4"
)

const (
	addressIndexDir = "address-index"
	gcInterval      = 30 * time.Minute
)

type indexRecord struct {
	WalletID string
	Path     string
	Index    int
}

type addressRecord struct {
	WalletID string
	Address  string
	Scheme   string
	Branch   uint32
	Index    uint32
}

func (r addressRecord) toDomain() (domain.DerivedAddress, error) {
	scheme, err := wallet.SchemeByName(r.Scheme)
	if err != nil {
		return domain.DerivedAddress{}, fmt.Errorf(
			"address %s: %w", r.Address, err,
		)
	}
	return domain.DerivedAddress{
		Address: r.Address,
		Scheme:  scheme,
		Branch:  r.Branch,
		Index:   r.Index,
	}, nil
}

func indexKey(walletID, path string) string {
	return walletID + "|" + path
}

func addressKey(walletID, address string) string {
	return walletID + "|" + address
}

// AddressIndexRepository is the badger implementation of
// domain.AddressIndexRepository.
type AddressIndexRepository struct {
	store *badgerhold.Store
	done  chan struct{}
}

// NewAddressIndexRepository opens (or creates) the badger store of the
// address indexes under the given base directory. An empty dir makes the
// store in-memory.
func NewAddressIndexRepository(
	baseDbDir string, logger badger.Logger,
) (*AddressIndexRepository, error) {
	var dbDir string
	if len(baseDbDir) > 0 {
		dbDir = filepath.Join(baseDbDir, addressIndexDir)
	}

	store, err := createDb(dbDir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening address index db: %w", err)
	}

	repo := &AddressIndexRepository{store: store, done: make(chan struct{})}
	if len(dbDir) > 0 {
		go repo.collectGarbage()
	}
	return repo, nil
}

func (r *AddressIndexRepository) GetIndexes(
	_ context.Context, walletID string,
) ([]domain.AddressIndexRecord, error) {
	var records []indexRecord
	query := badgerhold.Where("WalletID").Eq(walletID).SortBy("Path")
	if err := r.store.Find(&records, query); err != nil {
		return nil, err
	}

	indexes := make([]domain.AddressIndexRecord, 0, len(records))
	for _, rec := range records {
		indexes = append(indexes, domain.AddressIndexRecord{
			Path:  rec.Path,
			Index: rec.Index,
		})
	}
	return indexes, nil
}

func (r *AddressIndexRepository) GetAddresses(
	_ context.Context, walletID string,
) ([]domain.DerivedAddress, error) {
	var records []addressRecord
	query := badgerhold.Where("WalletID").Eq(walletID)
	if err := r.store.Find(&records, query); err != nil {
		return nil, err
	}

	addresses := make([]domain.DerivedAddress, 0, len(records))
	for _, rec := range records {
		addr, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	domain.SortAddresses(addresses)
	return addresses, nil
}

func (r *AddressIndexRepository) IncrementIndex(
	_ context.Context, walletID, path string, newIndex, expectedBase int,
) error {
	if _, _, err := domain.ParseBranchPath(path); err != nil {
		return err
	}

	return r.update(func(tx *badger.Txn) error {
		return r.txIncrementIndex(tx, walletID, path, newIndex, expectedBase)
	})
}

func (r *AddressIndexRepository) IncrementIndexAndStoreAddresses(
	_ context.Context, walletID, path string,
	addresses []domain.DerivedAddress, expectedBase int,
) error {
	if err := domain.ValidateAddressesForPath(path, addresses); err != nil {
		return err
	}
	newIndex := domain.HighestIndex(addresses)

	return r.update(func(tx *badger.Txn) error {
		if err := r.txIncrementIndex(
			tx, walletID, path, newIndex, expectedBase,
		); err != nil {
			return err
		}

		for _, a := range addresses {
			rec := addressRecord{
				WalletID: walletID,
				Address:  a.Address,
				Scheme:   a.Scheme.Name,
				Branch:   a.Branch,
				Index:    a.Index,
			}
			if err := r.store.TxUpsert(
				tx, addressKey(walletID, a.Address), rec,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close stops the value log garbage collector and closes the store.
func (r *AddressIndexRepository) Close() error {
	close(r.done)
	return r.store.Close()
}

func (r *AddressIndexRepository) txIncrementIndex(
	tx *badger.Txn, walletID, path string, newIndex, expectedBase int,
) error {
	key := indexKey(walletID, path)

	current := -1
	var rec indexRecord
	if err := r.store.TxGet(tx, key, &rec); err != nil {
		if !errors.Is(err, badgerhold.ErrNotFound) {
			return err
		}
	} else {
		current = rec.Index
	}

	if err := domain.ValidateIndexIncrement(
		current, newIndex, expectedBase,
	); err != nil {
		return err
	}

	return r.store.TxUpsert(tx, key, indexRecord{
		WalletID: walletID,
		Path:     path,
		Index:    newIndex,
	})
}

// update runs fn in a read-write badger transaction. Badger detects
// read-write conflicts among concurrent transactions at commit time, those
// are reported as index conflicts.
func (r *AddressIndexRepository) update(fn func(tx *badger.Txn) error) error {
	err := r.store.Badger().Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		return domain.ErrIndexConflict
	}
	return err
}

func (r *AddressIndexRepository) collectGarbage() {
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if err := r.store.Badger().RunValueLogGC(0.5); err != nil &&
				!errors.Is(err, badger.ErrNoRewrite) {
				log.WithError(err).Warn("address index db: value log gc failed")
			}
		}
	}
}

func createDb(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
