package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/ports"
	"golang.org/x/sync/singleflight"
)

const maxEntrySize = 64 * 1024

var (
	// ErrInvalidTTL ...
	ErrInvalidTTL = errors.New("cache ttl must be positive")
	// ErrNullLoader ...
	ErrNullLoader = errors.New("utxo loader must not be null")
)

type balanceCache struct {
	cache *bigcache.BigCache
	group singleflight.Group

	// versions is bumped on every write so that a load started before an
	// invalidation doesn't overwrite the newer state.
	lock     sync.Mutex
	versions map[string]uint64
}

// NewBalanceCache returns a BalanceCache backed by bigcache whose entries
// expire after the given ttl.
func NewBalanceCache(ttl time.Duration) (ports.BalanceCache, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}

	config := bigcache.DefaultConfig(ttl)
	config.Shards = 64
	config.CleanWindow = ttl / 2
	config.MaxEntrySize = maxEntrySize
	config.Verbose = false

	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		return nil, err
	}

	return &balanceCache{
		cache:    cache,
		versions: make(map[string]uint64),
	}, nil
}

func (c *balanceCache) GetUtxos(
	ctx context.Context, walletID string, load ports.UtxoLoader,
) (domain.Utxos, error) {
	if load == nil {
		return nil, ErrNullLoader
	}

	if utxos, ok := c.get(walletID); ok {
		return utxos, nil
	}

	// The load is shared with concurrent callers and must outlive the
	// cancellation of the one starting it.
	loadCtx := context.WithoutCancel(ctx)
	res, err, _ := c.group.Do(walletID, func() (interface{}, error) {
		version := c.version(walletID)

		utxos, err := load(loadCtx)
		if err != nil {
			return nil, err
		}

		c.lock.Lock()
		defer c.lock.Unlock()
		if c.versions[walletID] == version {
			if err := c.set(walletID, utxos); err != nil {
				log.WithError(err).Warnf("balance cache: failed to store entry %s", walletID)
			}
		}
		return utxos, nil
	})
	if err != nil {
		return nil, err
	}

	return copyUtxos(res.(domain.Utxos)), nil
}

func (c *balanceCache) ApplyDelta(
	_ context.Context, walletID string, delta domain.UtxoDelta,
) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.versions[walletID]++

	utxos, ok := c.get(walletID)
	if !ok || delta.IsEmpty() {
		return nil
	}
	return c.set(walletID, delta.Apply(utxos))
}

func (c *balanceCache) Invalidate(_ context.Context, walletID string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.versions[walletID]++

	if err := c.cache.Delete(walletID); err != nil &&
		!errors.Is(err, bigcache.ErrEntryNotFound) {
		return err
	}
	return nil
}

func (c *balanceCache) version(walletID string) uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.versions[walletID]
}

func (c *balanceCache) get(walletID string) (domain.Utxos, bool) {
	buf, err := c.cache.Get(walletID)
	if err != nil {
		if !errors.Is(err, bigcache.ErrEntryNotFound) {
			log.WithError(err).Warnf("balance cache: failed to read entry %s", walletID)
		}
		return nil, false
	}

	var utxos domain.Utxos
	if err := json.Unmarshal(buf, &utxos); err != nil {
		log.WithError(err).Warnf("balance cache: dropping corrupted entry %s", walletID)
		//nolint
		c.cache.Delete(walletID)
		return nil, false
	}
	return utxos, true
}

func (c *balanceCache) set(walletID string, utxos domain.Utxos) error {
	if utxos == nil {
		utxos = domain.Utxos{}
	}
	buf, err := json.Marshal(utxos)
	if err != nil {
		return err
	}
	return c.cache.Set(walletID, buf)
}

func copyUtxos(utxos domain.Utxos) domain.Utxos {
	if utxos == nil {
		return nil
	}
	return append(domain.Utxos{}, utxos...)
}
