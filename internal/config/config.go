package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

const (
	// NetworkKey is the bitcoin network of the wallet, either mainnet or
	// testnet
	NetworkKey = "NETWORK"
	// DatadirKey is the local data directory to store the internal state of
	// the wallet
	DatadirKey = "DATADIR"
	// LogLevelKey are the different logging levels. For reference on the
	// values https://godoc.org/github.com/sirupsen/logrus#Level
	LogLevelKey = "LOG_LEVEL"
	// ExplorerEndpointKey is the base url of the esplora REST API
	ExplorerEndpointKey = "EXPLORER_URL"
	// ExplorerRequestsPerSecondKey is the max number of requests per second
	// sent to the explorer
	ExplorerRequestsPerSecondKey = "EXPLORER_RPS"
	// MinConfirmationsKey is the number of confirmations after which an
	// external utxo is considered confirmed
	MinConfirmationsKey = "MIN_CONFIRMATIONS"
	// DefaultFeeRateKey is the sats/vbyte rate used when none is specified
	DefaultFeeRateKey = "DEFAULT_FEE_RATE"
	// CacheTTLKey is the lifetime of the cached utxo set of a wallet
	CacheTTLKey = "CACHE_TTL"
	// DBTypeKey is used to switch database type between those supported
	DBTypeKey = "DB_TYPE"
	// EnableProfilerKey enables the memory statistics printer
	EnableProfilerKey = "ENABLE_PROFILER"
	// StatsIntervalKey defines the interval in seconds of the memory
	// statistics printer
	StatsIntervalKey = "STATS_INTERVAL"

	DbLocation       = "db"
	ProfilerLocation = "stats"
	StateFile        = "state.json"

	DBBadger   = "badger"
	DBInMemory = "inmemory"
)

var (
	vip            *viper.Viper
	defaultDatadir = btcutil.AppDataDir("btcwallet-engine", false)

	defaultExplorerEndpoints = map[wallet.NetworkKey]string{
		wallet.Mainnet.Key: "https://blockstream.info/api",
		wallet.Testnet.Key: "https://blockstream.info/testnet/api",
	}
	supportedDBs = map[string]struct{}{
		DBBadger:   {},
		DBInMemory: {},
	}
)

func InitConfig() error {
	vip = viper.New()
	vip.SetEnvPrefix("BTCW")
	vip.AutomaticEnv()

	vip.SetDefault(NetworkKey, string(wallet.Mainnet.Key))
	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(LogLevelKey, 4)
	vip.SetDefault(ExplorerRequestsPerSecondKey, 10)
	vip.SetDefault(MinConfirmationsKey, 1)
	vip.SetDefault(DefaultFeeRateKey, 1)
	vip.SetDefault(CacheTTLKey, "10m")
	vip.SetDefault(DBTypeKey, DBBadger)
	vip.SetDefault(EnableProfilerKey, false)
	vip.SetDefault(StatsIntervalKey, 600)

	if err := validate(); err != nil {
		return fmt.Errorf("error while validating config: %s", err)
	}

	if !vip.IsSet(ExplorerEndpointKey) {
		net, _ := GetNetwork()
		vip.Set(ExplorerEndpointKey, defaultExplorerEndpoints[net.Key])
	}

	if err := initDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %s", err)
	}

	return nil
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetFloat(key string) float64 {
	return vip.GetFloat64(key)
}

func GetDuration(key string) time.Duration {
	return vip.GetDuration(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

func GetNetwork() (wallet.Network, error) {
	return wallet.NetworkByKey(GetString(NetworkKey))
}

// GetProfilerDir returns the directory where memory statistics are dumped
func GetProfilerDir() string {
	return filepath.Join(GetDatadir(), ProfilerLocation)
}

// GetStatsInterval returns the interval of the memory statistics printer
func GetStatsInterval() time.Duration {
	return time.Duration(GetInt(StatsIntervalKey)) * time.Second
}

// GetStatePath returns the path of the file storing the encrypted mnemonic
// and the id of the wallet
func GetStatePath() string {
	return filepath.Join(GetDatadir(), StateFile)
}

// GetDbDir returns the directory of the badger database, or an empty string
// if the database is in-memory
func GetDbDir() string {
	if GetString(DBTypeKey) == DBInMemory {
		return ""
	}
	return filepath.Join(GetDatadir(), DbLocation)
}

// AllSettings returns the current configuration
func AllSettings() map[string]interface{} {
	return vip.AllSettings()
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}

	if _, err := GetNetwork(); err != nil {
		return fmt.Errorf("%s: %s", NetworkKey, err)
	}

	if _, ok := supportedDBs[GetString(DBTypeKey)]; !ok {
		return fmt.Errorf(
			"%s must be one of %s, %s", DBTypeKey, DBBadger, DBInMemory,
		)
	}

	if GetInt(ExplorerRequestsPerSecondKey) <= 0 {
		return fmt.Errorf("%s must be greater than zero", ExplorerRequestsPerSecondKey)
	}

	if GetInt(MinConfirmationsKey) <= 0 {
		return fmt.Errorf("%s must be greater than zero", MinConfirmationsKey)
	}

	if GetFloat(DefaultFeeRateKey) < 1 {
		return fmt.Errorf("%s must be equal or greater than 1", DefaultFeeRateKey)
	}

	if GetBool(EnableProfilerKey) && GetInt(StatsIntervalKey) <= 0 {
		return fmt.Errorf("%s must be greater than zero", StatsIntervalKey)
	}

	if GetDuration(CacheTTLKey) <= 0 {
		return fmt.Errorf("%s must be a positive duration", CacheTTLKey)
	}

	return nil
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(datadir); err != nil {
		return err
	}

	if GetString(DBTypeKey) == DBBadger {
		if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
			return err
		}
	}

	profilerEnabled := GetBool(EnableProfilerKey)
	if profilerEnabled {
		if err := makeDirectoryIfNotExists(GetProfilerDir()); err != nil {
			return err
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}
