package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-btc-wallet/internal/config"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/application"
	"github.com/tdex-network/tdex-btc-wallet/internal/core/domain"
	"github.com/tdex-network/tdex-btc-wallet/internal/infrastructure/cache"
	dbbadger "github.com/tdex-network/tdex-btc-wallet/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/tdex-btc-wallet/internal/infrastructure/storage/db/inmemory"
	"github.com/tdex-network/tdex-btc-wallet/pkg/explorer/esplora"
	"github.com/tdex-network/tdex-btc-wallet/pkg/stats"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
	"github.com/urfave/cli/v2"
)

var passwordFlag = cli.StringFlag{
	Name:    "password",
	Usage:   "the password the mnemonic is encrypted with",
	EnvVars: []string{"BTCW_PASSWORD"},
}

// walletState is the content of the state file in the datadir
type walletState struct {
	WalletID          string `json:"wallet_id"`
	Network           string `json:"network"`
	EncryptedMnemonic string `json:"encrypted_mnemonic"`
}

func getState() (*walletState, error) {
	file, err := os.ReadFile(config.GetStatePath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.New("wallet not initialized: try 'init'")
		}
		return nil, err
	}

	state := &walletState{}
	if err := json.Unmarshal(file, state); err != nil {
		return nil, fmt.Errorf("invalid state file: %w", err)
	}
	return state, nil
}

func setState(state walletState) error {
	buf, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := os.WriteFile(config.GetStatePath(), buf, 0600); err != nil {
		return fmt.Errorf("writing to file: %w", err)
	}
	return nil
}

// getWalletService restores the wallet from the state file and wires it to
// the configured repository, explorer and cache. The returned cleanup
// function must be called once done.
func getWalletService(
	ctx *cli.Context,
) (application.WalletService, func(), error) {
	state, err := getState()
	if err != nil {
		return nil, nil, err
	}
	net, err := config.GetNetwork()
	if err != nil {
		return nil, nil, err
	}
	if state.Network != net.String() {
		return nil, nil, fmt.Errorf(
			"wallet was initialized for %s, but network is set to %s",
			state.Network, net,
		)
	}

	password := ctx.String(passwordFlag.Name)
	if len(password) <= 0 {
		return nil, nil, &invalidUsageError{ctx, ctx.Command.Name}
	}
	mnemonic, err := wallet.DecryptMnemonic(wallet.DecryptMnemonicOpts{
		CypherText: state.EncryptedMnemonic,
		Passphrase: password,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt mnemonic: %w", err)
	}
	w, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
		Mnemonic: mnemonic,
		Network:  net,
	})
	if err != nil {
		return nil, nil, err
	}

	repo, closeRepo, err := newAddressIndexRepository()
	if err != nil {
		return nil, nil, err
	}

	explorerSvc, err := esplora.NewService(
		config.GetString(config.ExplorerEndpointKey),
		config.GetInt(config.ExplorerRequestsPerSecondKey),
	)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	balanceCache, err := cache.NewBalanceCache(config.GetDuration(config.CacheTTLKey))
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	svc, err := application.NewWalletService(application.WalletServiceOpts{
		WalletID:         state.WalletID,
		KeyRing:          w,
		Repository:       repo,
		Explorer:         explorerSvc,
		Cache:            balanceCache,
		Account:          net.DefaultAccountIndex,
		MinConfirmations: int64(config.GetInt(config.MinConfirmationsKey)),
		DefaultFeeRate:   config.GetFloat(config.DefaultFeeRateKey),
	})
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	stopStats := func() {}
	if config.GetBool(config.EnableProfilerKey) {
		statsCtx, cancel := context.WithCancel(ctx.Context)
		stats.EnableMemoryStatistics(
			statsCtx,
			config.GetStatsInterval(),
			config.GetProfilerDir(),
		)
		stopStats = cancel
	}

	return svc, func() {
		stopStats()
		closeRepo()
	}, nil
}

func newAddressIndexRepository() (domain.AddressIndexRepository, func(), error) {
	if config.GetString(config.DBTypeKey) == config.DBInMemory {
		return inmemory.NewAddressIndexRepositoryImpl(), func() {}, nil
	}

	repo, err := dbbadger.NewAddressIndexRepository(
		config.GetDbDir(), log.StandardLogger(),
	)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() {
		if err := repo.Close(); err != nil {
			log.WithError(err).Warn("failed to close db")
		}
	}, nil
}
