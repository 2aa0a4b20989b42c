package main

import (
	"github.com/tdex-network/tdex-btc-wallet/internal/config"
	"github.com/urfave/cli/v2"
)

var configCmd = cli.Command{
	Name:   "config",
	Usage:  "print the current configuration and the wallet state",
	Action: configAction,
}

func configAction(ctx *cli.Context) error {
	resp := map[string]interface{}{
		"config": config.AllSettings(),
	}

	// The encrypted mnemonic is never printed.
	if state, err := getState(); err == nil {
		resp["wallet_id"] = state.WalletID
		resp["network"] = state.Network
	}

	printJSON(resp)
	return nil
}
