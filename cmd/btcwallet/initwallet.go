package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/tdex-network/tdex-btc-wallet/internal/config"
	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
	"github.com/urfave/cli/v2"
)

var initwallet = cli.Command{
	Name:  "init",
	Usage: "create a new wallet or restore one from mnemonic",
	Flags: []cli.Flag{
		&passwordFlag,
		&cli.StringFlag{
			Name:  "mnemonic",
			Usage: "the space separated mnemonic to restore, a new one is generated if omitted",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "overwrite an existing wallet",
		},
	},
	Action: initWalletAction,
}

func initWalletAction(ctx *cli.Context) error {
	password := ctx.String(passwordFlag.Name)
	if len(password) <= 0 {
		return &invalidUsageError{ctx, ctx.Command.Name}
	}

	if _, err := os.Stat(config.GetStatePath()); err == nil && !ctx.Bool("force") {
		return errors.New("wallet already initialized, use --force to overwrite")
	}

	net, err := config.GetNetwork()
	if err != nil {
		return err
	}

	var mnemonic []string
	isNew := !ctx.IsSet("mnemonic")
	if isNew {
		mnemonic, err = wallet.NewMnemonic(wallet.NewMnemonicOpts{})
		if err != nil {
			return err
		}
	} else {
		mnemonic = strings.Fields(ctx.String("mnemonic"))
	}

	// Make sure the wallet can be restored before persisting anything.
	if _, err := wallet.NewWalletFromMnemonic(wallet.NewWalletFromMnemonicOpts{
		Mnemonic: mnemonic,
		Network:  net,
	}); err != nil {
		return err
	}

	encryptedMnemonic, err := wallet.EncryptMnemonic(wallet.EncryptMnemonicOpts{
		Mnemonic:   mnemonic,
		Passphrase: password,
	})
	if err != nil {
		return err
	}

	state := walletState{
		WalletID:          uuid.New().String(),
		Network:           net.String(),
		EncryptedMnemonic: encryptedMnemonic,
	}
	if err := setState(state); err != nil {
		return err
	}

	if isNew {
		fmt.Println("write down your mnemonic, it won't be shown again:")
		fmt.Println(strings.Join(mnemonic, " "))
		fmt.Println()
	}
	fmt.Printf("wallet %s initialized\n", state.WalletID)
	if !isNew {
		fmt.Println("run 'scan' to restore the used addresses of the wallet")
	}
	return nil
}
