package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var receive = cli.Command{
	Name:   "receive",
	Usage:  "derive a new receiving address",
	Flags:  []cli.Flag{&passwordFlag},
	Action: receiveAction,
}

var scan = cli.Command{
	Name:   "scan",
	Usage:  "discover the used addresses of the wallet",
	Flags:  []cli.Flag{&passwordFlag},
	Action: scanAction,
}

var balance = cli.Command{
	Name:  "balance",
	Usage: "get the balance and the utxos of the wallet",
	Flags: []cli.Flag{
		&passwordFlag,
		&cli.BoolFlag{
			Name:  "addresses",
			Usage: "also list the known addresses of the wallet",
		},
	},
	Action: balanceAction,
}

var history = cli.Command{
	Name:   "history",
	Usage:  "list the transactions of the wallet",
	Flags:  []cli.Flag{&passwordFlag},
	Action: historyAction,
}

func receiveAction(ctx *cli.Context) error {
	svc, cleanup, err := getWalletService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	addr, err := svc.DeriveReceiveAddress(ctx.Context)
	if err != nil {
		return err
	}

	printJSON(map[string]string{"address": addr})
	return nil
}

func scanAction(ctx *cli.Context) error {
	svc, cleanup, err := getWalletService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	addresses, err := svc.Sync(ctx.Context)
	if err != nil {
		return err
	}

	if len(addresses) <= 0 {
		fmt.Println("no new used address found")
		return nil
	}
	printJSON(newAddressViews(addresses))
	return nil
}

func balanceAction(ctx *cli.Context) error {
	svc, cleanup, err := getWalletService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	classification, err := svc.GetBalance(ctx.Context)
	if err != nil {
		return err
	}

	if !ctx.Bool("addresses") {
		printJSON(newBalanceView(classification))
		return nil
	}

	addresses, err := svc.ListAddresses(ctx.Context)
	if err != nil {
		return err
	}
	printJSON(map[string]interface{}{
		"balance":   newBalanceView(classification),
		"addresses": newAddressViews(addresses),
	})
	return nil
}

func historyAction(ctx *cli.Context) error {
	svc, cleanup, err := getWalletService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	txs, err := svc.ListTransactions(ctx.Context)
	if err != nil {
		return err
	}

	printJSON(newTxViews(txs))
	return nil
}
