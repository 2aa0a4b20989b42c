package main

import (
	"github.com/tdex-network/tdex-btc-wallet/internal/core/application"
	"github.com/tdex-network/tdex-btc-wallet/pkg/mathutil"
	"github.com/urfave/cli/v2"
)

var (
	addressFlag = cli.StringFlag{
		Name:     "address",
		Usage:    "the receiving address",
		Required: true,
	}
	feeRateFlag = cli.Float64Flag{
		Name:  "fee_rate",
		Usage: "the fee rate in sats/vbyte, the configured default is used if omitted",
	}
)

var send = cli.Command{
	Name:  "send",
	Usage: "send an amount of sats to an address",
	Flags: []cli.Flag{
		&passwordFlag,
		&addressFlag,
		&cli.Int64Flag{
			Name:  "amount",
			Usage: "the amount in sats to send",
		},
		&cli.StringFlag{
			Name:  "amount_btc",
			Usage: "the amount in BTC to send, alternative to --amount",
		},
		&feeRateFlag,
	},
	Action: sendAction,
}

var sweep = cli.Command{
	Name:  "sweep",
	Usage: "send all the signable funds of the wallet to an address",
	Flags: []cli.Flag{
		&passwordFlag,
		&addressFlag,
		&feeRateFlag,
	},
	Action: sweepAction,
}

var bumpfee = cli.Command{
	Name:  "bumpfee",
	Usage: "replace an unconfirmed transaction with one paying a higher fee",
	Flags: []cli.Flag{
		&passwordFlag,
		&cli.StringFlag{
			Name:     "txid",
			Usage:    "the hash of the transaction to replace",
			Required: true,
		},
		&cli.Int64Flag{
			Name:     "fee",
			Usage:    "the new absolute fee in sats",
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "final",
			Usage: "disable further replacements of the new transaction",
		},
	},
	Action: bumpFeeAction,
}

var fees = cli.Command{
	Name:  "fees",
	Usage: "get the current fee rates, or the bump fee table of a transaction",
	Flags: []cli.Flag{
		&passwordFlag,
		&cli.StringFlag{
			Name:  "txid",
			Usage: "the hash of the transaction to estimate bump fees for",
		},
	},
	Action: feesAction,
}

func sendAction(ctx *cli.Context) error {
	amount, err := parseAmount(ctx)
	if err != nil {
		return err
	}

	svc, cleanup, err := getWalletService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.SendPayment(ctx.Context, application.SendPaymentRequest{
		Address: ctx.String(addressFlag.Name),
		Amount:  amount,
		FeeRate: ctx.Float64(feeRateFlag.Name),
	})
	if err != nil {
		return err
	}

	printJSON(newSendView(res))
	return nil
}

func sweepAction(ctx *cli.Context) error {
	svc, cleanup, err := getWalletService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.Sweep(ctx.Context, application.SweepRequest{
		Address: ctx.String(addressFlag.Name),
		FeeRate: ctx.Float64(feeRateFlag.Name),
	})
	if err != nil {
		return err
	}

	printJSON(newSendView(res))
	return nil
}

func bumpFeeAction(ctx *cli.Context) error {
	svc, cleanup, err := getWalletService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.BumpFee(ctx.Context, application.BumpFeeRequest{
		TxID:    ctx.String("txid"),
		NewFee:  ctx.Int64("fee"),
		IsFinal: ctx.Bool("final"),
	})
	if err != nil {
		return err
	}

	printJSON(newSendView(res))
	return nil
}

func feesAction(ctx *cli.Context) error {
	svc, cleanup, err := getWalletService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if txid := ctx.String("txid"); len(txid) > 0 {
		table, err := svc.EstimateBumpFees(ctx.Context, txid)
		if err != nil {
			return err
		}
		printJSON(newRateFeeViews(table))
		return nil
	}

	rates, err := svc.GetFeeRates(ctx.Context)
	if err != nil {
		return err
	}
	printJSON(newFeeRateViews(rates))
	return nil
}

func parseAmount(ctx *cli.Context) (int64, error) {
	isSats, isBtc := ctx.IsSet("amount"), ctx.IsSet("amount_btc")
	if isSats == isBtc {
		return 0, &invalidUsageError{ctx, ctx.Command.Name}
	}
	if isSats {
		return ctx.Int64("amount"), nil
	}
	return mathutil.BtcToSats(ctx.String("amount_btc"))
}
