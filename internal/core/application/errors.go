package application

import "errors"

var (
	// ErrMissingWalletID ...
	ErrMissingWalletID = errors.New("missing wallet id")
	// ErrNullKeyRing ...
	ErrNullKeyRing = errors.New("key ring must not be null")
	// ErrNullRepository ...
	ErrNullRepository = errors.New("address index repository must not be null")
	// ErrNullExplorer ...
	ErrNullExplorer = errors.New("explorer service must not be null")
	// ErrNullBalanceCache ...
	ErrNullBalanceCache = errors.New("balance cache must not be null")
	// ErrInvalidMinConfirmations ...
	ErrInvalidMinConfirmations = errors.New(
		"min confirmations must be greater than zero",
	)
	// ErrInvalidDefaultFeeRate ...
	ErrInvalidDefaultFeeRate = errors.New(
		"default fee rate must be greater than zero",
	)
	// ErrTransactionNotFound is returned when the transaction to replace is
	// not in the wallet history
	ErrTransactionNotFound = errors.New("transaction not found in wallet history")
	// ErrUnknownUtxoAddress is returned when a planned utxo is locked by an
	// address not derived by the wallet
	ErrUnknownUtxoAddress = errors.New("utxo address not derived by the wallet")
)
