package wallet

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/tdex-network/tdex-btc-wallet/pkg/mathutil"
)

const (
	// SegwitDustThreshold is the dust threshold of outputs locked by a
	// witness program
	SegwitDustThreshold int64 = 294
	// DustThreshold is the dust threshold of any other output
	DustThreshold int64 = 546

	// MaxRBFSequence is the highest input sequence still signaling
	// replaceability (BIP-125)
	MaxRBFSequence uint32 = wire.MaxTxInSequenceNum - 2
	// ForbidRBFSequence finalizes the inputs of a transaction
	ForbidRBFSequence uint32 = wire.MaxTxInSequenceNum
)

// DustThresholdForScript returns the dust threshold of an output script.
func DustThresholdForScript(script []byte) int64 {
	if txscript.IsWitnessProgram(script) {
		return SegwitDustThreshold
	}
	return DustThreshold
}

// DustThresholdForAddress returns the dust threshold of an output paying to
// the given address. Addresses that can't be decoded get the higher
// threshold.
func DustThresholdForAddress(addr string, net Network) int64 {
	script, err := ScriptForAddress(addr, net)
	if err != nil {
		return DustThreshold
	}
	return DustThresholdForScript(script)
}

// IsDust returns whether an amount received at the given address is below
// its dust threshold.
func IsDust(amount int64, addr string, net Network) bool {
	return amount < DustThresholdForAddress(addr, net)
}

// IsAboveDust returns whether an amount can be safely paid to the given
// address, ie. it's strictly greater than its dust threshold.
func IsAboveDust(amount int64, addr string, net Network) bool {
	return amount > DustThresholdForAddress(addr, net)
}

// VirtualSize returns the segwit-discounted size of the transaction, ie.
// its weight divided by 4 and rounded up.
func VirtualSize(tx *wire.MsgTx) int64 {
	weight := blockchain.GetTransactionWeight(btcutil.NewTx(tx))
	return (weight + blockchain.WitnessScaleFactor - 1) /
		blockchain.WitnessScaleFactor
}

// ComputeFee returns the fee to pay for the given transaction at the given
// sats/vbyte rate.
func ComputeFee(tx *wire.MsgTx, satsPerVByte float64) int64 {
	return mathutil.FeeForVirtualSize(VirtualSize(tx), satsPerVByte)
}

// IsValidSequence returns whether the sequence is either a replaceable one
// or the final one.
func IsValidSequence(sequence uint32) bool {
	return sequence <= MaxRBFSequence || sequence == ForbidRBFSequence
}

// IsReplaceable returns whether any input of the transaction signals
// replaceability.
func IsReplaceable(tx *wire.MsgTx) bool {
	for _, in := range tx.TxIn {
		if in.Sequence <= MaxRBFSequence {
			return true
		}
	}
	return false
}
