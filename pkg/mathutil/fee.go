package mathutil

import (
	"github.com/shopspring/decimal"
)

// FeeForVirtualSize returns the fee in satoshis paid by a transaction of the
// given virtual size at the given sats/vbyte rate. Fractions of satoshi are
// always rounded up so that the resulting rate is never below the requested
// one.
func FeeForVirtualSize(vsize int64, satsPerVByte float64) int64 {
	if vsize <= 0 || satsPerVByte <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(vsize).Mul(decimal.NewFromFloat(satsPerVByte))
	return fee.Ceil().IntPart()
}

// FeeRate returns the sats/vbyte rate of a fee paid for the given virtual
// size, truncated to 2 decimal places.
func FeeRate(fee, vsize int64) float64 {
	if vsize <= 0 {
		return 0
	}
	rate := decimal.NewFromInt(fee).DivRound(decimal.NewFromInt(vsize), 8)
	f, _ := rate.Truncate(2).Float64()
	return f
}
