package mathutil

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	//BigOne represents a single unit of bitcoin expressed in satoshis
	BigOne = int64(math.Pow10(8))
	//BigOneDecimal represents a single unit of bitcoin as decimal.Decimal
	BigOneDecimal = decimal.NewFromInt(BigOne)
)

// SatsToBtc converts an amount of satoshis to its BTC string representation
func SatsToBtc(sats int64) string {
	return decimal.NewFromInt(sats).Div(BigOneDecimal).StringFixed(8)
}

// BtcToSats converts a BTC amount string to satoshis. Precision beyond 8
// decimal places is rejected.
func BtcToSats(btc string) (int64, error) {
	amount, err := decimal.NewFromString(btc)
	if err != nil {
		return 0, err
	}
	sats := amount.Mul(BigOneDecimal)
	if !sats.Equal(sats.Truncate(0)) {
		return 0, ErrTooManyDecimals
	}
	return sats.IntPart(), nil
}
