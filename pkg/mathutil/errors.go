package mathutil

import "errors"

// ErrTooManyDecimals ...
var ErrTooManyDecimals = errors.New("amount must have at most 8 decimal places")
