// Package points parses external input into ledger amounts.
package points

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"

	"smallbiznis-picks/pkg/errutil"
)

// Amount is a whole, non-negative number of points.
type Amount int64

var ErrInvalidAmount = errors.New("invalid points amount")

var digits = regexp.MustCompile(`^\d+$`)

func (a Amount) Int64() int64 {
	return int64(a)
}

func (a Amount) String() string {
	return strconv.FormatInt(int64(a), 10)
}

// Parse accepts strings of decimal digits, any Go integer, big integers,
// json.Number and integral floats.
func Parse(v any) (Amount, error) {
	switch n := v.(type) {
	case Amount:
		return fromInt64(int64(n))
	case int:
		return fromInt64(int64(n))
	case int8:
		return fromInt64(int64(n))
	case int16:
		return fromInt64(int64(n))
	case int32:
		return fromInt64(int64(n))
	case int64:
		return fromInt64(n)
	case uint:
		return fromUint64(uint64(n))
	case uint8:
		return fromUint64(uint64(n))
	case uint16:
		return fromUint64(uint64(n))
	case uint32:
		return fromUint64(uint64(n))
	case uint64:
		return fromUint64(n)
	case float32:
		return fromFloat(float64(n))
	case float64:
		return fromFloat(n)
	case *big.Int:
		if n == nil {
			return 0, invalid("amount is required")
		}
		return fromBig(n)
	case big.Int:
		return fromBig(&n)
	case json.Number:
		return fromString(n.String())
	case string:
		return fromString(n)
	case nil:
		return 0, invalid("amount is required")
	default:
		return 0, invalid(fmt.Sprintf("unsupported amount type %T", v))
	}
}

// MustParse is Parse for constants; it panics on invalid input.
func MustParse(v any) Amount {
	a, err := Parse(v)
	if err != nil {
		panic(err)
	}
	return a
}

func fromInt64(n int64) (Amount, error) {
	if n < 0 {
		return 0, invalid("amount must not be negative")
	}
	return Amount(n), nil
}

func fromUint64(n uint64) (Amount, error) {
	if n > math.MaxInt64 {
		return 0, invalid("amount is too large")
	}
	return Amount(n), nil
}

func fromFloat(f float64) (Amount, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, invalid("amount must be an integer")
	}
	if f < 0 {
		return 0, invalid("amount must not be negative")
	}
	// 2^63 is the first float64 that no longer fits.
	if f >= math.MaxInt64 {
		return 0, invalid("amount is too large")
	}
	return Amount(int64(f)), nil
}

func fromBig(b *big.Int) (Amount, error) {
	if b.Sign() < 0 {
		return 0, invalid("amount must not be negative")
	}
	if !b.IsInt64() {
		return 0, invalid("amount is too large")
	}
	return Amount(b.Int64()), nil
}

func fromString(s string) (Amount, error) {
	if !digits.MatchString(s) {
		return 0, invalid("amount must be a positive integer string")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, invalid("amount is too large")
	}
	return Amount(n), nil
}

func invalid(msg string) error {
	return errutil.ValidationFailed(msg, ErrInvalidAmount, errutil.WithDetails(errutil.Detail{Field: "amount", Message: msg}))
}
