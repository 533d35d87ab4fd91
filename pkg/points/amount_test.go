package points

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"smallbiznis-picks/pkg/errutil"
)

func TestParseAccepts(t *testing.T) {
	huge := new(big.Int).SetInt64(math.MaxInt64)

	cases := []struct {
		in   any
		want Amount
	}{
		{"0", 0},
		{"500", 500},
		{"007", 7},
		{42, 42},
		{int32(9), 9},
		{uint64(12), 12},
		{float64(300), 300},
		{json.Number("1200"), 1200},
		{huge, Amount(math.MaxInt64)},
		{*big.NewInt(5), 5},
	}

	for _, tc := range cases {
		got, err := Parse(tc.in)
		require.NoError(t, err, "%#v", tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestParseRejects(t *testing.T) {
	tooBig := new(big.Int).Add(new(big.Int).SetInt64(math.MaxInt64), big.NewInt(1))

	for _, in := range []any{
		"", "-1", "1.5", "12a", " 12", "1e3", "9223372036854775808",
		-1, int64(-20), 2.5, math.NaN(), math.Inf(1), float64(1 << 63), -3.0,
		uint64(math.MaxUint64), tooBig, big.NewInt(-4), (*big.Int)(nil),
		nil, true, []byte("10"),
	} {
		_, err := Parse(in)
		require.Error(t, err, "%#v", in)
		require.True(t, errors.Is(err, ErrInvalidAmount))
		require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
	}
}

func TestMustParsePanics(t *testing.T) {
	require.Equal(t, Amount(50), MustParse("50"))
	require.Panics(t, func() { MustParse("fifty") })
}
