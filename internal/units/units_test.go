package units

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		amount   *big.Int
		decimals uint8
		want     string
	}{
		{big.NewInt(0), 6, "0.0"},
		{big.NewInt(1_000_000), 6, "1.0"},
		{big.NewInt(1_000_000_000), 6, "1000.0"},
		{big.NewInt(1_500_001), 6, "1.500001"},
		{big.NewInt(-1_000_000_000), 6, "-1000.0"},
		{big.NewInt(42), 0, "42.0"},
		{nil, 6, "0.0"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, FormatUnits(tt.amount, tt.decimals), "amount %v", tt.amount)
	}
}

func TestFormatEther(t *testing.T) {
	wei, _ := new(big.Int).SetString("4722366482869645213696", 10) // 0x1000000000000000000
	require.Equal(t, "4722.366482869645213696", FormatEther(wei))
}

func TestParseUnits(t *testing.T) {
	n, err := ParseUnits("1000", 6)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000_000), n)

	n, err = ParseUnits("1000000", 6)
	require.NoError(t, err)
	require.Equal(t, "1000000000000", n.String())

	n, err = ParseUnits("0.5", 6)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(500_000), n)

	n, err = ParseUnits("-1.25", 2)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(-125), n)

	for _, bad := range []string{"", ".", "1.0000001", "abc", "1e6"} {
		_, err := ParseUnits(bad, 6)
		require.Error(t, err, bad)
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	amount := MustParseUnits("123.456", 6)
	require.Equal(t, "123.456", FormatUnits(amount, 6))
}
