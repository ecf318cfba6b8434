package auction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		amount int64
		want   string
	}{
		{0, "0"},
		{99_999, "99999"},
		{100_000, "1L"},
		{2_000_000, "20L"},
		{2_500_000, "25L"},
		{9_950_000, "99.5L"},
		{10_000_000, "1cr"},
		{25_000_000, "2.5cr"},
		{25_300_000, "2.53cr"},
		{1_200_000_000, "120cr"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatAmount(tc.amount), "amount %d", tc.amount)
	}
}
