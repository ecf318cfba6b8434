package auction

import (
	"strconv"
	"strings"
)

// FormatAmount renders a rupee amount in the crore/lakh notation used in
// every user-facing message:
//
//	>= 1,00,00,000 -> crores with up to two decimals, suffixed "cr"
//	>= 1,00,000    -> lakhs with up to two decimals, suffixed "L"
//	smaller        -> plain digits
func FormatAmount(n int64) string {
	switch {
	case n >= 10_000_000:
		return trimDecimals(float64(n)/10_000_000) + "cr"
	case n >= 100_000:
		return trimDecimals(float64(n)/100_000) + "L"
	default:
		return strconv.FormatInt(n, 10)
	}
}

func trimDecimals(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
