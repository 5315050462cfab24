package emath

import(
	"math"
	"sort"
)

// Some functions that only operate on basic types, that are useful

func GammaExpand_F64(f float64) float64 {
	if f <= 0.0031308 {
		return 12.92 * f
	}
	return 1.055 * math.Pow(f, 1.0/2.4) - 0.055
}

// Median of the values; for an even count it is the average of the two
// middle values. The input is not modified.
func Median(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) * 0.5
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo { return lo }
	if v > hi { return hi }
	return v
}

// Reflect101 maps an out of range index back into [0,n) as gfedcb|abcdefgh|gfedcba
func Reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2*n - 2
	i %= period
	if i < 0 { i += period }
	if i >= n { i = period - i }
	return i
}

// Reflect maps an out of range index back into [0,n) as fedcba|abcdefgh|hgfedcb
func Reflect(i, n int) int {
	period := 2 * n
	i %= period
	if i < 0 { i += period }
	if i >= n { i = period - 1 - i }
	return i
}
