package indicator

import "math"

// Bands holds Bollinger band series. All three slices share the length of
// the input and are NaN during warm-up.
type Bands struct {
	Middle []float64
	Upper  []float64
	Lower  []float64
}

// Bollinger returns bands of deviation population standard deviations around
// the rolling mean of the last period closes.
func Bollinger(closes []float64, period int, deviation float64) Bands {
	n := len(closes)
	b := Bands{Middle: undefined(n), Upper: undefined(n), Lower: undefined(n)}
	if period <= 0 {
		return b
	}

	b.Middle = SMA(closes, period)
	for i := period - 1; i < n; i++ {
		mean := b.Middle[i]
		variance := 0.0
		for _, c := range closes[i-period+1 : i+1] {
			d := c - mean
			variance += d * d
		}
		std := math.Sqrt(variance / float64(period))
		b.Upper[i] = mean + deviation*std
		b.Lower[i] = mean - deviation*std
	}
	return b
}
