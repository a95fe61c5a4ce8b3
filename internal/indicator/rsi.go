package indicator

// RSI returns the relative strength index of closes. Gains and losses are
// smoothed recursively with alpha = 1/period, seeded with the first bar, so
// every value depends on the full history. When the smoothed loss is zero the
// RSI is 100.
func RSI(closes []float64, period int) []float64 {
	if period <= 0 {
		return undefined(len(closes))
	}
	out := make([]float64, len(closes))
	alpha := 1 / float64(period)

	var avgGain, avgLoss float64
	for i := range closes {
		var gain, loss float64
		if i > 0 {
			delta := closes[i] - closes[i-1]
			if delta > 0 {
				gain = delta
			} else if delta < 0 {
				loss = -delta
			}
		}

		if i == 0 {
			avgGain, avgLoss = gain, loss
		} else {
			avgGain = (1-alpha)*avgGain + alpha*gain
			avgLoss = (1-alpha)*avgLoss + alpha*loss
		}

		if avgLoss == 0 {
			out[i] = 100
			continue
		}
		rs := avgGain / avgLoss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}
