// Package indicators implements the technical indicators the strategy
// engines consume.
package indicators

import "math"

// RSIResult carries the current value and the previous one, which
// edge-triggered (cross) conditions need.
type RSIResult struct {
	Value    float64
	Previous float64
	Ready    bool // false until period+1 closes are available
}

// RSI computes the Relative Strength Index over closing prices using
// Wilder's smoothing: the first average is a plain mean over the initial
// period, every later average is avg = (avg*(period-1) + change) / period.
func RSI(closes []float64, period int) RSIResult {
	if period < 1 || len(closes) < period+1 {
		return RSIResult{}
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	prev := math.NaN()
	value := rsiFrom(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		prev = value
		value = rsiFrom(avgGain, avgLoss)
	}

	return RSIResult{Value: value, Previous: prev, Ready: true}
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
