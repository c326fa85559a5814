package indicators

import (
	"math"
	"testing"
)

func TestRSINotReadyWithoutEnoughData(t *testing.T) {
	closes := []float64{1, 2, 3}
	if r := RSI(closes, 14); r.Ready {
		t.Errorf("RSI should not be ready with %d closes for period 14", len(closes))
	}
	if r := RSI(nil, 14); r.Ready {
		t.Error("RSI should not be ready on empty input")
	}
}

func TestRSIMonotonicSeries(t *testing.T) {
	up := make([]float64, 40)
	down := make([]float64, 40)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
	}

	r := RSI(up, 14)
	if !r.Ready {
		t.Fatal("expected ready result")
	}
	if r.Value < 99 {
		t.Errorf("rising series RSI = %v, want near 100", r.Value)
	}

	r = RSI(down, 14)
	if r.Value > 1 {
		t.Errorf("falling series RSI = %v, want near 0", r.Value)
	}
}

func TestRSIFlatSeriesIsNeutral(t *testing.T) {
	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 42
	}
	r := RSI(flat, 14)
	if r.Value != 50 {
		t.Errorf("flat series RSI = %v, want 50", r.Value)
	}
}

func TestRSIPreviousTracksOneStepBack(t *testing.T) {
	closes := []float64{10, 11, 12, 11, 13, 14, 12, 15, 16, 14, 17}
	period := 5

	full := RSI(closes, period)
	trimmed := RSI(closes[:len(closes)-1], period)

	if math.Abs(full.Previous-trimmed.Value) > 1e-9 {
		t.Errorf("Previous = %v, want %v (value one close earlier)", full.Previous, trimmed.Value)
	}
}

func TestRSIWilderSmoothing(t *testing.T) {
	// period 2, closes chosen so the smoothed averages are easy to follow:
	// seed gains (1,1)/2 = 1, losses 0; next change -3 gives
	// avgGain = (1*1+0)/2 = 0.5, avgLoss = (0*1+3)/2 = 1.5, RS = 1/3, RSI = 25.
	closes := []float64{10, 11, 12, 9}
	r := RSI(closes, 2)
	if math.Abs(r.Value-25) > 1e-9 {
		t.Errorf("RSI = %v, want 25", r.Value)
	}
}
