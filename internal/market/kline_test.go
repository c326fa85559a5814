package market

import (
	"testing"
	"time"

	"bot-core/internal/events"
	"bot-core/pkg/cache"
)

var base = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func TestAggregatorRollsCandles(t *testing.T) {
	bus := events.NewBus()
	closed, _ := bus.Subscribe(events.EventCandleClosed, 4)

	agg := NewAggregator(time.Minute, bus)
	agg.Tick("BTCUSDT", 100, base)
	agg.Tick("BTCUSDT", 105, base.Add(10*time.Second))
	agg.Tick("BTCUSDT", 95, base.Add(30*time.Second))
	agg.Tick("BTCUSDT", 102, base.Add(50*time.Second))

	if h := agg.History("BTCUSDT"); len(h) != 0 {
		t.Fatalf("candle closed early: %+v", h)
	}

	// first tick of the next bucket closes the candle
	agg.Tick("BTCUSDT", 103, base.Add(61*time.Second))

	h := agg.History("BTCUSDT")
	if len(h) != 1 {
		t.Fatalf("history = %d candles, want 1", len(h))
	}
	c := h[0]
	if c.Open != 100 || c.High != 105 || c.Low != 95 || c.Close != 102 {
		t.Errorf("OHLC = %v/%v/%v/%v, want 100/105/95/102", c.Open, c.High, c.Low, c.Close)
	}
	if !c.OpenTime.Equal(base) {
		t.Errorf("openTime = %v, want %v", c.OpenTime, base)
	}

	select {
	case payload := <-closed:
		if got := payload.(Candle); got.Close != 102 {
			t.Errorf("published candle close = %v, want 102", got.Close)
		}
	default:
		t.Error("candle.closed was not published")
	}
}

func TestAggregatorHistoryBounded(t *testing.T) {
	agg := NewAggregator(time.Minute, nil)
	for i := 0; i < maxHistory+50; i++ {
		agg.Append(Candle{Pair: "ETHUSDT", OpenTime: base.Add(time.Duration(i) * time.Minute), Close: float64(i)})
	}
	h := agg.History("ETHUSDT")
	if len(h) != maxHistory {
		t.Fatalf("history = %d, want %d", len(h), maxHistory)
	}
	if h[len(h)-1].Close != float64(maxHistory+49) {
		t.Errorf("kept the wrong end of the history: last close = %v", h[len(h)-1].Close)
	}
}

func TestCandleColor(t *testing.T) {
	green := Candle{Open: 1, Close: 2}
	red := Candle{Open: 2, Close: 1}
	doji := Candle{Open: 2, Close: 2}

	if !green.Green() || green.Red() {
		t.Error("close above open should be green")
	}
	if !red.Red() || red.Green() {
		t.Error("close below open should be red")
	}
	if doji.Green() || doji.Red() {
		t.Error("doji must be neither green nor red")
	}
}

func TestHubSnapshot(t *testing.T) {
	prices := cache.NewPrices()
	prices.Set("BTCUSDT", 20000)
	agg := NewAggregator(time.Minute, nil)
	agg.Append(Candle{Pair: "BTCUSDT", OpenTime: base, Open: 1, Close: 2})

	hub := NewHub(prices, agg)
	d := hub.Data("BTCUSDT")
	if d.Price != 20000 || len(d.Candles) != 1 {
		t.Errorf("snapshot = %+v", d)
	}
	if d := hub.Data("NOPE"); d.Price != 0 || len(d.Candles) != 0 {
		t.Errorf("unknown pair snapshot = %+v", d)
	}
}
