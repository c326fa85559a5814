package strategy

import (
	"context"
	"testing"
	"time"

	"bot-core/internal/market"
	"bot-core/internal/safety"
)

// candleRun renders a color string like "GGGRGG" into closed candles.
func candleRun(colors string) []market.Candle {
	out := make([]market.Candle, len(colors))
	for i, c := range colors {
		candle := market.Candle{
			Pair:     "BTCUSDT",
			OpenTime: testNow.Add(time.Duration(i-len(colors)) * time.Minute),
		}
		switch c {
		case 'G':
			candle.Open, candle.Close = 100, 101
		case 'R':
			candle.Open, candle.Close = 101, 100
		default: // neutral
			candle.Open, candle.Close = 100, 100
		}
		out[i] = candle
	}
	return out
}

func TestStreakCount(t *testing.T) {
	cases := []struct {
		colors string
		color  string
		want   int
	}{
		{"GGGRGG", ColorGreen, 2}, // broken by the R, not 5
		{"GGG", ColorGreen, 3},
		{"GGG", ColorRed, 0},
		{"RRGRR", ColorRed, 2},
		{"GGN", ColorGreen, 0}, // neutral breaks the run
		{"NGG", ColorGreen, 2},
		{"", ColorGreen, 0},
	}
	for _, c := range cases {
		if got := StreakCount(candleRun(c.colors), c.color); got != c.want {
			t.Errorf("StreakCount(%q, %s) = %d, want %d", c.colors, c.color, got, c.want)
		}
	}
}

func TestCandleStrikeTriggersAtTarget(t *testing.T) {
	b := &CandleBot{
		BotBase:     BotBase{Status: StatusWaiting},
		TargetCount: 3,
		Color:       ColorGreen,
		Direction:   "Long",
	}

	md := market.Data{Pair: "BTCUSDT", Price: 101, Candles: candleRun("GGGRGG")}
	if sig := EvaluateCandleStrike(b, md); sig != nil {
		t.Error("streak of 2 must not reach target 3")
	}

	md.Candles = candleRun("RGGG")
	sig := EvaluateCandleStrike(b, md)
	if sig == nil {
		t.Fatal("streak of 3 must trigger")
	}

	// same latest candle: the timestamp guard holds
	b.LastCandleTime = md.Candles[len(md.Candles)-1].OpenTime
	if sig := EvaluateCandleStrike(b, md); sig != nil {
		t.Error("same candle must not trigger twice")
	}
}

func TestCandleStrikeFamilyLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := NewCandleStrikeService(h.store, h.disp, h.hub)

	mk := func(name string) *CandleBot {
		b, err := svc.Create(ctx, &CandleBot{
			BotBase:     h.base(name),
			TargetCount: 3,
			Color:       ColorGreen,
			Direction:   "Long",
		})
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		b.Safety = safety.Config{Cooldown: safety.Cooldown{Value: 5, Unit: safety.UnitMin}}
		if _, err := svc.Update(ctx, "u1", b); err != nil {
			t.Fatalf("update %s: %v", name, err)
		}
		return b
	}
	mk("striker-a")
	mk("striker-b")

	for _, c := range candleRun("RGGG") {
		h.agg.Append(c)
	}
	h.prices.Set("BTCUSDT", 101)

	// both bots see the qualifying streak, but the family lock lets only
	// the first one through
	svc.Pass(ctx, testNow)
	if n := len(h.openOrders(t)); n != 1 {
		t.Fatalf("orders after pass = %d, want 1 (lock must exclude the second bot)", n)
	}

	status, err := h.disp.Locker.IsLocked(ctx, FamilyCandleStrike, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("isLocked: %v", err)
	}
	if !status.Locked {
		t.Error("family lock should be held after the first execution")
	}

	// a later candle inside the lock window still cannot fire the sibling
	h.agg.Append(market.Candle{
		Pair: "BTCUSDT", OpenTime: testNow.Add(time.Minute),
		Open: 100, Close: 101,
	})
	svc.Pass(ctx, testNow.Add(2*time.Minute))
	if n := len(h.openOrders(t)); n != 1 {
		t.Errorf("orders inside lock window = %d, want 1", n)
	}

	// after the window expires, the sibling may fire on a fresh candle
	h.agg.Append(market.Candle{
		Pair: "BTCUSDT", OpenTime: testNow.Add(6 * time.Minute),
		Open: 100, Close: 101,
	})
	svc.Pass(ctx, testNow.Add(7*time.Minute))
	if n := len(h.openOrders(t)); n != 2 {
		t.Errorf("orders after lock expiry = %d, want 2", n)
	}
}
