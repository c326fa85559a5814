package strategy

import (
	"context"
	"math"
	"testing"
	"time"

	"bot-core/internal/connector"
	"bot-core/internal/market"
)

func TestBuildLevelsArithmetic(t *testing.T) {
	levels, err := BuildLevels(9000, 11000, 4, SpacingArithmetic, 10000)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := []float64{9000, 9500, 10000, 10500, 11000}
	if len(levels) != len(want) {
		t.Fatalf("got %d levels, want %d", len(levels), len(want))
	}
	for i, lvl := range levels {
		if math.Abs(lvl.Price-want[i]) > 1e-9 {
			t.Errorf("level %d = %v, want %v", i, lvl.Price, want[i])
		}
		if i > 0 && levels[i].Price <= levels[i-1].Price {
			t.Errorf("levels not strictly increasing at %d", i)
		}
	}

	// sides relative to current price; the exact match never trades
	if levels[0].Side != connector.SideLong || levels[1].Side != connector.SideLong {
		t.Error("levels below price must be buys")
	}
	if levels[3].Side != connector.SideShort || levels[4].Side != connector.SideShort {
		t.Error("levels above price must be sells")
	}
	if levels[2].Status != LevelSkipped {
		t.Errorf("level at current price = %s, want SKIPPED", levels[2].Status)
	}
}

func TestBuildLevelsGeometric(t *testing.T) {
	lower, upper, n := 1000.0, 8000.0, 3
	levels, err := BuildLevels(lower, upper, n, SpacingGeometric, 3000)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	wantRatio := math.Pow(upper/lower, 1/float64(n)) // 2 for 1000..8000 over 3
	for i := 1; i < len(levels); i++ {
		ratio := levels[i].Price / levels[i-1].Price
		if math.Abs(ratio-wantRatio) > 1e-9 {
			t.Errorf("ratio at %d = %v, want %v", i, ratio, wantRatio)
		}
	}
	if math.Abs(levels[0].Price-lower) > 1e-9 || math.Abs(levels[len(levels)-1].Price-upper) > 1e-9 {
		t.Errorf("endpoints = %v..%v, want %v..%v", levels[0].Price, levels[len(levels)-1].Price, lower, upper)
	}
}

func TestBuildLevelsRejectsBadInput(t *testing.T) {
	if _, err := BuildLevels(11000, 9000, 4, SpacingArithmetic, 10000); err == nil {
		t.Error("inverted bounds must fail")
	}
	if _, err := BuildLevels(9000, 11000, 1, SpacingArithmetic, 10000); err == nil {
		t.Error("single line must fail")
	}
}

func TestGridEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.prices.Set("BTCUSDT", 10000)
	svc := NewGridService(h.store, h.disp, h.hub)
	bot, err := svc.Create(ctx, &GridBot{
		BotBase: h.base("grid"),
		Lower:   9000, Upper: 11000, Lines: 4,
		Spacing: SpacingArithmetic,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	buys, sells := 0, 0
	for _, lvl := range bot.Levels {
		switch {
		case lvl.Status == LevelSkipped:
		case lvl.Side == connector.SideLong:
			buys++
		case lvl.Side == connector.SideShort:
			sells++
		}
	}
	if buys != 2 || sells != 2 {
		t.Fatalf("buys=%d sells=%d, want 2 and 2", buys, sells)
	}

	// tick at 9400 fills exactly the 9500 buy
	h.prices.Set("BTCUSDT", 9400)
	svc.Pass(ctx, testNow)

	open := h.openOrders(t)
	if len(open) != 1 {
		t.Fatalf("orders after tick = %d, want 1", len(open))
	}
	if open[0].Side != connector.SideLong {
		t.Errorf("side = %s, want LONG", open[0].Side)
	}

	got, err := svc.Get(ctx, "u1", bot.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var filled []float64
	for _, lvl := range got.Levels {
		if lvl.Status == LevelFilled {
			filled = append(filled, lvl.Price)
		}
	}
	if len(filled) != 1 || filled[0] != 9500 {
		t.Errorf("filled levels = %v, want [9500]", filled)
	}
	if got.Status != StatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}

	// replaying the same tick must not re-trigger the filled level
	svc.Pass(ctx, testNow.Add(time.Minute))
	if n := len(h.openOrders(t)); n != 1 {
		t.Errorf("orders after replay = %d, want 1", n)
	}
}

func TestGridExpiryOverridesLevels(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.prices.Set("BTCUSDT", 10000)
	svc := NewGridService(h.store, h.disp, h.hub)
	expiry := testNow.Add(-time.Hour)
	bot, err := svc.Create(ctx, &GridBot{
		BotBase: h.base("grid"),
		Lower:   9000, Upper: 11000, Lines: 4,
		Spacing:    SpacingArithmetic,
		ExpiryTime: &expiry,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// price crosses a level, but expiry wins
	h.prices.Set("BTCUSDT", 9400)
	svc.Pass(ctx, testNow)

	if n := len(h.openOrders(t)); n != 0 {
		t.Fatalf("expired bot placed %d orders", n)
	}
	got, _ := svc.Get(ctx, "u1", bot.ID)
	if got.Status != StatusExpired {
		t.Errorf("status = %s, want expired", got.Status)
	}
}

func TestEvaluateGridIgnoresBadPrice(t *testing.T) {
	levels, _ := BuildLevels(9000, 11000, 4, SpacingArithmetic, 10000)
	bot := &GridBot{
		BotBase: BotBase{Status: StatusWaiting},
		Lower:   9000, Upper: 11000, Lines: 4,
		Levels: levels,
	}
	if sig, _, _ := EvaluateGrid(bot, market.Data{Price: 0}, testNow); sig != nil {
		t.Error("zero price must not trigger")
	}
	if sig, _, _ := EvaluateGrid(bot, market.Data{Price: math.NaN()}, testNow); sig != nil {
		t.Error("NaN price must not trigger")
	}
}
