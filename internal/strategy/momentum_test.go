package strategy

import (
	"context"
	"testing"
	"time"

	"bot-core/internal/connector"
	"bot-core/internal/market"
)

func momentumData(open, close float64, at time.Time) market.Data {
	return market.Data{
		Pair:    "BTCUSDT",
		Price:   close,
		Candles: []market.Candle{{Pair: "BTCUSDT", OpenTime: at, Open: open, Close: close}},
	}
}

func TestMomentumStrictThreshold(t *testing.T) {
	b := &MomentumBot{
		BotBase:      BotBase{Status: StatusWaiting},
		DollarAmount: 50,
		Restriction:  RestrictBoth,
	}

	// an exact match must not trigger
	if sig := EvaluateMomentum(b, momentumData(100, 150, testNow)); sig != nil {
		t.Error("delta == dollarAmount must not trigger")
	}
	// one cent above must
	sig := EvaluateMomentum(b, momentumData(100, 150.01, testNow))
	if sig == nil {
		t.Fatal("delta just above dollarAmount must trigger")
	}
	if sig.Side != connector.SideLong {
		t.Errorf("rising candle side = %s, want LONG", sig.Side)
	}

	sig = EvaluateMomentum(b, momentumData(150.01, 100, testNow))
	if sig == nil || sig.Side != connector.SideShort {
		t.Errorf("falling candle: sig=%+v, want SHORT", sig)
	}
}

func TestMomentumDirectionRestriction(t *testing.T) {
	b := &MomentumBot{
		BotBase:      BotBase{Status: StatusWaiting},
		DollarAmount: 50,
		Restriction:  RestrictLongOnly,
	}
	if sig := EvaluateMomentum(b, momentumData(200, 100, testNow)); sig != nil {
		t.Error("Long Only must suppress short signals")
	}
	if sig := EvaluateMomentum(b, momentumData(100, 200, testNow)); sig == nil {
		t.Error("Long Only must still allow long signals")
	}

	b.Restriction = RestrictShortOnly
	if sig := EvaluateMomentum(b, momentumData(100, 200, testNow)); sig != nil {
		t.Error("Short Only must suppress long signals")
	}
}

func TestMomentumOncePerCandle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	svc := NewMomentumService(h.store, h.disp, h.hub)

	bot, err := svc.Create(ctx, &MomentumBot{
		BotBase:      h.base("momentum"),
		DollarAmount: 50,
		Restriction:  RestrictBoth,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	h.candles([2]float64{100, 200})
	svc.Pass(ctx, testNow)
	if n := len(h.openOrders(t)); n != 1 {
		t.Fatalf("orders after first pass = %d, want 1", n)
	}

	// same candle evaluated again: the timestamp guard holds
	svc.Pass(ctx, testNow.Add(time.Second))
	if n := len(h.openOrders(t)); n != 1 {
		t.Errorf("orders after replay = %d, want 1", n)
	}

	got, _ := svc.Get(ctx, "u1", bot.ID)
	if got.Status != StatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
}
