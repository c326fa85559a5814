package template

import (
	"errors"
	"math"
	"testing"

	"bot-core/internal/connector"
)

func baseTemplate() *Template {
	return &Template{
		ID:        "t1",
		UserID:    "u1",
		Name:      "scalp",
		Pair:      "BTCUSDT",
		Direction: "Long",
		Size:      100,
		SizeMode:  SizeQuote,
		Leverage:  5,
	}
}

func TestValidateMultiCoinMix(t *testing.T) {
	tmpl := baseTemplate()
	tmpl.Pairs = []string{"BTCUSDT", "ETHUSDT"}
	if err := tmpl.Validate(); !errors.Is(err, ErrMultiCoinMix) {
		t.Fatalf("got %v, want ErrMultiCoinMix", err)
	}
	tmpl.Pair = ""
	if err := tmpl.Validate(); err != nil {
		t.Fatalf("multi-coin template without single pair should validate: %v", err)
	}

	// even a one-entry list conflicts with a single pair
	tmpl.Pair = "BTCUSDT"
	tmpl.Pairs = []string{"ETHUSDT"}
	if err := tmpl.Validate(); !errors.Is(err, ErrMultiCoinMix) {
		t.Fatalf("got %v, want ErrMultiCoinMix for pair plus one-entry list", err)
	}
}

func TestNormalizeDirection(t *testing.T) {
	cases := []struct {
		in   string
		want connector.Side
		err  bool
	}{
		{"Long", connector.SideLong, false},
		{"LONG", connector.SideLong, false},
		{"BUY", connector.SideLong, false},
		{"Short", connector.SideShort, false},
		{"SELL", connector.SideShort, false},
		{"Auto", "", false},
		{"sideways", "", true},
	}
	for _, c := range cases {
		got, err := NormalizeDirection(c.in)
		if (err != nil) != c.err {
			t.Errorf("NormalizeDirection(%q) error = %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("NormalizeDirection(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestResolveSizeModes(t *testing.T) {
	cases := []struct {
		name     string
		mode     SizeMode
		size     float64
		balance  float64
		price    float64
		wantQty  float64
		wantMrgn float64
	}{
		{"quote amount", SizeQuote, 100, 0, 20000, 0.005, 20},
		{"percent of balance", SizePercent, 10, 5000, 20000, 0.025, 100},
		{"base quantity", SizeBase, 0.5, 0, 20000, 0.5, 2000},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tmpl := baseTemplate()
			tmpl.Size = c.size
			tmpl.SizeMode = c.mode
			intent, err := Resolve(tmpl, Overrides{Price: c.price}, c.balance)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if math.Abs(intent.Quantity-c.wantQty) > 1e-12 {
				t.Errorf("quantity = %v, want %v", intent.Quantity, c.wantQty)
			}
			if math.Abs(intent.Margin-c.wantMrgn) > 1e-9 {
				t.Errorf("margin = %v, want %v", intent.Margin, c.wantMrgn)
			}
		})
	}
}

func TestResolvePrecedence(t *testing.T) {
	tmpl := baseTemplate()
	intent, err := Resolve(tmpl, Overrides{
		Pair:      "ETHUSDT",
		Direction: "Short",
		Size:      200,
		Leverage:  10,
		Price:     2000,
	}, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if intent.Pair != "ETHUSDT" {
		t.Errorf("pair = %q, want override", intent.Pair)
	}
	if intent.Side != connector.SideShort {
		t.Errorf("side = %q, want SHORT", intent.Side)
	}
	if intent.Quantity != 0.1 {
		t.Errorf("quantity = %v, want 0.1", intent.Quantity)
	}
	if intent.Leverage != 10 || intent.Margin != 20 {
		t.Errorf("leverage/margin = %d/%v, want 10/20", intent.Leverage, intent.Margin)
	}
}

func TestResolveRequiresPrice(t *testing.T) {
	tmpl := baseTemplate()
	if _, err := Resolve(tmpl, Overrides{}, 0); !errors.Is(err, ErrNoPrice) {
		t.Errorf("missing price: got %v, want ErrNoPrice", err)
	}
	if _, err := Resolve(tmpl, Overrides{Price: math.NaN()}, 0); !errors.Is(err, ErrNoPrice) {
		t.Errorf("NaN price: got %v, want ErrNoPrice", err)
	}
}

func TestResolveAutoDirectionNeedsCaller(t *testing.T) {
	tmpl := baseTemplate()
	tmpl.Direction = "Auto"
	if _, err := Resolve(tmpl, Overrides{Price: 100}, 0); !errors.Is(err, ErrAutoUnresolved) {
		t.Errorf("got %v, want ErrAutoUnresolved", err)
	}
	intent, err := Resolve(tmpl, Overrides{Price: 100, Direction: "SELL"}, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if intent.Side != connector.SideShort {
		t.Errorf("side = %q, want SHORT", intent.Side)
	}
}

func TestTargetPrices(t *testing.T) {
	tmpl := baseTemplate()
	tmpl.SizeMode = SizeBase
	tmpl.Size = 2
	tmpl.TP = Target{Enabled: true, Mode: TargetPercent, Value: 10}
	tmpl.SL = Target{Enabled: true, Mode: TargetAmount, Value: 50}

	intent, err := Resolve(tmpl, Overrides{Price: 1000}, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if intent.TakeProfit != 1100 {
		t.Errorf("long TP = %v, want 1100", intent.TakeProfit)
	}
	// 50 USDT loss over 2 units = 25 below entry for a long
	if intent.StopLoss != 975 {
		t.Errorf("long SL = %v, want 975", intent.StopLoss)
	}

	intent, err = Resolve(tmpl, Overrides{Price: 1000, Direction: "Short"}, 0)
	if err != nil {
		t.Fatalf("resolve short: %v", err)
	}
	if intent.TakeProfit != 900 {
		t.Errorf("short TP = %v, want 900", intent.TakeProfit)
	}
	if intent.StopLoss != 1025 {
		t.Errorf("short SL = %v, want 1025", intent.StopLoss)
	}

	tmpl.TP = Target{Enabled: true, Mode: TargetPrice, Value: 1234}
	intent, err = Resolve(tmpl, Overrides{Price: 1000}, 0)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if intent.TakeProfit != 1234 {
		t.Errorf("absolute TP = %v, want 1234", intent.TakeProfit)
	}
}
