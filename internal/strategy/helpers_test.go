package strategy

import (
	"context"
	"testing"
	"time"

	"bot-core/internal/account"
	"bot-core/internal/connector"
	"bot-core/internal/events"
	"bot-core/internal/market"
	"bot-core/internal/order"
	"bot-core/internal/safety"
	"bot-core/internal/template"
	"bot-core/pkg/cache"
	"bot-core/pkg/crypto"
	"bot-core/pkg/store"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// harness wires a full in-memory stack: demo connector, document store,
// order pipeline and dispatcher.
type harness struct {
	store     *store.Store
	bus       *events.Bus
	prices    *cache.Prices
	agg       *market.Aggregator
	hub       *market.Hub
	orders    *order.Service
	disp      *Dispatcher
	accountID string
	tmplID    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	enc, err := crypto.NewEncryptor([]byte("0123456789abcdef0123456789abcdef"), 1)
	if err != nil {
		t.Fatalf("encryptor: %v", err)
	}

	bus := events.NewBus()
	prices := cache.NewPrices()
	agg := market.NewAggregator(time.Minute, bus)
	hub := market.NewHub(prices, agg)

	accounts := account.NewService(st, enc)
	templates := template.NewService(st)
	demo := connector.NewDemo(connector.DemoConfig{InitialBalance: 1_000_000})
	registry := connector.NewRegistry(demo)

	router := order.NewRouter(accounts, templates, registry, st, bus, prices)
	orders := order.NewService(accounts, registry, st, bus, prices)

	acc, err := accounts.Create(ctx, "u1", "paper", "binance", connector.ModeDemo, "", "")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	tmpl, err := templates.Create(ctx, &template.Template{
		UserID:    "u1",
		Name:      "bots",
		Pair:      "BTCUSDT",
		Direction: "Auto",
		Size:      100,
		SizeMode:  template.SizeQuote,
		Leverage:  1,
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}

	return &harness{
		store:     st,
		bus:       bus,
		prices:    prices,
		agg:       agg,
		hub:       hub,
		orders:    orders,
		disp:      &Dispatcher{Router: router, Orders: orders, Locker: safety.NewLocker(st)},
		accountID: acc.ID,
		tmplID:    tmpl.ID,
	}
}

func (h *harness) base(name string) BotBase {
	return BotBase{
		UserID:     "u1",
		AccountID:  h.accountID,
		Name:       name,
		Pair:       "BTCUSDT",
		TemplateID: h.tmplID,
		Status:     StatusWaiting,
	}
}

// candles appends a closed candle series, one minute apart ending just
// before testNow, and sets the last close as the current price.
func (h *harness) candles(pairs ...[2]float64) {
	start := testNow.Add(-time.Duration(len(pairs)) * time.Minute)
	for i, oc := range pairs {
		h.agg.Append(market.Candle{
			Pair:     "BTCUSDT",
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     oc[0],
			Close:    oc[1],
			High:     max(oc[0], oc[1]),
			Low:      min(oc[0], oc[1]),
		})
	}
	if len(pairs) > 0 {
		h.prices.Set("BTCUSDT", pairs[len(pairs)-1][1])
	}
}

// mdAt is a snapshot with only a current price, for pure engine tests.
func mdAt(price float64) market.Data {
	return market.Data{Pair: "BTCUSDT", Price: price}
}

func (h *harness) openOrders(t *testing.T) []order.Order {
	t.Helper()
	out, err := h.orders.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	return out
}
