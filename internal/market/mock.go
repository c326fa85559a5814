package market

import (
	"context"
	"math/rand"
	"time"

	"bot-core/internal/events"
	"bot-core/pkg/cache"
	"bot-core/pkg/logger"
)

// Tick is the payload of price.tick events.
type Tick struct {
	Pair  string
	Price float64
	At    time.Time
}

// MockFeed generates random-walk ticks for local development and demo mode.
type MockFeed struct {
	Bus      *events.Bus
	Prices   *cache.Prices
	Agg      *Aggregator
	Pairs    []string
	Start    map[string]float64
	StepPct  float64
	Interval time.Duration
}

func (m *MockFeed) Run(ctx context.Context) {
	if len(m.Pairs) == 0 {
		m.Pairs = []string{"BTCUSDT"}
	}
	if m.StepPct == 0 {
		m.StepPct = 0.05
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	last := make(map[string]float64, len(m.Pairs))
	for _, p := range m.Pairs {
		if s, ok := m.Start[p]; ok && s > 0 {
			last[p] = s
		} else {
			last[p] = 100
		}
	}

	logger.S().Infow("mock feed started", "pairs", m.Pairs, "interval", m.Interval)

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				for _, pair := range m.Pairs {
					// random walk in percent so high and low priced pairs drift alike
					price := last[pair] * (1 + (rand.Float64()*2-1)*m.StepPct/100)
					last[pair] = price
					m.publish(pair, price, now)
				}
			}
		}
	}()
}

func (m *MockFeed) publish(pair string, price float64, at time.Time) {
	if m.Prices != nil {
		m.Prices.Set(pair, price)
	}
	if m.Agg != nil {
		m.Agg.Tick(pair, price, at)
	}
	if m.Bus != nil {
		m.Bus.Publish(events.EventPriceTick, Tick{Pair: pair, Price: price, At: at})
	}
}
