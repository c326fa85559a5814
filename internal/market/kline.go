// Package market produces the price ticks and closed candles the strategy
// engines evaluate against.
package market

import (
	"sync"
	"time"

	"bot-core/internal/events"
	"bot-core/pkg/cache"
)

const maxHistory = 500

// Candle is one OHLCV bar. Closed candles are immutable.
type Candle struct {
	Pair     string    `json:"pair"`
	OpenTime time.Time `json:"openTime"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Green reports close above open. A doji is neither green nor red.
func (c Candle) Green() bool { return c.Close > c.Open }

// Red reports close below open.
func (c Candle) Red() bool { return c.Close < c.Open }

// Data is the snapshot handed to one bot evaluation: last price plus the
// closed candle history, oldest first.
type Data struct {
	Pair    string
	Price   float64
	Candles []Candle
}

// Aggregator rolls price ticks into fixed-width candles and keeps a bounded
// history per pair.
type Aggregator struct {
	mu      sync.RWMutex
	width   time.Duration
	bus     *events.Bus
	current map[string]*Candle
	history map[string][]Candle
}

func NewAggregator(width time.Duration, bus *events.Bus) *Aggregator {
	if width <= 0 {
		width = time.Minute
	}
	return &Aggregator{
		width:   width,
		bus:     bus,
		current: make(map[string]*Candle),
		history: make(map[string][]Candle),
	}
}

// Tick folds one trade price into the current candle, closing it first if
// the tick belongs to a later bucket.
func (a *Aggregator) Tick(pair string, price float64, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bucket := at.Truncate(a.width)
	cur := a.current[pair]

	if cur != nil && bucket.After(cur.OpenTime) {
		a.closeLocked(pair, cur)
		cur = nil
	}
	if cur == nil {
		a.current[pair] = &Candle{
			Pair: pair, OpenTime: bucket,
			Open: price, High: price, Low: price, Close: price,
		}
		return
	}

	if price > cur.High {
		cur.High = price
	}
	if price < cur.Low {
		cur.Low = price
	}
	cur.Close = price
	cur.Volume++
}

func (a *Aggregator) closeLocked(pair string, c *Candle) {
	h := append(a.history[pair], *c)
	if len(h) > maxHistory {
		h = h[len(h)-maxHistory:]
	}
	a.history[pair] = h
	delete(a.current, pair)
	if a.bus != nil {
		a.bus.Publish(events.EventCandleClosed, *c)
	}
}

// Append inserts an already-closed candle, used by live feeds that deliver
// finished klines.
func (a *Aggregator) Append(c Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := append(a.history[c.Pair], c)
	if len(h) > maxHistory {
		h = h[len(h)-maxHistory:]
	}
	a.history[c.Pair] = h
	if a.bus != nil {
		a.bus.Publish(events.EventCandleClosed, c)
	}
}

// History returns the closed candles of a pair, oldest first.
func (a *Aggregator) History(pair string) []Candle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h := a.history[pair]
	out := make([]Candle, len(h))
	copy(out, h)
	return out
}

// Hub bundles the price cache and the candle history into evaluation
// snapshots.
type Hub struct {
	Prices *cache.Prices
	Agg    *Aggregator
}

func NewHub(prices *cache.Prices, agg *Aggregator) *Hub {
	return &Hub{Prices: prices, Agg: agg}
}

// Data returns the evaluation snapshot for one pair.
func (h *Hub) Data(pair string) Data {
	price, _ := h.Prices.Get(pair)
	return Data{Pair: pair, Price: price, Candles: h.Agg.History(pair)}
}
