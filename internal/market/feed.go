package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"bot-core/internal/events"
	"bot-core/pkg/cache"
	"bot-core/pkg/logger"
)

// LiveFeed streams Binance kline data over websocket. Each kline update
// doubles as a price tick; closed klines go into the candle history.
type LiveFeed struct {
	URL      string // base ws endpoint, e.g. wss://fstream.binance.com
	Bus      *events.Bus
	Prices   *cache.Prices
	Agg      *Aggregator
	Pairs    []string
	Interval string // kline width in exchange notation, e.g. "1m"
}

// Run connects and consumes until the context is cancelled, reconnecting
// with backoff on stream errors.
func (f *LiveFeed) Run(ctx context.Context) {
	if f.Interval == "" {
		f.Interval = "1m"
	}
	backoff := time.Second

	go func() {
		for {
			if ctx.Err() != nil {
				return
			}
			if err := f.consume(ctx); err != nil && ctx.Err() == nil {
				logger.S().Warnw("market stream dropped", "error", err, "retryIn", backoff)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second
		}
	}()
}

func (f *LiveFeed) streamURL() string {
	streams := make([]string, 0, len(f.Pairs))
	for _, p := range f.Pairs {
		streams = append(streams, strings.ToLower(p)+"@kline_"+f.Interval)
	}
	return fmt.Sprintf("%s/stream?streams=%s", strings.TrimRight(f.URL, "/"), strings.Join(streams, "/"))
}

func (f *LiveFeed) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	logger.S().Infow("market stream connected", "pairs", f.Pairs, "interval", f.Interval)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var frame struct {
			Data struct {
				Symbol string `json:"s"`
				Kline  struct {
					Start  int64  `json:"t"`
					Open   string `json:"o"`
					High   string `json:"h"`
					Low    string `json:"l"`
					Close  string `json:"c"`
					Volume string `json:"v"`
					Final  bool   `json:"x"`
				} `json:"k"`
			} `json:"data"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		k := frame.Data.Kline
		closePrice, err := strconv.ParseFloat(k.Close, 64)
		if err != nil || closePrice <= 0 {
			continue
		}
		pair := frame.Data.Symbol

		if f.Prices != nil {
			f.Prices.Set(pair, closePrice)
		}
		if f.Bus != nil {
			f.Bus.Publish(events.EventPriceTick, Tick{Pair: pair, Price: closePrice, At: time.Now()})
		}

		if k.Final && f.Agg != nil {
			open, _ := strconv.ParseFloat(k.Open, 64)
			high, _ := strconv.ParseFloat(k.High, 64)
			low, _ := strconv.ParseFloat(k.Low, 64)
			vol, _ := strconv.ParseFloat(k.Volume, 64)
			f.Agg.Append(Candle{
				Pair:     pair,
				OpenTime: time.UnixMilli(k.Start),
				Open:     open, High: high, Low: low, Close: closePrice,
				Volume: vol,
			})
		}
	}
}
