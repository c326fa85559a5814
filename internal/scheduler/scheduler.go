// Package scheduler runs the periodic maintenance jobs: daily trade counter
// resets, the demo limit-order sweep and price cache cleanup.
package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/robfig/cron/v3"

	"bot-core/internal/connector"
	"bot-core/internal/order"
	"bot-core/internal/safety"
	"bot-core/pkg/cache"
	"bot-core/pkg/logger"
	"bot-core/pkg/store"
)

var botCollections = []string{
	store.GridBots, store.DCABots, store.MomentumBots, store.RSIBots, store.CandleBots,
}

// Scheduler owns the cron loop.
type Scheduler struct {
	cron   *cron.Cron
	store  *store.Store
	orders *order.Service
	demo   *connector.Demo
	prices *cache.Prices
}

func New(st *store.Store, orders *order.Service, demo *connector.Demo, prices *cache.Prices) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		store:  st,
		orders: orders,
		demo:   demo,
		prices: prices,
	}
}

// Start registers the jobs and begins the loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("0 0 0 * * *", s.resetDailyCounters); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("*/30 * * * * *", s.sweepPendingOrders); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 0 * * * *", s.cleanupPrices); err != nil {
		return err
	}
	s.cron.Start()
	logger.S().Info("scheduler started")
	return nil
}

// Stop halts the loop and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// resetDailyCounters zeroes every bot's daily trade counter at midnight.
// The safety tracker also resets lazily on date change, so this job is a
// tidy-up, not a correctness requirement.
func (s *Scheduler) resetDailyCounters() {
	ctx := context.Background()
	today := safety.DateOf(time.Now().UTC())
	reset := 0

	for _, collection := range botCollections {
		docs, err := s.store.GetAll(ctx, collection)
		if err != nil {
			logger.S().Errorw("daily reset: list failed", "collection", collection, "error", err)
			continue
		}
		for _, doc := range docs {
			var bot struct {
				ID              string `json:"id"`
				DailyTradeCount int    `json:"dailyTradeCount"`
			}
			if err := json.Unmarshal(doc, &bot); err != nil || bot.ID == "" {
				continue
			}
			if bot.DailyTradeCount == 0 {
				continue
			}
			err := s.store.UpdateByID(ctx, collection, bot.ID, map[string]any{
				"dailyTradeCount": 0,
				"dailyCountDate":  today,
			})
			if err != nil {
				logger.S().Warnw("daily reset failed", "botId", bot.ID, "error", err)
				continue
			}
			reset++
		}
	}
	if reset > 0 {
		logger.S().Infow("daily trade counters reset", "bots", reset)
	}
}

// sweepPendingOrders fills demo limit orders whose price has been crossed
// and promotes the matching order records.
func (s *Scheduler) sweepPendingOrders() {
	ctx := context.Background()
	for _, fill := range s.demo.SweepPending(s.prices.Snapshot()) {
		if err := s.orders.MarkFilled(ctx, fill.OrderID, fill.Price); err != nil {
			logger.S().Warnw("pending sweep: promote failed",
				"exchangeOrderId", fill.OrderID, "pair", fill.Pair, "error", err)
		}
	}
}

func (s *Scheduler) cleanupPrices() {
	if n := s.prices.Cleanup(24 * time.Hour); n > 0 {
		logger.S().Infow("stale prices dropped", "count", n)
	}
}
