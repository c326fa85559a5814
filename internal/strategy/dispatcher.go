package strategy

import (
	"context"
	"time"

	"bot-core/internal/events"
	"bot-core/internal/order"
	"bot-core/internal/safety"
	"bot-core/internal/template"
	"bot-core/pkg/logger"
)

// Dispatcher runs the common trigger path: safety checks, the family lock
// where it applies, the order pipeline, and counter updates. One bot's
// failure never reaches the evaluation loop; the router reports it and the
// pass continues.
type Dispatcher struct {
	Router *order.Router
	Orders *order.Service
	Locker *safety.Locker
	Bus    *events.Bus
}

func (d *Dispatcher) notify(family string, base *BotBase, sig *Signal) {
	if d.Bus == nil {
		return
	}
	d.Bus.Publish(events.EventBotTriggered, events.BotTrigger{
		BotID:  base.ID,
		Family: family,
		Pair:   base.Pair,
		Side:   string(sig.Side),
		Close:  sig.Close,
		Reason: sig.Reason,
	})
}

// TryExecute gates sig through the safety tracker and, if allowed, executes
// it. It returns true only when an order was actually placed or a position
// closed; the caller then commits the engine's state change and persists
// the bot.
func (d *Dispatcher) TryExecute(ctx context.Context, family string, b Bot, sig *Signal, now time.Time, useLock bool) bool {
	base := b.Base()

	// closing an existing position is position management, not a new trade;
	// only the armed check applies
	if sig.Close {
		if !base.Armed() {
			return false
		}
		if !d.closePosition(ctx, family, base) {
			return false
		}
		base.LastTriggerTime = now
		d.notify(family, base, sig)
		logger.S().Infow("bot position closed",
			"family", family, "botId", base.ID, "pair", base.Pair, "reason", sig.Reason)
		return true
	}

	dec := safety.Evaluate(base.Safety, safety.Snapshot{
		Armed:             base.Armed(),
		LastTriggerTime:   base.LastTriggerTime,
		ActiveOrdersCount: base.ActiveOrdersCount,
		DailyTradeCount:   base.DailyTradeCount,
		DailyCountDate:    base.DailyCountDate,
	}, now)
	if dec.ResetDaily {
		base.DailyTradeCount = 0
		base.DailyCountDate = safety.DateOf(now)
	}
	if !dec.Allowed {
		logger.S().Debugw("trigger blocked", "family", family, "botId", base.ID, "reason", dec.Reason)
		return false
	}

	if useLock {
		status, err := d.Locker.IsLocked(ctx, family, now)
		if err != nil {
			logger.S().Errorw("family lock check failed", "family", family, "error", err)
			return false
		}
		if status.Locked && status.Holder != base.ID {
			logger.S().Debugw("trigger blocked",
				"family", family, "botId", base.ID,
				"reason", "family lock held", "holder", status.Holder, "remaining", status.Remaining)
			return false
		}
	}

	ov := template.Overrides{
		Pair:       base.Pair,
		Direction:  string(sig.Side),
		OrderType:  sig.OrderType,
		LimitPrice: sig.LimitPrice,
		Price:      sig.Price,
	}
	if sig.Size > 0 {
		ov.Size = sig.Size
		ov.SizeMode = template.SizeBase
	}
	_, err := d.Router.ExecuteFor(ctx, order.Request{
		UserID:     base.UserID,
		AccountID:  base.AccountID,
		TemplateID: base.TemplateID,
		BotID:      base.ID,
		Source:     order.SourceBot,
		Overrides:  ov,
	}, family)
	if err != nil {
		// already classified and reported by the router
		return false
	}
	base.ActiveOrdersCount++

	base.LastTriggerTime = now
	base.DailyTradeCount++
	base.DailyCountDate = safety.DateOf(now)
	base.TotalTrades++

	if useLock {
		if err := d.Locker.Acquire(ctx, family, base.ID, now, base.Safety.Cooldown.Duration()); err != nil {
			logger.S().Errorw("family lock acquire failed", "family", family, "error", err)
		}
	}
	if sig.SubKey != "" {
		if err := d.Locker.Record(ctx, family, sig.SubKey, now); err != nil {
			logger.S().Warnw("execution record failed",
				"family", family, "subKey", sig.SubKey, "error", err)
		}
	}

	d.notify(family, base, sig)
	logger.S().Infow("bot triggered",
		"family", family, "botId", base.ID, "pair", base.Pair,
		"side", sig.Side, "reason", sig.Reason)
	return true
}

// closePosition flattens every open order of the bot.
func (d *Dispatcher) closePosition(ctx context.Context, family string, base *BotBase) bool {
	open, err := d.Orders.ListByBot(ctx, base.ID)
	if err != nil {
		logger.S().Errorw("list bot orders failed", "family", family, "botId", base.ID, "error", err)
		return false
	}
	closedAny := false
	for _, o := range open {
		if o.Status != order.StatusActive {
			continue
		}
		if _, err := d.Orders.Close(ctx, base.UserID, o.ID); err != nil {
			logger.S().Warnw("close failed", "botId", base.ID, "orderId", o.ID, "error", err)
			continue
		}
		// activeOrdersCount is reconciled by the order.closed watcher,
		// which owns all decrements
		closedAny = true
	}
	return closedAny
}
