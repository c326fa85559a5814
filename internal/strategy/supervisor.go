package strategy

import (
	"context"
	"sync"
	"time"

	"bot-core/internal/events"
	"bot-core/internal/order"
	"bot-core/pkg/logger"
	"bot-core/pkg/store"
)

// Runner is one strategy family's evaluation loop.
type Runner interface {
	Family() string
	Pass(ctx context.Context, now time.Time)
}

// Supervisor drives one ticker per family. Each family's pass runs
// sequentially over its bots; a tick that arrives while the previous pass
// is still in flight is skipped rather than overlapped, so no bot is ever
// evaluated twice at once.
type Supervisor struct {
	store     *store.Store
	bus       *events.Bus
	runners   map[Runner]time.Duration
	inflight  map[string]*sync.Mutex
	closeSubs []func()
}

func NewSupervisor(st *store.Store, bus *events.Bus) *Supervisor {
	return &Supervisor{
		store:    st,
		bus:      bus,
		runners:  make(map[Runner]time.Duration),
		inflight: make(map[string]*sync.Mutex),
	}
}

// Add registers a family loop with its evaluation interval.
func (s *Supervisor) Add(r Runner, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	s.runners[r] = interval
	s.inflight[r.Family()] = &sync.Mutex{}
}

// Run starts all family loops and the order-close listener. It returns
// immediately; loops stop when the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for r, interval := range s.runners {
		go s.loop(ctx, r, interval)
	}
	s.watchClosedOrders(ctx)
}

func (s *Supervisor) loop(ctx context.Context, r Runner, interval time.Duration) {
	logger.S().Infow("strategy loop started", "family", r.Family(), "interval", interval)
	guard := s.inflight[r.Family()]
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if !guard.TryLock() {
				continue // previous pass still running
			}
			r.Pass(ctx, now)
			guard.Unlock()
		}
	}
}

// watchClosedOrders keeps activeOrdersCount in sync when positions are
// closed or cancelled outside the evaluation loop, e.g. by the user.
func (s *Supervisor) watchClosedOrders(ctx context.Context) {
	ch, unsub := s.bus.Subscribe(events.EventOrderClosed, 64)
	s.closeSubs = append(s.closeSubs, unsub)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-ch:
				if !ok {
					return
				}
				botID := botIDOf(payload)
				if botID == "" {
					continue
				}
				s.decrementActive(ctx, botID)
			}
		}
	}()
}

func botIDOf(payload any) string {
	switch v := payload.(type) {
	case *order.Deal:
		return v.BotID
	case *order.Order:
		return v.BotID
	default:
		return ""
	}
}

var botCollections = []string{
	store.GridBots, store.DCABots, store.MomentumBots, store.RSIBots, store.CandleBots,
}

func (s *Supervisor) decrementActive(ctx context.Context, botID string) {
	for _, collection := range botCollections {
		var base struct {
			ActiveOrdersCount int `json:"activeOrdersCount"`
		}
		if err := store.GetTyped(ctx, s.store, collection, botID, &base); err != nil {
			continue
		}
		if base.ActiveOrdersCount <= 0 {
			return
		}
		if err := s.store.UpdateByID(ctx, collection, botID, map[string]any{
			"activeOrdersCount": base.ActiveOrdersCount - 1,
		}); err != nil {
			logger.S().Warnw("active order count sync failed", "botId", botID, "error", err)
		}
		return
	}
}
