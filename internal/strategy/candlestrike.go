package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bot-core/internal/connector"
	"bot-core/internal/market"
	"bot-core/pkg/logger"
	"bot-core/pkg/store"
)

// Candle colors for the streak condition.
const (
	ColorGreen = "GREEN"
	ColorRed   = "RED"
)

// CandleBot fires after a run of same-color candles. The whole family
// shares one execution lock: while any candle bot is inside its cooldown,
// no sibling may fire.
type CandleBot struct {
	BotBase
	TargetCount    int       `json:"targetCount"`
	Color          string    `json:"color"`
	Direction      string    `json:"direction"` // Long | Short
	LastCandleTime time.Time `json:"lastCandleTime,omitempty"`
}

// StreakCount counts consecutive candles of the color ending at the latest
// closed candle. A neutral candle, like any wrong-color one, breaks the run.
func StreakCount(candles []market.Candle, color string) int {
	count := 0
	for i := len(candles) - 1; i >= 0; i-- {
		match := candles[i].Green()
		if color == ColorRed {
			match = candles[i].Red()
		}
		if !match {
			break
		}
		count++
	}
	return count
}

// EvaluateCandleStrike fires when the streak reaches the target, at most
// once per candle timestamp.
func EvaluateCandleStrike(b *CandleBot, md market.Data) *Signal {
	if !b.Armed() || len(md.Candles) == 0 {
		return nil
	}
	latest := md.Candles[len(md.Candles)-1]
	if !latest.OpenTime.After(b.LastCandleTime) {
		return nil
	}

	count := StreakCount(md.Candles, b.Color)
	if count < b.TargetCount {
		return nil
	}

	side := connector.SideLong
	if b.Direction == "Short" {
		side = connector.SideShort
	}
	price := md.Price
	if price <= 0 {
		price = latest.Close
	}
	return &Signal{
		Side:   side,
		Price:  price,
		SubKey: b.Color,
		Reason: fmt.Sprintf("%d consecutive %s candles (target %d)", count, b.Color, b.TargetCount),
	}
}

// CandleStrikeService is the CRUD and evaluation loop for candle-strike
// bots.
type CandleStrikeService struct {
	store *store.Store
	disp  *Dispatcher
	hub   *market.Hub
}

func NewCandleStrikeService(st *store.Store, disp *Dispatcher, hub *market.Hub) *CandleStrikeService {
	return &CandleStrikeService{store: st, disp: disp, hub: hub}
}

func (s *CandleStrikeService) Family() string { return FamilyCandleStrike }

func validateCandleStrike(b *CandleBot) error {
	if b.TargetCount < 1 {
		return fmt.Errorf("target count must be at least 1, got %d", b.TargetCount)
	}
	switch b.Color {
	case ColorGreen, ColorRed:
	default:
		return fmt.Errorf("color must be GREEN or RED, got %q", b.Color)
	}
	switch b.Direction {
	case "Long", "Short":
		return nil
	default:
		return fmt.Errorf("direction must be Long or Short, got %q", b.Direction)
	}
}

func (s *CandleStrikeService) Create(ctx context.Context, b *CandleBot) (*CandleBot, error) {
	if err := validateCandleStrike(b); err != nil {
		return nil, err
	}
	b.ID = uuid.NewString()
	b.Status = StatusWaiting
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	if err := store.PutTyped(ctx, s.store, store.CandleBots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *CandleStrikeService) Update(ctx context.Context, userID string, b *CandleBot) (*CandleBot, error) {
	existing, err := s.Get(ctx, userID, b.ID)
	if err != nil {
		return nil, err
	}
	if err := validateCandleStrike(b); err != nil {
		return nil, err
	}
	b.UserID = existing.UserID
	b.LastCandleTime = existing.LastCandleTime
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	if err := store.PutTyped(ctx, s.store, store.CandleBots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *CandleStrikeService) Get(ctx context.Context, userID, id string) (*CandleBot, error) {
	return getBot[CandleBot](ctx, s.store, store.CandleBots, userID, id)
}

func (s *CandleStrikeService) List(ctx context.Context, userID string) ([]CandleBot, error) {
	return listBots[CandleBot](ctx, s.store, store.CandleBots, userID)
}

// Delete removes the bot and releases the family lock if the bot holds it,
// so a deleted bot cannot stall its siblings.
func (s *CandleStrikeService) Delete(ctx context.Context, userID, id string) error {
	if err := deleteBot[CandleBot](ctx, s.store, store.CandleBots, userID, id); err != nil {
		return err
	}
	return s.disp.Locker.Release(ctx, FamilyCandleStrike, id)
}

func (s *CandleStrikeService) Toggle(ctx context.Context, userID, id string) (*CandleBot, error) {
	b, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	toggleStatus(&b.BotBase)
	if err := store.PutTyped(ctx, s.store, store.CandleBots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Pass evaluates every candle-strike bot under the family lock. Bots re-arm
// immediately after one execution.
func (s *CandleStrikeService) Pass(ctx context.Context, now time.Time) {
	bots, err := store.List[CandleBot](ctx, s.store, store.CandleBots)
	if err != nil {
		logger.S().Errorw("candlestrike pass: list failed", "error", err)
		return
	}
	for i := range bots {
		b := &bots[i]
		md := s.hub.Data(b.Pair)
		sig := EvaluateCandleStrike(b, md)
		if sig == nil {
			continue
		}
		if s.disp.TryExecute(ctx, FamilyCandleStrike, b, sig, now, true) {
			b.LastCandleTime = md.Candles[len(md.Candles)-1].OpenTime
			b.Status = StatusWaiting // immediate re-arm
			b.UpdatedAt = time.Now().UTC()
			if err := store.PutTyped(ctx, s.store, store.CandleBots, b.ID, b); err != nil {
				logger.S().Errorw("candlestrike persist failed", "botId", b.ID, "error", err)
			}
		}
	}
}
