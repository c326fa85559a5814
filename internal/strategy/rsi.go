package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"bot-core/internal/connector"
	"bot-core/internal/indicators"
	"bot-core/internal/market"
	"bot-core/pkg/logger"
	"bot-core/pkg/store"
)

// RSI trigger zones and modes.
const (
	ZoneOversold   = "oversold"   // rsi <= threshold, opens long
	ZoneOverbought = "overbought" // rsi >= threshold, opens short

	ModeTouches = "Touches" // level-triggered, fires while inside the zone
	ModeCrosses = "Crosses" // edge-triggered, needs the previous value outside
)

// RSIBot fires on RSI reaching its configured zone.
type RSIBot struct {
	BotBase
	Period    int     `json:"period"`
	Threshold float64 `json:"threshold"`
	Zone      string  `json:"zone"`
	Mode      string  `json:"mode"`
}

// EvaluateRSI computes RSI over the closed candles and applies the trigger
// mode. Touches fires on every tick inside the zone; the cooldown is what
// spaces executions. Crosses needs the previous value on the other side.
func EvaluateRSI(b *RSIBot, md market.Data) *Signal {
	if !b.Armed() {
		return nil
	}
	closes := make([]float64, 0, len(md.Candles))
	for _, c := range md.Candles {
		if !math.IsNaN(c.Close) && c.Close > 0 {
			closes = append(closes, c.Close)
		}
	}
	r := indicators.RSI(closes, b.Period)
	if !r.Ready {
		return nil
	}

	inZone := r.Value <= b.Threshold
	side := connector.SideLong
	if b.Zone == ZoneOverbought {
		inZone = r.Value >= b.Threshold
		side = connector.SideShort
	}
	if !inZone {
		return nil
	}

	if b.Mode == ModeCrosses {
		if math.IsNaN(r.Previous) {
			return nil
		}
		wasOutside := r.Previous > b.Threshold
		if b.Zone == ZoneOverbought {
			wasOutside = r.Previous < b.Threshold
		}
		if !wasOutside {
			return nil
		}
	}

	price := md.Price
	if price <= 0 {
		price = closes[len(closes)-1]
	}
	return &Signal{
		Side:   side,
		Price:  price,
		SubKey: b.Zone,
		Reason: fmt.Sprintf("rsi %.2f %s threshold %.2f (%s)", r.Value, b.Zone, b.Threshold, b.Mode),
	}
}

// RSIService is the CRUD and evaluation loop for RSI bots.
type RSIService struct {
	store *store.Store
	disp  *Dispatcher
	hub   *market.Hub
}

func NewRSIService(st *store.Store, disp *Dispatcher, hub *market.Hub) *RSIService {
	return &RSIService{store: st, disp: disp, hub: hub}
}

func (s *RSIService) Family() string { return FamilyRSI }

func validateRSI(b *RSIBot) error {
	if b.Period < 2 {
		return fmt.Errorf("rsi period must be at least 2, got %d", b.Period)
	}
	if b.Threshold <= 0 || b.Threshold >= 100 {
		return fmt.Errorf("rsi threshold must be inside (0,100), got %v", b.Threshold)
	}
	switch b.Zone {
	case ZoneOversold, ZoneOverbought:
	default:
		return fmt.Errorf("unknown zone %q", b.Zone)
	}
	switch b.Mode {
	case ModeTouches, ModeCrosses:
	default:
		return fmt.Errorf("unknown trigger mode %q", b.Mode)
	}
	return nil
}

func (s *RSIService) Create(ctx context.Context, b *RSIBot) (*RSIBot, error) {
	if err := validateRSI(b); err != nil {
		return nil, err
	}
	b.ID = uuid.NewString()
	b.Status = StatusWaiting
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	if err := store.PutTyped(ctx, s.store, store.RSIBots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *RSIService) Update(ctx context.Context, userID string, b *RSIBot) (*RSIBot, error) {
	existing, err := s.Get(ctx, userID, b.ID)
	if err != nil {
		return nil, err
	}
	if err := validateRSI(b); err != nil {
		return nil, err
	}
	b.UserID = existing.UserID
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	if err := store.PutTyped(ctx, s.store, store.RSIBots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *RSIService) Get(ctx context.Context, userID, id string) (*RSIBot, error) {
	return getBot[RSIBot](ctx, s.store, store.RSIBots, userID, id)
}

func (s *RSIService) List(ctx context.Context, userID string) ([]RSIBot, error) {
	return listBots[RSIBot](ctx, s.store, store.RSIBots, userID)
}

func (s *RSIService) Delete(ctx context.Context, userID, id string) error {
	return deleteBot[RSIBot](ctx, s.store, store.RSIBots, userID, id)
}

func (s *RSIService) Toggle(ctx context.Context, userID, id string) (*RSIBot, error) {
	b, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	toggleStatus(&b.BotBase)
	if err := store.PutTyped(ctx, s.store, store.RSIBots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Pass evaluates every RSI bot. RSI bots re-arm immediately: after one
// execution they stay in waiting and the cooldown spaces the next one.
func (s *RSIService) Pass(ctx context.Context, now time.Time) {
	bots, err := store.List[RSIBot](ctx, s.store, store.RSIBots)
	if err != nil {
		logger.S().Errorw("rsi pass: list failed", "error", err)
		return
	}
	for i := range bots {
		b := &bots[i]
		sig := EvaluateRSI(b, s.hub.Data(b.Pair))
		if sig == nil {
			continue
		}
		if s.disp.TryExecute(ctx, FamilyRSI, b, sig, now, false) {
			b.Status = StatusWaiting // immediate re-arm
			b.UpdatedAt = time.Now().UTC()
			if err := store.PutTyped(ctx, s.store, store.RSIBots, b.ID, b); err != nil {
				logger.S().Errorw("rsi persist failed", "botId", b.ID, "error", err)
			}
		}
	}
}
