package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"bot-core/internal/connector"
	"bot-core/internal/market"
	"bot-core/pkg/logger"
	"bot-core/pkg/store"
)

// Grid spacing modes.
const (
	SpacingArithmetic = "arithmetic"
	SpacingGeometric  = "geometric"
)

// Grid level lifecycle. A SKIPPED level sat exactly at the current price
// when the grid was built and never trades.
const (
	LevelOpen    = "OPEN"
	LevelFilled  = "FILLED"
	LevelSkipped = "SKIPPED"
)

// GridLevel is one rung of the grid.
type GridLevel struct {
	Price  float64        `json:"price"`
	Side   connector.Side `json:"side"`
	Status string         `json:"status"`
}

// GridBot places one order per level as price crosses its grid.
type GridBot struct {
	BotBase
	Lower      float64     `json:"lower"`
	Upper      float64     `json:"upper"`
	Lines      int         `json:"lines"` // number of intervals; levels = lines+1
	Spacing    string      `json:"spacing"`
	ExpiryTime *time.Time  `json:"expiryTime,omitempty"`
	Levels     []GridLevel `json:"levels"`
}

// BuildLevels computes the lines+1 grid levels between lower and upper and
// assigns sides relative to the current price: below buys, above sells, an
// exact match is skipped.
func BuildLevels(lower, upper float64, lines int, spacing string, current float64) ([]GridLevel, error) {
	if !(lower > 0 && upper > lower) {
		return nil, fmt.Errorf("grid bounds must satisfy 0 < lower < upper, got %v..%v", lower, upper)
	}
	if lines < 2 {
		return nil, fmt.Errorf("grid needs at least 2 lines, got %d", lines)
	}

	levels := make([]GridLevel, 0, lines+1)
	for i := 0; i <= lines; i++ {
		var price float64
		if spacing == SpacingGeometric {
			ratio := math.Pow(upper/lower, 1/float64(lines))
			price = lower * math.Pow(ratio, float64(i))
		} else {
			price = lower + float64(i)*(upper-lower)/float64(lines)
		}

		lvl := GridLevel{Price: price, Status: LevelOpen}
		switch {
		case price < current:
			lvl.Side = connector.SideLong
		case price > current:
			lvl.Side = connector.SideShort
		default:
			lvl.Status = LevelSkipped
		}
		levels = append(levels, lvl)
	}
	return levels, nil
}

// EvaluateGrid checks expiry, then finds the nearest OPEN level whose
// trigger price has been crossed. It returns the signal and the level index,
// or -1 when nothing fires. The expired flag tells the caller the bot
// transitioned to a terminal state and must be persisted.
func EvaluateGrid(b *GridBot, md market.Data, now time.Time) (sig *Signal, levelIdx int, expired bool) {
	if b.ExpiryTime != nil && now.After(*b.ExpiryTime) && b.Status != StatusExpired {
		b.Status = StatusExpired
		return nil, -1, true
	}
	if !b.Armed() {
		return nil, -1, false
	}

	price := md.Price
	if price <= 0 || math.IsNaN(price) {
		return nil, -1, false
	}

	best := -1
	for i, lvl := range b.Levels {
		if lvl.Status != LevelOpen {
			continue
		}
		crossed := (lvl.Side == connector.SideLong && price <= lvl.Price) ||
			(lvl.Side == connector.SideShort && price >= lvl.Price)
		if !crossed {
			continue
		}
		if best == -1 || math.Abs(price-lvl.Price) < math.Abs(price-b.Levels[best].Price) {
			best = i
		}
	}
	if best == -1 {
		return nil, -1, false
	}

	lvl := b.Levels[best]
	return &Signal{
		Side:   lvl.Side,
		Price:  price,
		SubKey: fmt.Sprintf("level:%g", lvl.Price),
		Reason: fmt.Sprintf("grid level %g crossed at %g", lvl.Price, price),
	}, best, false
}

// GridService is the CRUD and evaluation loop for grid bots.
type GridService struct {
	store *store.Store
	disp  *Dispatcher
	hub   *market.Hub
}

func NewGridService(st *store.Store, disp *Dispatcher, hub *market.Hub) *GridService {
	return &GridService{store: st, disp: disp, hub: hub}
}

func (s *GridService) Family() string { return FamilyGrid }

// Create validates the grid, builds its levels at the current price and
// stores the bot in the waiting state.
func (s *GridService) Create(ctx context.Context, b *GridBot) (*GridBot, error) {
	price := s.hub.Data(b.Pair).Price
	if price <= 0 {
		return nil, fmt.Errorf("no price for %s, cannot place grid", b.Pair)
	}
	levels, err := BuildLevels(b.Lower, b.Upper, b.Lines, b.Spacing, price)
	if err != nil {
		return nil, err
	}
	b.ID = uuid.NewString()
	b.Levels = levels
	b.Status = StatusWaiting
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	if err := store.PutTyped(ctx, s.store, store.GridBots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Update replaces the configuration and rebuilds all levels at the current
// price, dropping fill history.
func (s *GridService) Update(ctx context.Context, userID string, b *GridBot) (*GridBot, error) {
	existing, err := s.Get(ctx, userID, b.ID)
	if err != nil {
		return nil, err
	}
	price := s.hub.Data(b.Pair).Price
	if price <= 0 {
		return nil, fmt.Errorf("no price for %s, cannot rebuild grid", b.Pair)
	}
	levels, err := BuildLevels(b.Lower, b.Upper, b.Lines, b.Spacing, price)
	if err != nil {
		return nil, err
	}
	b.UserID = existing.UserID
	b.Levels = levels
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	if err := store.PutTyped(ctx, s.store, store.GridBots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *GridService) Get(ctx context.Context, userID, id string) (*GridBot, error) {
	return getBot[GridBot](ctx, s.store, store.GridBots, userID, id)
}

func (s *GridService) List(ctx context.Context, userID string) ([]GridBot, error) {
	return listBots[GridBot](ctx, s.store, store.GridBots, userID)
}

func (s *GridService) Delete(ctx context.Context, userID, id string) error {
	return deleteBot[GridBot](ctx, s.store, store.GridBots, userID, id)
}

func (s *GridService) Toggle(ctx context.Context, userID, id string) (*GridBot, error) {
	b, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	toggleStatus(&b.BotBase)
	if err := store.PutTyped(ctx, s.store, store.GridBots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Pass evaluates every grid bot once against the current market snapshot.
func (s *GridService) Pass(ctx context.Context, now time.Time) {
	bots, err := store.List[GridBot](ctx, s.store, store.GridBots)
	if err != nil {
		logger.S().Errorw("grid pass: list failed", "error", err)
		return
	}
	for i := range bots {
		b := &bots[i]
		sig, idx, expired := EvaluateGrid(b, s.hub.Data(b.Pair), now)
		if expired {
			logger.S().Infow("grid bot expired", "botId", b.ID)
			s.persist(ctx, b)
			continue
		}
		if sig == nil {
			continue
		}
		if s.disp.TryExecute(ctx, FamilyGrid, b, sig, now, false) {
			b.Levels[idx].Status = LevelFilled
			b.Status = StatusActive
			s.persist(ctx, b)
		}
	}
}

func (s *GridService) persist(ctx context.Context, b *GridBot) {
	b.UpdatedAt = time.Now().UTC()
	if err := store.PutTyped(ctx, s.store, store.GridBots, b.ID, b); err != nil {
		logger.S().Errorw("grid persist failed", "botId", b.ID, "error", err)
	}
}
