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

// Momentum direction restrictions.
const (
	RestrictLongOnly  = "Long Only"
	RestrictShortOnly = "Short Only"
	RestrictBoth      = "Both"
)

// MomentumBot fires when one closed candle moves more than a dollar amount
// from open to close.
type MomentumBot struct {
	BotBase
	DollarAmount   float64   `json:"dollarAmount"`
	Restriction    string    `json:"restriction"`
	LastCandleTime time.Time `json:"lastCandleTime,omitempty"`
}

// EvaluateMomentum checks the latest closed candle. The move must be
// strictly greater than the configured amount; a candle timestamp triggers
// at most once.
func EvaluateMomentum(b *MomentumBot, md market.Data) *Signal {
	if !b.Armed() || len(md.Candles) == 0 {
		return nil
	}
	c := md.Candles[len(md.Candles)-1]
	if !c.OpenTime.After(b.LastCandleTime) {
		return nil
	}

	delta := c.Close - c.Open
	if math.IsNaN(delta) || math.Abs(delta) <= b.DollarAmount {
		return nil
	}

	side := connector.SideLong
	if delta < 0 {
		side = connector.SideShort
	}
	switch b.Restriction {
	case RestrictLongOnly:
		if side != connector.SideLong {
			return nil
		}
	case RestrictShortOnly:
		if side != connector.SideShort {
			return nil
		}
	}

	return &Signal{
		Side:   side,
		Price:  c.Close,
		SubKey: c.OpenTime.UTC().Format(time.RFC3339),
		Reason: fmt.Sprintf("candle moved %+.2f, threshold %.2f", delta, b.DollarAmount),
	}
}

// MomentumService is the CRUD and evaluation loop for momentum bots.
type MomentumService struct {
	store *store.Store
	disp  *Dispatcher
	hub   *market.Hub
}

func NewMomentumService(st *store.Store, disp *Dispatcher, hub *market.Hub) *MomentumService {
	return &MomentumService{store: st, disp: disp, hub: hub}
}

func (s *MomentumService) Family() string { return FamilyMomentum }

func validateMomentum(b *MomentumBot) error {
	if b.DollarAmount <= 0 || math.IsNaN(b.DollarAmount) {
		return fmt.Errorf("dollar amount must be positive, got %v", b.DollarAmount)
	}
	switch b.Restriction {
	case RestrictLongOnly, RestrictShortOnly, RestrictBoth:
		return nil
	default:
		return fmt.Errorf("unknown restriction %q", b.Restriction)
	}
}

func (s *MomentumService) Create(ctx context.Context, b *MomentumBot) (*MomentumBot, error) {
	if b.Restriction == "" {
		b.Restriction = RestrictBoth
	}
	if err := validateMomentum(b); err != nil {
		return nil, err
	}
	b.ID = uuid.NewString()
	b.Status = StatusWaiting
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	if err := store.PutTyped(ctx, s.store, store.MomentumBots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *MomentumService) Update(ctx context.Context, userID string, b *MomentumBot) (*MomentumBot, error) {
	existing, err := s.Get(ctx, userID, b.ID)
	if err != nil {
		return nil, err
	}
	if err := validateMomentum(b); err != nil {
		return nil, err
	}
	b.UserID = existing.UserID
	b.LastCandleTime = existing.LastCandleTime
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	if err := store.PutTyped(ctx, s.store, store.MomentumBots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *MomentumService) Get(ctx context.Context, userID, id string) (*MomentumBot, error) {
	return getBot[MomentumBot](ctx, s.store, store.MomentumBots, userID, id)
}

func (s *MomentumService) List(ctx context.Context, userID string) ([]MomentumBot, error) {
	return listBots[MomentumBot](ctx, s.store, store.MomentumBots, userID)
}

func (s *MomentumService) Delete(ctx context.Context, userID, id string) error {
	return deleteBot[MomentumBot](ctx, s.store, store.MomentumBots, userID, id)
}

func (s *MomentumService) Toggle(ctx context.Context, userID, id string) (*MomentumBot, error) {
	b, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	toggleStatus(&b.BotBase)
	if err := store.PutTyped(ctx, s.store, store.MomentumBots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Pass evaluates every momentum bot against its latest closed candle.
func (s *MomentumService) Pass(ctx context.Context, now time.Time) {
	bots, err := store.List[MomentumBot](ctx, s.store, store.MomentumBots)
	if err != nil {
		logger.S().Errorw("momentum pass: list failed", "error", err)
		return
	}
	for i := range bots {
		b := &bots[i]
		md := s.hub.Data(b.Pair)
		sig := EvaluateMomentum(b, md)
		if sig == nil {
			continue
		}
		if s.disp.TryExecute(ctx, FamilyMomentum, b, sig, now, false) {
			b.LastCandleTime = md.Candles[len(md.Candles)-1].OpenTime
			b.Status = StatusActive
			b.UpdatedAt = time.Now().UTC()
			if err := store.PutTyped(ctx, s.store, store.MomentumBots, b.ID, b); err != nil {
				logger.S().Errorw("momentum persist failed", "botId", b.ID, "error", err)
			}
		}
	}
}
