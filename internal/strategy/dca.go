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

// DCAStep is one averaging order. DeviationPct is measured from the initial
// entry price, not the running average. Size is in base asset.
type DCAStep struct {
	DeviationPct float64 `json:"deviationPct"`
	Size         float64 `json:"size"`
	Filled       bool    `json:"filled"`
}

// DCABot accumulates a position through its step table and exits the whole
// position when price reaches the take-profit distance from the running
// average.
type DCABot struct {
	BotBase
	Direction     string    `json:"direction"` // Long | Short
	Steps         []DCAStep `json:"steps"`     // step 0 is the base order, deviation 0
	TakeProfitPct float64   `json:"takeProfitPct"`

	EntryPrice float64 `json:"entryPrice"` // first fill, anchor for deviations
	AvgPrice   float64 `json:"avgPrice"`   // volume weighted
	TotalSize  float64 `json:"totalSize"`  // accumulated base size
}

func (b *DCABot) long() bool { return b.Direction != "Short" }

// ApplyFill folds one filled step into the weighted average.
func (b *DCABot) ApplyFill(stepIdx int, price float64) {
	step := &b.Steps[stepIdx]
	step.Filled = true
	if b.TotalSize == 0 {
		b.EntryPrice = price
		b.AvgPrice = price
		b.TotalSize = step.Size
		return
	}
	b.AvgPrice = (b.AvgPrice*b.TotalSize + price*step.Size) / (b.TotalSize + step.Size)
	b.TotalSize += step.Size
}

// ResetCycle clears the position state after a take-profit close so the bot
// starts a fresh round.
func (b *DCABot) ResetCycle() {
	for i := range b.Steps {
		b.Steps[i].Filled = false
	}
	b.EntryPrice = 0
	b.AvgPrice = 0
	b.TotalSize = 0
	b.Status = StatusWaiting
}

// EvaluateDCA returns the next action: take-profit close, base order, or the
// next safety step whose deviation from entry has been reached. stepIdx is
// -1 for close signals and when nothing fires.
func EvaluateDCA(b *DCABot, md market.Data, now time.Time) (sig *Signal, stepIdx int) {
	if !b.Armed() || len(b.Steps) == 0 {
		return nil, -1
	}
	price := md.Price
	if price <= 0 || math.IsNaN(price) {
		return nil, -1
	}

	side := connector.SideLong
	if !b.long() {
		side = connector.SideShort
	}

	// take-profit first: measured against the running average
	if b.TotalSize > 0 && b.TakeProfitPct > 0 {
		target := b.AvgPrice * (1 + b.TakeProfitPct/100)
		reached := price >= target
		if !b.long() {
			target = b.AvgPrice * (1 - b.TakeProfitPct/100)
			reached = price <= target
		}
		if reached {
			return &Signal{
				Side:   side,
				Price:  price,
				Close:  true,
				Reason: fmt.Sprintf("take profit: price %g vs average %g", price, b.AvgPrice),
			}, -1
		}
	}

	// base order opens the cycle
	if b.TotalSize == 0 {
		if b.Steps[0].Filled {
			return nil, -1
		}
		return &Signal{
			Side:   side,
			Price:  price,
			Size:   b.Steps[0].Size,
			SubKey: "step:0",
			Reason: "base order",
		}, 0
	}

	// safety steps deviate from the initial entry, in the adverse direction
	for i := 1; i < len(b.Steps); i++ {
		step := b.Steps[i]
		if step.Filled {
			continue
		}
		trigger := b.EntryPrice * (1 - step.DeviationPct/100)
		reached := price <= trigger
		if !b.long() {
			trigger = b.EntryPrice * (1 + step.DeviationPct/100)
			reached = price >= trigger
		}
		if reached {
			return &Signal{
				Side:   side,
				Price:  price,
				Size:   step.Size,
				SubKey: fmt.Sprintf("step:%d", i),
				Reason: fmt.Sprintf("step %d: price %g crossed %g", i, price, trigger),
			}, i
		}
	}
	return nil, -1
}

// DCAService is the CRUD and evaluation loop for DCA bots.
type DCAService struct {
	store *store.Store
	disp  *Dispatcher
	hub   *market.Hub
}

func NewDCAService(st *store.Store, disp *Dispatcher, hub *market.Hub) *DCAService {
	return &DCAService{store: st, disp: disp, hub: hub}
}

func (s *DCAService) Family() string { return FamilyDCA }

func validateDCA(b *DCABot) error {
	if len(b.Steps) == 0 {
		return fmt.Errorf("dca bot needs at least a base step")
	}
	if b.Steps[0].DeviationPct != 0 {
		return fmt.Errorf("step 0 is the base order and must have deviation 0")
	}
	prev := 0.0
	for i, st := range b.Steps {
		if st.Size <= 0 {
			return fmt.Errorf("step %d: size must be positive", i)
		}
		if i > 0 && st.DeviationPct <= prev {
			return fmt.Errorf("step %d: deviations must increase", i)
		}
		prev = st.DeviationPct
	}
	switch b.Direction {
	case "Long", "Short":
	default:
		return fmt.Errorf("direction must be Long or Short, got %q", b.Direction)
	}
	return nil
}

func (s *DCAService) Create(ctx context.Context, b *DCABot) (*DCABot, error) {
	if err := validateDCA(b); err != nil {
		return nil, err
	}
	b.ID = uuid.NewString()
	b.Status = StatusWaiting
	b.EntryPrice = 0
	b.AvgPrice = 0
	b.TotalSize = 0
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	if err := store.PutTyped(ctx, s.store, store.DCABots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *DCAService) Update(ctx context.Context, userID string, b *DCABot) (*DCABot, error) {
	existing, err := s.Get(ctx, userID, b.ID)
	if err != nil {
		return nil, err
	}
	if err := validateDCA(b); err != nil {
		return nil, err
	}
	// position state carries over; only configuration changes
	b.UserID = existing.UserID
	b.EntryPrice = existing.EntryPrice
	b.AvgPrice = existing.AvgPrice
	b.TotalSize = existing.TotalSize
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = time.Now().UTC()
	if err := store.PutTyped(ctx, s.store, store.DCABots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *DCAService) Get(ctx context.Context, userID, id string) (*DCABot, error) {
	return getBot[DCABot](ctx, s.store, store.DCABots, userID, id)
}

func (s *DCAService) List(ctx context.Context, userID string) ([]DCABot, error) {
	return listBots[DCABot](ctx, s.store, store.DCABots, userID)
}

func (s *DCAService) Delete(ctx context.Context, userID, id string) error {
	return deleteBot[DCABot](ctx, s.store, store.DCABots, userID, id)
}

func (s *DCAService) Toggle(ctx context.Context, userID, id string) (*DCABot, error) {
	b, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	toggleStatus(&b.BotBase)
	if err := store.PutTyped(ctx, s.store, store.DCABots, b.ID, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Pass evaluates every DCA bot once.
func (s *DCAService) Pass(ctx context.Context, now time.Time) {
	bots, err := store.List[DCABot](ctx, s.store, store.DCABots)
	if err != nil {
		logger.S().Errorw("dca pass: list failed", "error", err)
		return
	}
	for i := range bots {
		b := &bots[i]
		sig, stepIdx := EvaluateDCA(b, s.hub.Data(b.Pair), now)
		if sig == nil {
			continue
		}
		if !s.disp.TryExecute(ctx, FamilyDCA, b, sig, now, false) {
			continue
		}
		if sig.Close {
			logger.S().Infow("dca cycle closed", "botId", b.ID, "avg", b.AvgPrice, "exit", sig.Price)
			b.ResetCycle()
		} else {
			b.ApplyFill(stepIdx, sig.Price)
			b.Status = StatusActive
		}
		b.UpdatedAt = time.Now().UTC()
		if err := store.PutTyped(ctx, s.store, store.DCABots, b.ID, b); err != nil {
			logger.S().Errorw("dca persist failed", "botId", b.ID, "error", err)
		}
	}
}
