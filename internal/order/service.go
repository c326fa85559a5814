package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bot-core/internal/account"
	"bot-core/internal/connector"
	"bot-core/internal/events"
	"bot-core/pkg/cache"
	"bot-core/pkg/logger"
	"bot-core/pkg/store"
)

var ErrOrderNotFound = errors.New("order not found")

// Service covers the lifecycle after creation: listing, closing positions,
// cancelling resting orders and promoting filled limit orders.
type Service struct {
	accounts *account.Service
	registry *connector.Registry
	store    *store.Store
	bus      *events.Bus
	prices   *cache.Prices
}

func NewService(accounts *account.Service, registry *connector.Registry, st *store.Store, bus *events.Bus, prices *cache.Prices) *Service {
	return &Service{accounts: accounts, registry: registry, store: st, bus: bus, prices: prices}
}

// Get returns one order owned by userID.
func (s *Service) Get(ctx context.Context, userID, id string) (*Order, error) {
	var ord Order
	if err := store.GetTyped(ctx, s.store, store.ActiveOrders, id, &ord); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if ord.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return &ord, nil
}

// List returns the user's open and pending orders.
func (s *Service) List(ctx context.Context, userID string) ([]Order, error) {
	all, err := store.List[Order](ctx, s.store, store.ActiveOrders)
	if err != nil {
		return nil, err
	}
	out := make([]Order, 0, len(all))
	for _, o := range all {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

// ListByBot returns open orders created by one bot.
func (s *Service) ListByBot(ctx context.Context, botID string) ([]Order, error) {
	all, err := store.List[Order](ctx, s.store, store.ActiveOrders)
	if err != nil {
		return nil, err
	}
	var out []Order
	for _, o := range all {
		if o.BotID == botID {
			out = append(out, o)
		}
	}
	return out, nil
}

// Deals returns the user's completed deal history.
func (s *Service) Deals(ctx context.Context, userID string) ([]Deal, error) {
	all, err := store.List[Deal](ctx, s.store, store.CompletedDeals)
	if err != nil {
		return nil, err
	}
	out := make([]Deal, 0, len(all))
	for _, d := range all {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

// Close flattens an active position with a reduce-only market order, records
// the realized result as a Deal and emits order.closed.
func (s *Service) Close(ctx context.Context, userID, id string) (*Deal, error) {
	ord, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if ord.Status != StatusActive {
		return nil, fmt.Errorf("order %s is %s, only ACTIVE positions can be closed", id, ord.Status)
	}

	creds, err := s.accounts.Resolve(ctx, userID, ord.AccountID)
	if err != nil {
		return nil, &AccountError{Reason: err.Error()}
	}
	conn, err := s.registry.ForCredentials(creds)
	if err != nil {
		return nil, &AccountError{Reason: err.Error()}
	}

	placed, err := conn.PlaceOrder(ctx, connector.OrderRequest{
		Pair:       ord.Pair,
		Side:       ord.Side,
		Type:       connector.TypeMarket,
		Quantity:   ord.Quantity,
		Leverage:   ord.Leverage,
		ReduceOnly: true,
	}, creds, s.prices.Snapshot())
	if err != nil {
		return nil, &ConnectorError{Exchange: conn.Name(), Err: err}
	}

	exit := placed.AvgPrice
	if exit == 0 {
		if p, ok := s.prices.Get(ord.Pair); ok {
			exit = p
		} else {
			exit = ord.EntryPrice
		}
	}

	deal := &Deal{
		ID:          uuid.NewString(),
		OrderID:     ord.ID,
		UserID:      ord.UserID,
		AccountID:   ord.AccountID,
		Pair:        ord.Pair,
		Side:        ord.Side,
		EntryPrice:  ord.EntryPrice,
		ClosePrice:  exit,
		Quantity:    ord.Quantity,
		Leverage:    ord.Leverage,
		RealizedPnL: realizedPnL(ord.Side, ord.EntryPrice, exit, ord.Quantity),
		Source:      ord.Source,
		BotID:       ord.BotID,
		OpenedAt:    ord.CreatedAt,
		ClosedAt:    time.Now().UTC(),
	}
	if err := store.PutTyped(ctx, s.store, store.CompletedDeals, deal.ID, deal); err != nil {
		return nil, err
	}
	if err := s.store.DeleteByID(ctx, store.ActiveOrders, ord.ID); err != nil {
		return nil, err
	}

	logger.S().Infow("position closed",
		"orderId", ord.ID, "pair", ord.Pair, "pnl", deal.RealizedPnL)
	s.bus.Publish(events.EventOrderClosed, deal)
	return deal, nil
}

// Cancel revokes a resting limit order on the venue and marks it CANCELLED.
func (s *Service) Cancel(ctx context.Context, userID, id string) error {
	ord, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if ord.Status != StatusPending {
		return fmt.Errorf("order %s is %s, only PENDING orders can be cancelled", id, ord.Status)
	}

	creds, err := s.accounts.Resolve(ctx, userID, ord.AccountID)
	if err != nil {
		return &AccountError{Reason: err.Error()}
	}
	conn, err := s.registry.ForCredentials(creds)
	if err != nil {
		return &AccountError{Reason: err.Error()}
	}
	if err := conn.CancelOrder(ctx, ord.ExchangeOrderID, ord.Pair, creds); err != nil {
		return &ConnectorError{Exchange: conn.Name(), Err: err}
	}

	if err := s.store.DeleteByID(ctx, store.ActiveOrders, ord.ID); err != nil {
		return err
	}
	ord.Status = StatusCancelled
	logger.S().Infow("order cancelled", "orderId", ord.ID, "pair", ord.Pair)
	s.bus.Publish(events.EventOrderClosed, ord)
	return nil
}

// MarkFilled promotes a PENDING limit order to an ACTIVE position after the
// venue reports a fill. Matching is by exchange order id.
func (s *Service) MarkFilled(ctx context.Context, exchangeOrderID string, fillPrice float64) error {
	all, err := store.List[Order](ctx, s.store, store.ActiveOrders)
	if err != nil {
		return err
	}
	for _, o := range all {
		if o.ExchangeOrderID != exchangeOrderID || o.Status != StatusPending {
			continue
		}
		patch := map[string]any{"status": StatusActive}
		if fillPrice > 0 {
			patch["entryPrice"] = fillPrice
		}
		if err := s.store.UpdateByID(ctx, store.ActiveOrders, o.ID, patch); err != nil {
			return err
		}
		o.Status = StatusActive
		if fillPrice > 0 {
			o.EntryPrice = fillPrice
		}
		logger.S().Infow("limit order filled", "orderId", o.ID, "pair", o.Pair, "price", o.EntryPrice)
		s.bus.Publish(events.EventOrderFilled, &o)
		return nil
	}
	return ErrOrderNotFound
}
