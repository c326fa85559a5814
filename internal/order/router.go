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
	"bot-core/internal/template"
	"bot-core/pkg/cache"
	"bot-core/pkg/logger"
	"bot-core/pkg/store"
)

// Router turns a Request into a persisted Order by walking the pipeline:
// credentials, connector selection, balance, template resolution, validation,
// leverage, placement, persistence. Every failure is classified and reported
// on the bus; nothing escapes to the evaluation loop.
type Router struct {
	accounts  *account.Service
	templates *template.Service
	registry  *connector.Registry
	store     *store.Store
	bus       *events.Bus
	prices    *cache.Prices
}

func NewRouter(accounts *account.Service, templates *template.Service, registry *connector.Registry, st *store.Store, bus *events.Bus, prices *cache.Prices) *Router {
	return &Router{
		accounts:  accounts,
		templates: templates,
		registry:  registry,
		store:     st,
		bus:       bus,
		prices:    prices,
	}
}

// fail classifies, reports and returns one pipeline failure.
func (r *Router) fail(req Request, family string, err error) error {
	logger.S().Warnw("order rejected",
		"userId", req.UserID, "botId", req.BotID, "source", req.Source, "reason", err)
	if req.BotID != "" {
		r.bus.Publish(events.EventBotError, events.BotError{
			BotID:  req.BotID,
			Family: family,
			Reason: err.Error(),
		})
	}
	return err
}

// Execute runs the full pipeline for one request. The returned error is
// always one of the typed failures from errors.go.
func (r *Router) Execute(ctx context.Context, req Request) (*Order, error) {
	return r.execute(ctx, req, "")
}

// ExecuteFor is Execute with a strategy family attached to error events.
func (r *Router) ExecuteFor(ctx context.Context, req Request, family string) (*Order, error) {
	return r.execute(ctx, req, family)
}

func (r *Router) execute(ctx context.Context, req Request, family string) (*Order, error) {
	creds, err := r.accounts.Resolve(ctx, req.UserID, req.AccountID)
	if err != nil {
		return nil, r.fail(req, family, &AccountError{Reason: err.Error()})
	}

	conn, err := r.registry.ForCredentials(creds)
	if err != nil {
		return nil, r.fail(req, family, &AccountError{Reason: err.Error()})
	}

	balance, err := conn.GetBalance(ctx, creds)
	if err != nil {
		return nil, r.fail(req, family, &ConnectorError{Exchange: conn.Name(), Err: err})
	}

	tmpl, err := r.templates.Get(ctx, req.UserID, req.TemplateID)
	if err != nil {
		if errors.Is(err, template.ErrNotFound) {
			return nil, r.fail(req, family, &ConsistencyError{
				Reason: fmt.Sprintf("template %s missing", req.TemplateID),
			})
		}
		return nil, r.fail(req, family, &ValidationError{Reason: err.Error()})
	}

	ov := req.Overrides
	if ov.Price <= 0 {
		if p, ok := r.prices.Get(pairOf(tmpl, ov)); ok {
			ov.Price = p
		}
	}
	intent, err := template.Resolve(tmpl, ov, balance.Available)
	if err != nil {
		return nil, r.fail(req, family, &ValidationError{Reason: err.Error()})
	}

	if err := validate(intent, balance); err != nil {
		return nil, r.fail(req, family, err)
	}

	if intent.Leverage > 1 {
		if err := conn.SetLeverage(ctx, intent.Pair, intent.Leverage, creds); err != nil {
			return nil, r.fail(req, family, &ConnectorError{Exchange: conn.Name(), Err: err})
		}
	}

	placed, err := conn.PlaceOrder(ctx, connector.OrderRequest{
		Pair:       intent.Pair,
		Side:       intent.Side,
		Type:       intent.Type,
		Quantity:   intent.Quantity,
		Price:      intent.Price,
		Leverage:   intent.Leverage,
		TakeProfit: intent.TakeProfit,
		StopLoss:   intent.StopLoss,
		ClientID:   uuid.NewString(),
	}, creds, r.prices.Snapshot())
	if err != nil {
		if connector.IsInsufficientBalance(err) {
			return nil, r.fail(req, family, &InsufficientBalanceError{
				Required:  intent.Margin,
				Available: balance.Available,
			})
		}
		return nil, r.fail(req, family, &ConnectorError{Exchange: conn.Name(), Err: err})
	}

	status := StatusActive
	entry := placed.AvgPrice
	if intent.Type == connector.TypeLimit {
		status = StatusPending
		entry = intent.Price
	}
	if entry == 0 {
		entry = intent.Price
	}

	ord := &Order{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		AccountID:       req.AccountID,
		Pair:            intent.Pair,
		Side:            intent.Side,
		Type:            intent.Type,
		Status:          status,
		EntryPrice:      entry,
		Quantity:        intent.Quantity,
		Margin:          intent.Margin,
		Leverage:        intent.Leverage,
		TakeProfit:      intent.TakeProfit,
		StopLoss:        intent.StopLoss,
		Source:          req.Source,
		BotID:           req.BotID,
		TemplateID:      req.TemplateID,
		ExchangeOrderID: placed.OrderID,
		CreatedAt:       time.Now().UTC(),
	}
	if err := store.PutTyped(ctx, r.store, store.ActiveOrders, ord.ID, ord); err != nil {
		return nil, r.fail(req, family, &ConnectorError{Exchange: conn.Name(), Err: err})
	}

	logger.S().Infow("order created",
		"orderId", ord.ID, "pair", ord.Pair, "side", ord.Side,
		"type", ord.Type, "status", ord.Status, "source", ord.Source, "botId", ord.BotID)
	r.bus.Publish(events.EventOrderCreated, ord)
	return ord, nil
}

func pairOf(t *template.Template, ov template.Overrides) string {
	if ov.Pair != "" {
		return ov.Pair
	}
	if t.Pair != "" {
		return t.Pair
	}
	if len(t.Pairs) > 0 {
		return t.Pairs[0]
	}
	return ""
}

// validate runs the pre-dispatch checks against the live balance.
func validate(in template.Intent, bal connector.Balance) error {
	if in.Quantity <= 0 {
		return &ValidationError{Reason: "quantity must be positive"}
	}
	if in.Price <= 0 {
		return &ValidationError{Reason: "price must be positive"}
	}
	if in.Margin > bal.Available {
		return &InsufficientBalanceError{Required: in.Margin, Available: bal.Available}
	}
	return nil
}
