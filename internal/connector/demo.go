package connector

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DemoConfig tunes the paper-trading simulation.
type DemoConfig struct {
	InitialBalance float64
	FeeRate        float64 // decimal, e.g. 0.0004 = 4 bps
	SlippageBps    float64 // adverse slippage applied on market fills
}

// Demo is an in-memory paper-trading backend. State is kept per account id
// so several demo accounts can trade side by side.
type Demo struct {
	cfg DemoConfig
	rng *rand.Rand

	mu       sync.Mutex
	accounts map[string]*demoAccount
}

type demoAccount struct {
	balance   float64 // free margin
	leverages map[string]int
	positions map[string]*demoPosition // keyed pair|side
	pending   map[string]*pendingOrder
}

type demoPosition struct {
	pair     string
	side     Side
	quantity float64
	entry    float64
	leverage int
	margin   float64
}

type pendingOrder struct {
	id      string
	req     OrderRequest
	margin  float64
	created time.Time
}

// DemoFill reports a pending limit order filled by SweepPending.
type DemoFill struct {
	AccountID string
	OrderID   string
	Pair      string
	Side      Side
	Quantity  float64
	Price     float64
}

// NewDemo creates the paper-trading connector.
func NewDemo(cfg DemoConfig) *Demo {
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 10000
	}
	return &Demo{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		accounts: make(map[string]*demoAccount),
	}
}

func (d *Demo) Name() string { return "demo" }

// ValidateKeys always succeeds: demo accounts need no key material.
func (d *Demo) ValidateKeys(ctx context.Context, creds Credentials) error { return nil }

func (d *Demo) account(id string) *demoAccount {
	a, ok := d.accounts[id]
	if !ok {
		a = &demoAccount{
			balance:   d.cfg.InitialBalance,
			leverages: make(map[string]int),
			positions: make(map[string]*demoPosition),
			pending:   make(map[string]*pendingOrder),
		}
		d.accounts[id] = a
	}
	return a
}

func posKey(pair string, side Side) string { return pair + "|" + string(side) }

// GetBalance reports free and total margin for the account.
func (d *Demo) GetBalance(ctx context.Context, creds Credentials) (Balance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a := d.account(creds.AccountID)
	total := a.balance
	for _, p := range a.positions {
		total += p.margin
	}
	for _, o := range a.pending {
		total += o.margin
	}
	return Balance{Available: a.balance, Total: total}, nil
}

// SetLeverage records the default leverage used for subsequent orders on a pair.
func (d *Demo) SetLeverage(ctx context.Context, pair string, leverage int, creds Credentials) error {
	if leverage < 1 {
		return fmt.Errorf("leverage must be >= 1, got %d", leverage)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.account(creds.AccountID).leverages[pair] = leverage
	return nil
}

// PlaceOrder simulates an order. Market orders fill immediately at the cached
// price plus adverse slippage; limit orders rest until SweepPending crosses
// their price. Reduce-only orders close against the opposite position.
func (d *Demo) PlaceOrder(ctx context.Context, req OrderRequest, creds Credentials, prices map[string]float64) (PlacedOrder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a := d.account(creds.AccountID)

	lev := req.Leverage
	if lev < 1 {
		if l := a.leverages[req.Pair]; l >= 1 {
			lev = l
		} else {
			lev = 1
		}
	}

	if req.ReduceOnly {
		price := d.resolvePrice(req, prices)
		if price <= 0 {
			return PlacedOrder{}, fmt.Errorf("no price available for %s", req.Pair)
		}
		return d.closePosition(a, req, price)
	}

	if req.Type == TypeLimit {
		if req.Price <= 0 {
			return PlacedOrder{}, fmt.Errorf("limit order requires a price")
		}
		margin := req.Quantity * req.Price / float64(lev)
		if margin > a.balance {
			return PlacedOrder{}, fmt.Errorf("insufficient balance: need %.2f, have %.2f", margin, a.balance)
		}
		a.balance -= margin
		o := &pendingOrder{
			id:      uuid.NewString(),
			req:     req,
			margin:  margin,
			created: time.Now(),
		}
		o.req.Leverage = lev
		a.pending[o.id] = o
		return PlacedOrder{OrderID: o.id, Status: StatusNew, AvgPrice: req.Price, Timestamp: o.created}, nil
	}

	price := d.resolvePrice(req, prices)
	if price <= 0 {
		return PlacedOrder{}, fmt.Errorf("no price available for %s", req.Pair)
	}
	price = d.applySlippage(price, req.Side)

	notional := req.Quantity * price
	margin := notional / float64(lev)
	fee := notional * d.cfg.FeeRate
	if margin+fee > a.balance {
		return PlacedOrder{}, fmt.Errorf("insufficient balance: need %.2f, have %.2f", margin+fee, a.balance)
	}
	a.balance -= margin + fee
	d.mergePosition(a, req.Pair, req.Side, req.Quantity, price, lev, margin)

	return PlacedOrder{
		OrderID:     uuid.NewString(),
		Status:      StatusFilled,
		AvgPrice:    price,
		TotalFilled: req.Quantity,
		Timestamp:   time.Now(),
	}, nil
}

func (d *Demo) resolvePrice(req OrderRequest, prices map[string]float64) float64 {
	if p, ok := prices[req.Pair]; ok && p > 0 {
		return p
	}
	return req.Price
}

func (d *Demo) applySlippage(price float64, side Side) float64 {
	frac := d.cfg.SlippageBps / 10000.0
	if frac <= 0 {
		return price
	}
	noise := d.rng.Float64() * frac
	if side == SideLong {
		return price * (1 + noise)
	}
	return price * (1 - noise)
}

func (d *Demo) mergePosition(a *demoAccount, pair string, side Side, qty, price float64, lev int, margin float64) {
	key := posKey(pair, side)
	p, ok := a.positions[key]
	if !ok {
		a.positions[key] = &demoPosition{
			pair: pair, side: side,
			quantity: qty, entry: price,
			leverage: lev, margin: margin,
		}
		return
	}
	total := p.quantity + qty
	p.entry = (p.entry*p.quantity + price*qty) / total
	p.quantity = total
	p.margin += margin
}

func (d *Demo) closePosition(a *demoAccount, req OrderRequest, price float64) (PlacedOrder, error) {
	key := posKey(req.Pair, req.Side)
	p, ok := a.positions[key]
	if !ok || p.quantity <= 0 {
		return PlacedOrder{}, fmt.Errorf("no open %s position on %s", req.Side, req.Pair)
	}

	qty := req.Quantity
	if qty <= 0 || qty > p.quantity {
		qty = p.quantity
	}

	var pnl float64
	if p.side == SideLong {
		pnl = (price - p.entry) * qty
	} else {
		pnl = (p.entry - price) * qty
	}
	released := p.margin * qty / p.quantity
	fee := qty * price * d.cfg.FeeRate

	a.balance += released + pnl - fee
	p.quantity -= qty
	p.margin -= released
	if p.quantity <= 1e-12 {
		delete(a.positions, key)
	}

	return PlacedOrder{
		OrderID:     uuid.NewString(),
		Status:      StatusFilled,
		AvgPrice:    price,
		TotalFilled: qty,
		Timestamp:   time.Now(),
	}, nil
}

// GetOpenPositions lists the account's simulated positions.
func (d *Demo) GetOpenPositions(ctx context.Context, creds Credentials) ([]Position, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	a := d.account(creds.AccountID)
	out := make([]Position, 0, len(a.positions))
	for _, p := range a.positions {
		out = append(out, Position{
			Pair:       p.pair,
			Side:       p.side,
			Quantity:   p.quantity,
			EntryPrice: p.entry,
			Leverage:   p.leverage,
		})
	}
	return out, nil
}

// CancelOrder removes a resting limit order and releases its margin.
func (d *Demo) CancelOrder(ctx context.Context, orderID, pair string, creds Credentials) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	a := d.account(creds.AccountID)
	o, ok := a.pending[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	a.balance += o.margin
	delete(a.pending, orderID)
	return nil
}

// SweepPending fills resting limit orders whose price has been crossed and
// returns the fills so order records can be updated downstream. A long entry
// fills when the market trades at or below the limit; a short entry at or above.
func (d *Demo) SweepPending(prices map[string]float64) []DemoFill {
	d.mu.Lock()
	defer d.mu.Unlock()

	var fills []DemoFill
	for accountID, a := range d.accounts {
		for id, o := range a.pending {
			price, ok := prices[o.req.Pair]
			if !ok || price <= 0 {
				continue
			}
			crossed := (o.req.Side == SideLong && price <= o.req.Price) ||
				(o.req.Side == SideShort && price >= o.req.Price)
			if !crossed {
				continue
			}

			fillPrice := o.req.Price
			fee := o.req.Quantity * fillPrice * d.cfg.FeeRate
			a.balance -= fee
			d.mergePosition(a, o.req.Pair, o.req.Side, o.req.Quantity, fillPrice, o.req.Leverage, o.margin)
			delete(a.pending, id)

			fills = append(fills, DemoFill{
				AccountID: accountID,
				OrderID:   id,
				Pair:      o.req.Pair,
				Side:      o.req.Side,
				Quantity:  o.req.Quantity,
				Price:     fillPrice,
			})
		}
	}
	return fills
}

// IsInsufficientBalance reports whether err is a simulated balance rejection.
func IsInsufficientBalance(err error) bool {
	return err != nil && strings.Contains(err.Error(), "insufficient balance")
}
