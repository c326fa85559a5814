// Package template holds reusable order blueprints and resolves them,
// together with per-call overrides, into concrete order intents.
package template

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"bot-core/internal/connector"
)

var (
	ErrNotFound       = errors.New("template not found")
	ErrNoPrice        = errors.New("no usable price for resolution")
	ErrMultiCoinMix   = errors.New("multi-coin template must not set a single pair")
	ErrNoPair         = errors.New("no pair selected")
	ErrBadDirection   = errors.New("direction must be Long, Short or Auto")
	ErrAutoUnresolved = errors.New("Auto direction requires a side from the caller")
)

// SizeMode selects how Template.Size is interpreted.
type SizeMode string

const (
	SizeQuote   SizeMode = "quote"   // absolute quote currency amount
	SizePercent SizeMode = "percent" // percent of available balance
	SizeBase    SizeMode = "base"    // base asset quantity as-is
)

// TargetMode selects how a take-profit or stop-loss value is interpreted.
type TargetMode string

const (
	TargetPrice   TargetMode = "price"   // absolute trigger price
	TargetPercent TargetMode = "percent" // percent move from entry
	TargetAmount  TargetMode = "amount"  // quote currency profit/loss amount
)

// Target is one take-profit or stop-loss leg.
type Target struct {
	Enabled bool       `json:"enabled"`
	Mode    TargetMode `json:"mode"`
	Value   float64    `json:"value"`
}

// Template is a reusable order blueprint. Pair and Pairs are mutually
// exclusive: more than one entry in Pairs makes it a multi-coin template.
type Template struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Pair      string    `json:"pair,omitempty"`
	Pairs     []string  `json:"pairs,omitempty"`
	Direction string    `json:"direction"` // Long | Short | Auto
	Size      float64   `json:"size"`
	SizeMode  SizeMode  `json:"sizeMode"`
	Leverage  int       `json:"leverage"`
	OrderType string    `json:"orderType"` // MARKET | LIMIT
	TP        Target    `json:"takeProfit"`
	SL        Target    `json:"stopLoss"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MultiCoin reports whether the template targets several pairs.
func (t *Template) MultiCoin() bool { return len(t.Pairs) > 1 }

// Validate enforces the structural invariants of a template.
func (t *Template) Validate() error {
	if t.Pair != "" && len(t.Pairs) > 0 {
		return ErrMultiCoinMix
	}
	if t.Pair == "" && len(t.Pairs) == 0 {
		return ErrNoPair
	}
	switch t.Direction {
	case "Long", "Short", "Auto":
	default:
		return ErrBadDirection
	}
	if t.Size <= 0 || math.IsNaN(t.Size) {
		return fmt.Errorf("size must be positive, got %v", t.Size)
	}
	switch t.SizeMode {
	case SizeQuote, SizePercent, SizeBase:
	default:
		return fmt.Errorf("unknown size mode %q", t.SizeMode)
	}
	if t.Leverage < 0 {
		return fmt.Errorf("leverage must not be negative")
	}
	return nil
}

// Overrides are per-call parameters that take precedence over the template.
// Zero values mean "not overridden".
type Overrides struct {
	Pair       string
	Direction  string
	Size       float64
	SizeMode   SizeMode
	Leverage   int
	OrderType  connector.OrderType
	LimitPrice float64
	Price      float64 // current market price supplied by the caller
	TP         *Target
	SL         *Target
}

// Intent is a fully resolved order: every field concrete, prices absolute.
type Intent struct {
	Pair       string
	Side       connector.Side
	Type       connector.OrderType
	Quantity   float64 // base asset
	Price      float64 // entry (market) or limit price
	Notional   float64 // quantity * price
	Margin     float64 // notional / leverage
	Leverage   int
	TakeProfit float64 // absolute trigger price, 0 = disabled
	StopLoss   float64
}

// NormalizeDirection maps the accepted spellings onto connector sides.
// Auto returns an empty side; the caller must supply one via overrides.
func NormalizeDirection(dir string) (connector.Side, error) {
	switch strings.ToUpper(strings.TrimSpace(dir)) {
	case "LONG", "BUY":
		return connector.SideLong, nil
	case "SHORT", "SELL":
		return connector.SideShort, nil
	case "AUTO":
		return "", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrBadDirection, dir)
	}
}

// Resolve merges a template with per-call overrides into an Intent.
// Precedence for every field: override > template > default. Balance is the
// available quote balance, used only for percent sizing.
func Resolve(t *Template, ov Overrides, balance float64) (Intent, error) {
	if t == nil {
		return Intent{}, ErrNotFound
	}

	pair := t.Pair
	if len(t.Pairs) == 1 {
		pair = t.Pairs[0]
	}
	if ov.Pair != "" {
		pair = ov.Pair
	}
	if pair == "" {
		return Intent{}, ErrNoPair
	}

	dir := t.Direction
	if ov.Direction != "" {
		dir = ov.Direction
	}
	side, err := NormalizeDirection(dir)
	if err != nil {
		return Intent{}, err
	}
	if side == "" {
		return Intent{}, ErrAutoUnresolved
	}

	orderType := connector.TypeMarket
	if t.OrderType == string(connector.TypeLimit) {
		orderType = connector.TypeLimit
	}
	if ov.OrderType != "" {
		orderType = ov.OrderType
	}

	price := ov.Price
	if orderType == connector.TypeLimit && ov.LimitPrice > 0 {
		price = ov.LimitPrice
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return Intent{}, fmt.Errorf("%w: pair %s", ErrNoPrice, pair)
	}

	size := t.Size
	if ov.Size > 0 {
		size = ov.Size
	}
	sizeMode := t.SizeMode
	if ov.SizeMode != "" {
		sizeMode = ov.SizeMode
	}

	var quantity float64
	switch sizeMode {
	case SizeQuote:
		quantity = size / price
	case SizePercent:
		quantity = (balance * size / 100) / price
	case SizeBase:
		quantity = size
	default:
		return Intent{}, fmt.Errorf("unknown size mode %q", sizeMode)
	}
	if quantity <= 0 || math.IsNaN(quantity) {
		return Intent{}, fmt.Errorf("resolved quantity is not positive: %v", quantity)
	}

	leverage := t.Leverage
	if ov.Leverage > 0 {
		leverage = ov.Leverage
	}
	if leverage < 1 {
		leverage = 1
	}

	notional := quantity * price
	intent := Intent{
		Pair:     pair,
		Side:     side,
		Type:     orderType,
		Quantity: quantity,
		Price:    price,
		Notional: notional,
		Margin:   notional / float64(leverage),
		Leverage: leverage,
	}

	tp := t.TP
	if ov.TP != nil {
		tp = *ov.TP
	}
	sl := t.SL
	if ov.SL != nil {
		sl = *ov.SL
	}
	if intent.TakeProfit, err = targetPrice(tp, side, price, quantity, true); err != nil {
		return Intent{}, err
	}
	if intent.StopLoss, err = targetPrice(sl, side, price, quantity, false); err != nil {
		return Intent{}, err
	}
	return intent, nil
}

// targetPrice converts a TP/SL leg into an absolute trigger price.
// profit=true means "in the favorable direction" relative to side.
func targetPrice(tg Target, side connector.Side, entry, quantity float64, profit bool) (float64, error) {
	if !tg.Enabled {
		return 0, nil
	}
	if tg.Value <= 0 || math.IsNaN(tg.Value) {
		return 0, fmt.Errorf("target value must be positive, got %v", tg.Value)
	}

	favorable := side == connector.SideLong
	if !profit {
		favorable = !favorable
	}

	switch tg.Mode {
	case TargetPrice:
		return tg.Value, nil
	case TargetPercent:
		delta := entry * tg.Value / 100
		if favorable {
			return entry + delta, nil
		}
		return entry - delta, nil
	case TargetAmount:
		delta := tg.Value / quantity
		if favorable {
			return entry + delta, nil
		}
		return entry - delta, nil
	default:
		return 0, fmt.Errorf("unknown target mode %q", tg.Mode)
	}
}
