// Package connector abstracts exchange backends behind one contract.
// The demo connector is a full in-memory paper-trading simulator; live
// connectors are thin signed HTTP clients.
package connector

import (
	"context"
	"time"
)

// Side denotes position direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// OrderType denotes supported order types.
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
)

// Order statuses as reported by a connector.
const (
	StatusFilled   = "FILLED"
	StatusNew      = "NEW"
	StatusCanceled = "CANCELED"
)

// Mode distinguishes live trading from the paper simulator.
type Mode string

const (
	ModeLive Mode = "live"
	ModeDemo Mode = "demo"
)

// Credentials identify one exchange account, already decrypted.
type Credentials struct {
	UserID    string
	AccountID string
	Exchange  string // "binance", "mexc"
	Mode      Mode
	APIKey    string
	APISecret string
}

// OrderRequest is the concrete order a connector should place.
type OrderRequest struct {
	Pair       string
	Side       Side
	Type       OrderType
	Quantity   float64 // base asset quantity
	Price      float64 // limit price; ignored for market orders
	Leverage   int
	TakeProfit float64 // absolute trigger price, 0 = disabled
	StopLoss   float64
	ReduceOnly bool
	ClientID   string
}

// PlacedOrder is the exchange acknowledgement.
type PlacedOrder struct {
	OrderID     string
	Status      string
	AvgPrice    float64
	TotalFilled float64
	Timestamp   time.Time
}

// Balance reports the USDT margin balance of an account.
type Balance struct {
	Available float64
	Total     float64
}

// Position is an open position reported by a connector.
type Position struct {
	Pair          string
	Side          Side
	Quantity      float64
	EntryPrice    float64
	Leverage      int
	UnrealizedPnL float64
}

// Connector is the uniform contract every backend implements.
type Connector interface {
	Name() string
	ValidateKeys(ctx context.Context, creds Credentials) error
	GetBalance(ctx context.Context, creds Credentials) (Balance, error)
	PlaceOrder(ctx context.Context, req OrderRequest, creds Credentials, prices map[string]float64) (PlacedOrder, error)
	SetLeverage(ctx context.Context, pair string, leverage int, creds Credentials) error
	GetOpenPositions(ctx context.Context, creds Credentials) ([]Position, error)
	CancelOrder(ctx context.Context, orderID, pair string, creds Credentials) error
}
