// Package order runs the execution pipeline: resolve credentials and
// template, validate, dispatch to a connector, persist the result.
package order

import (
	"time"

	"bot-core/internal/connector"
	"bot-core/internal/template"
)

// Order lifecycle states.
const (
	StatusActive    = "ACTIVE"
	StatusPending   = "PENDING"
	StatusClosed    = "CLOSED"
	StatusCancelled = "CANCELLED"
)

// Provenance of an order.
const (
	SourceManual = "manual"
	SourceBot    = "bot"
)

// Order is the persisted execution record.
type Order struct {
	ID              string              `json:"id"`
	UserID          string              `json:"userId"`
	AccountID       string              `json:"accountId"`
	Pair            string              `json:"pair"`
	Side            connector.Side      `json:"side"`
	Type            connector.OrderType `json:"type"`
	Status          string              `json:"status"`
	EntryPrice      float64             `json:"entryPrice"`
	Quantity        float64             `json:"quantity"`
	Margin          float64             `json:"margin"` // reserved quote currency
	Leverage        int                 `json:"leverage"`
	TakeProfit      float64             `json:"takeProfit,omitempty"`
	StopLoss        float64             `json:"stopLoss,omitempty"`
	Source          string              `json:"source"` // manual | bot
	BotID           string              `json:"botId,omitempty"`
	TemplateID      string              `json:"templateId,omitempty"`
	ExchangeOrderID string              `json:"exchangeOrderId,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// Deal is the record of a closed position.
type Deal struct {
	ID          string         `json:"id"`
	OrderID     string         `json:"orderId"`
	UserID      string         `json:"userId"`
	AccountID   string         `json:"accountId"`
	Pair        string         `json:"pair"`
	Side        connector.Side `json:"side"`
	EntryPrice  float64        `json:"entryPrice"`
	ClosePrice  float64        `json:"closePrice"`
	Quantity    float64        `json:"quantity"`
	Leverage    int            `json:"leverage"`
	RealizedPnL float64        `json:"realizedPnl"`
	Source      string         `json:"source"`
	BotID       string         `json:"botId,omitempty"`
	OpenedAt    time.Time      `json:"openedAt"`
	ClosedAt    time.Time      `json:"closedAt"`
}

// Request is one execution demand handed to the Router, either from a
// strategy trigger or a manual user action.
type Request struct {
	UserID     string
	AccountID  string
	TemplateID string
	BotID      string // empty for manual orders
	Source     string // manual | bot
	Overrides  template.Overrides
}

// realizedPnL is positive when the position moved in its favor.
func realizedPnL(side connector.Side, entry, exit, quantity float64) float64 {
	if side == connector.SideShort {
		return (entry - exit) * quantity
	}
	return (exit - entry) * quantity
}
