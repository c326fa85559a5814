// Package strategy implements the bot engines: grid, DCA, momentum, RSI and
// candle-strike. Each engine is a state machine over one persisted bot
// record, evaluated once per tick of its family's loop.
package strategy

import (
	"time"

	"bot-core/internal/connector"
	"bot-core/internal/safety"
)

// Strategy families. Each family has its own bot collection, evaluation
// loop and, for candle-strike, a shared execution lock.
const (
	FamilyGrid         = "grid"
	FamilyDCA          = "dca"
	FamilyMomentum     = "momentum"
	FamilyRSI          = "rsi"
	FamilyCandleStrike = "candleStrike"
)

// Bot lifecycle states.
const (
	StatusWaiting = "waiting"
	StatusActive  = "active"
	StatusPaused  = "paused"
	StatusExpired = "expired"
	StatusClosed  = "closed"
)

// BotBase is the shape every bot family shares: identity, template link,
// lifecycle status, trigger counters and the safety configuration.
type BotBase struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	AccountID  string `json:"accountId"`
	Name       string `json:"name"`
	Pair       string `json:"pair"`
	TemplateID string `json:"templateId"`
	Status     string `json:"status"`

	ActiveOrdersCount int       `json:"activeOrdersCount"`
	DailyTradeCount   int       `json:"dailyTradeCount"`
	DailyCountDate    string    `json:"dailyCountDate,omitempty"`
	LastTriggerTime   time.Time `json:"lastTriggerTime,omitempty"`
	TotalTrades       int       `json:"totalTrades"`

	Safety safety.Config `json:"safety"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Base lets the dispatcher reach the shared fields of any bot.
func (b *BotBase) Base() *BotBase { return b }

// Armed reports whether the bot may trigger. Paused and terminal bots are
// not armed.
func (b *BotBase) Armed() bool {
	return b.Status == StatusWaiting || b.Status == StatusActive
}

// Bot is any strategy bot.
type Bot interface {
	Base() *BotBase
}

// Signal is one trigger produced by an engine evaluation. The engine does
// not mutate its bot until the dispatcher confirms execution; commit
// functions apply the state change afterwards.
type Signal struct {
	Side       connector.Side
	OrderType  connector.OrderType
	LimitPrice float64 // only for limit orders
	Price      float64 // current market price at trigger time
	Size       float64 // base-quantity override, 0 = use template size
	SubKey     string  // idempotence key detail, e.g. candle color or level price
	Reason     string
	Close      bool // flatten the bot's position instead of opening
}
