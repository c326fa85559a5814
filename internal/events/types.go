package events

// Event enumerates high-level topics inside the bot core.
type Event string

const (
	EventPriceTick    Event = "price.tick"
	EventCandleClosed Event = "candle.closed"
	EventOrderCreated Event = "order.created"
	EventOrderFilled  Event = "order.filled"
	EventOrderClosed  Event = "order.closed"
	EventBotError     Event = "bot.error"
	EventBotTriggered Event = "bot.triggered"
)

// BotTrigger is the payload published on EventBotTriggered.
type BotTrigger struct {
	BotID  string `json:"botId"`
	Family string `json:"family"`
	Pair   string `json:"pair"`
	Side   string `json:"side,omitempty"`
	Close  bool   `json:"close,omitempty"`
	Reason string `json:"reason"`
}

// BotError is the payload published on EventBotError. Every failed execution
// is attributable to exactly one bot and one reason.
type BotError struct {
	BotID  string `json:"botId,omitempty"`
	Family string `json:"family,omitempty"`
	Reason string `json:"reason"`
}
