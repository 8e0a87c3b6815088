package domain

// EventType names the payload carried by an Event.
type EventType string

const (
	EventBook   EventType = "book"
	EventTrades EventType = "trades"
)

// Event is the envelope published on the SignalBus and pushed to dashboard
// clients.
type Event struct {
	Type EventType `json:"type"`
	Coin string    `json:"coin"`
	Seq  uint64    `json:"seq,omitempty"`
	Data any       `json:"data"`
}
