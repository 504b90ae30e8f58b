package protocol

const (
	ActionSubscribe    = "subscribe"
	ActionUnsubscribe  = "unsubscribe"
	ActionRequestQuote = "request_quote"
)

// Server->client envelope types.
const (
	TypeQuoteUpdate     = "quoteUpdate"
	TypeMarketSnapshot  = "marketSnapshot"
	TypeVolatilityIndex = "volatilityIndex"
	TypeVolatileAlert   = "volatileAlert"
	TypeError           = "error"
)

type WSRequest struct {
	Action  string         `json:"action"`
	Payload RequestPayload `json:"payload"`
}

type RequestPayload struct {
	Symbols []string `json:"symbols,omitempty"`
	Symbol  string   `json:"symbol,omitempty"`
}

// Envelope is every server->client push: a type tag plus the payload.
// Data must not be omitempty: a volatility index of 0 is a real value.
type Envelope struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
}
