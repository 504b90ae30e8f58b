package models

// Quote is the current market snapshot for one symbol.
// Prices are integer KRW; ChangeRate is a percentage rounded to 2 decimals.
type Quote struct {
	Symbol     string  `json:"symbol"`
	Name       string  `json:"name"`
	Price      int64   `json:"price"`
	Change     int64   `json:"change"`
	ChangeRate float64 `json:"changeRate"`
	Volume     int64   `json:"volume"`
	MarketCap  int64   `json:"marketCap"`
	Timestamp  int64   `json:"timestamp"` // unix milli
}

// TickEnvelope wraps a Quote for the Kafka export feed.
// Seq is monotonic per symbol so consumers can deduplicate replays.
type TickEnvelope struct {
	Seq   int64 `json:"seq"`
	Quote Quote `json:"quote"`
}
