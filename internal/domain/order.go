package domain

import "time"

// CascadeStage identifies which step of the placement cascade an order
// belongs to.
type CascadeStage int

const (
	StageNone    CascadeStage = iota
	StageLimit                // aggressive limit, 5% under current best
	StageReplace              // replaced to current best price
	StageCapped               // price-capped close-price order
)

func (s CascadeStage) String() string {
	switch s {
	case StageLimit:
		return "STAGE1_LIMIT"
	case StageReplace:
		return "STAGE2_REPLACE"
	case StageCapped:
		return "STAGE3_CAPPED"
	default:
		return "NOT_STARTED"
	}
}

// OrderStatus is the lifecycle status of a bet order.
type OrderStatus string

const (
	StatusUnmatched OrderStatus = "UNMATCHED"
	StatusPartial   OrderStatus = "PARTIALLY_MATCHED"
	StatusMatched   OrderStatus = "MATCHED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusFailed    OrderStatus = "FAILED"
)

// Terminal reports whether the status is a sink: the order is immutable
// once it reaches one of these.
func (s OrderStatus) Terminal() bool {
	return s == StatusMatched || s == StatusCancelled || s == StatusFailed
}

// BetOrder is one lay bet attempt on a (market, selection) pair. At most one
// non-terminal BetOrder may exist per pair; a new stage supersedes the prior
// order via replace or cancel-then-place under the same BetOrder row.
type BetOrder struct {
	ID           string // local UUID
	MarketID     string
	SelectionID  int64
	Runner       string
	Stage        CascadeStage
	Price        float64
	Stake        float64
	ExchangeRef  string // exchange order id, empty until accepted
	Status       OrderStatus
	MatchedSize  float64
	MatchedPrice float64
	PlacedAt     time.Time
	MatchedAt    *time.Time
}

// Liability is the amount at risk on a lay bet if the runner wins.
func Liability(stake, price float64) float64 {
	return stake * (price - 1)
}

// OrderType is the exchange order type.
type OrderType string

const (
	OrderLimit         OrderType = "LIMIT"
	OrderLimitOnClose  OrderType = "LIMIT_ON_CLOSE"
	OrderMarketOnClose OrderType = "MARKET_ON_CLOSE"
)

// OrderPersistence controls what the exchange does with an unmatched order
// when the market turns in-play or closes.
type OrderPersistence string

const (
	PersistLapse OrderPersistence = "LAPSE"
	PersistKeep  OrderPersistence = "PERSIST"
)

// PlaceOrderRequest is sent to the exchange trading API.
type PlaceOrderRequest struct {
	MarketID    string
	SelectionID int64
	Side        string // always "LAY" in this engine
	OrderType   OrderType
	Price       float64 // limit price, or the cap for LIMIT_ON_CLOSE
	Stake       float64
	Liability   float64 // required for close-price orders
	Persistence OrderPersistence
}

// OrderReport is the exchange's view of an order after placement or on poll.
type OrderReport struct {
	ExchangeRef  string
	Status       string // exchange status text: may lag, never authoritative
	MatchedSize  float64
	MatchedPrice float64
}

// HasMatch reports whether any part of the order matched. Matched size is
// authoritative: exchange status fields can lag behind fills.
func (r OrderReport) HasMatch() bool {
	return r.MatchedSize > 0
}

// FullyMatched reports whether the order matched for (effectively) the whole
// requested stake.
func (r OrderReport) FullyMatched(stake float64) bool {
	return r.MatchedSize >= stake*0.999
}

// CurrentOrder is one live order listed for a market, used to reconcile
// after a placement call with an unknown outcome.
type CurrentOrder struct {
	ExchangeRef  string
	SelectionID  int64
	Side         string
	Price        float64
	Stake        float64
	Status       string
	MatchedSize  float64
	MatchedPrice float64
}

// ClearedOrder is a settled bet from the exchange's cleared-orders report.
// Profit is signed: positive when the laid runner lost, negative (the
// liability) when it won.
type ClearedOrder struct {
	ExchangeRef string
	Profit      float64
	SettledAt   time.Time
}
