package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is an advisory market price for an asset pair. Quotes are shown to
// clients and cached briefly; they are not settlement inputs, since
// submissions carry the price observed at trade time.
type Quote struct {
	Pair   string          `json:"pair"`
	Price  decimal.Decimal `json:"price"`
	Source string          `json:"source"`
	At     time.Time       `json:"at"`
}
