// Package executor turns committee decisions into guarded trades: it
// enforces SELL-before-BUY ordering and equity/cash/concentration caps,
// then routes the surviving orders to a Broker.
package executor

import (
	"context"

	"github.com/marketkg/sentinel/internal/domain"
)

// OrderRequest is one guard-rail-approved order ready to route to a
// Broker.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          domain.Side
	Qty           float64
	Price         float64 // limit/reference price; paper fills at this price
}

// Fill is what a Broker reports back after attempting an order.
type Fill struct {
	Symbol   string
	Side     domain.Side
	Qty      float64
	Price    float64
	Notional float64
}

// Broker places one order and reports its fill (or an error if it could
// not be placed/filled). Implementations: internal/executor/paper
// (simulated, always fills at the reference price) and
// internal/executor/alpaca (a real brokerage).
type Broker interface {
	PlaceOrder(ctx context.Context, order OrderRequest) (Fill, error)
}
