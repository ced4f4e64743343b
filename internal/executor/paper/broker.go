// Package paper implements executor.Broker as a pure simulation: every
// order fills instantly and fully at its reference price, with an
// in-memory ledger of accepted client order ids so a retried cycle that
// resubmits the same ClientOrderID is recognized as a duplicate rather
// than double-filled.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/marketkg/sentinel/internal/executor"
)

// Broker is the paper-trading simulation broker.
type Broker struct {
	mu   sync.Mutex
	seen map[string]executor.Fill
}

// New builds an empty paper Broker.
func New() *Broker {
	return &Broker{seen: make(map[string]executor.Fill)}
}

// PlaceOrder fills the order immediately at its reference price. A
// ClientOrderID already seen returns the original fill instead of
// re-filling, matching a real broker's idempotent order submission.
func (b *Broker) PlaceOrder(ctx context.Context, order executor.OrderRequest) (executor.Fill, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if fill, ok := b.seen[order.ClientOrderID]; ok {
		return fill, nil
	}
	if order.Qty <= 0 {
		return executor.Fill{}, fmt.Errorf("paper.PlaceOrder(%s): non-positive qty %v", order.Symbol, order.Qty)
	}

	fill := executor.Fill{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Qty:      order.Qty,
		Price:    order.Price,
		Notional: order.Qty * order.Price,
	}
	b.seen[order.ClientOrderID] = fill
	return fill, nil
}
