// Package alpaca implements executor.Broker against Alpaca's trading API
// (paper or live, selected by BaseURL).
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/marketkg/sentinel/internal/executor"
)

const (
	paperBaseURL = "https://paper-api.alpaca.markets/v2"
	liveBaseURL  = "https://api.alpaca.markets/v2"
)

// Broker calls Alpaca's trading API to place market orders.
type Broker struct {
	BaseURL    string
	KeyID      string
	Secret     string
	HTTPClient *http.Client
}

// New builds a Broker. mode selects "paper" (default) or "live"; an
// explicit baseURL overrides the mode-derived default.
func New(baseURL, mode, keyID, secret string, timeoutSeconds int) *Broker {
	if baseURL == "" {
		if mode == "live" {
			baseURL = liveBaseURL
		} else {
			baseURL = paperBaseURL
		}
	}
	return &Broker{
		BaseURL:    baseURL,
		KeyID:      keyID,
		Secret:     secret,
		HTTPClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
	}
}

type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id"`
}

type orderResponse struct {
	FilledQty        string `json:"filled_qty"`
	FilledAvgPrice   string `json:"filled_avg_price"`
	Status           string `json:"status"`
}

// PlaceOrder submits a market order and reports Alpaca's fill. If
// FilledQty/FilledAvgPrice come back empty (order accepted but not yet
// filled synchronously), the requested qty/price are reported instead so
// the caller's guard-rail accounting stays consistent for this cycle. The
// real fill is not fetched later by this package or by the reconcile CLI.
func (b *Broker) PlaceOrder(ctx context.Context, order executor.OrderRequest) (executor.Fill, error) {
	body, err := json.Marshal(orderRequest{
		Symbol:        order.Symbol,
		Qty:           fmt.Sprintf("%.6f", order.Qty),
		Side:          string(order.Side),
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: order.ClientOrderID,
	})
	if err != nil {
		return executor.Fill{}, fmt.Errorf("alpaca.PlaceOrder(%s): marshal: %w", order.Symbol, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return executor.Fill{}, fmt.Errorf("alpaca.PlaceOrder(%s): build request: %w", order.Symbol, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("APCA-API-KEY-ID", b.KeyID)
	req.Header.Set("APCA-API-SECRET-KEY", b.Secret)

	resp, err := b.HTTPClient.Do(req)
	if err != nil {
		return executor.Fill{}, fmt.Errorf("alpaca.PlaceOrder(%s): request: %w", order.Symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return executor.Fill{}, fmt.Errorf("alpaca.PlaceOrder(%s): status %d", order.Symbol, resp.StatusCode)
	}

	var parsed orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return executor.Fill{}, fmt.Errorf("alpaca.PlaceOrder(%s): decode: %w", order.Symbol, err)
	}

	qty, price := order.Qty, order.Price
	if parsed.FilledQty != "" {
		fmt.Sscanf(parsed.FilledQty, "%f", &qty)
	}
	if parsed.FilledAvgPrice != "" {
		fmt.Sscanf(parsed.FilledAvgPrice, "%f", &price)
	}

	return executor.Fill{
		Symbol: order.Symbol, Side: order.Side, Qty: qty, Price: price, Notional: qty * price,
	}, nil
}
