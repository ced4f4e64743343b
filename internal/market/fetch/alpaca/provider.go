// Package alpaca implements fetch.PriceProvider against Alpaca's market
// data bars endpoint, for deployments that already hold an Alpaca broker
// account and would rather not also depend on Yahoo's unofficial endpoint.
package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/marketkg/sentinel/internal/domain"
)

const defaultDataURL = "https://data.alpaca.markets/v2"

// Provider fetches daily bars from Alpaca's market data API.
type Provider struct {
	BaseURL    string
	KeyID      string
	Secret     string
	Lookback   int
	HTTPClient *http.Client
}

// New builds a Provider. An empty baseURL defaults to Alpaca's production
// data API host.
func New(baseURL, keyID, secret string, lookbackDays, timeoutSeconds int) *Provider {
	if baseURL == "" {
		baseURL = defaultDataURL
	}
	return &Provider{
		BaseURL:    baseURL,
		KeyID:      keyID,
		Secret:     secret,
		Lookback:   lookbackDays,
		HTTPClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
	}
}

type barsResponse struct {
	Bars []struct {
		Close  float64 `json:"c"`
		Volume float64 `json:"v"`
	} `json:"bars"`
}

// Fetch returns symbol's recent daily close-price history.
func (p *Provider) Fetch(ctx context.Context, symbol string) (domain.PriceBar, error) {
	start := time.Now().AddDate(0, 0, -p.Lookback).Format("2006-01-02")
	u := fmt.Sprintf("%s/stocks/%s/bars?timeframe=1Day&start=%s", p.BaseURL, symbol, start)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("alpaca.Fetch(%s): build request: %w", symbol, err)
	}
	req.Header.Set("APCA-API-KEY-ID", p.KeyID)
	req.Header.Set("APCA-API-SECRET-KEY", p.Secret)

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("alpaca.Fetch(%s): request: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.PriceBar{}, fmt.Errorf("alpaca.Fetch(%s): status %d", symbol, resp.StatusCode)
	}

	var parsed barsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.PriceBar{}, fmt.Errorf("alpaca.Fetch(%s): decode: %w", symbol, err)
	}
	if len(parsed.Bars) < 2 {
		return domain.PriceBar{}, fmt.Errorf("alpaca.Fetch(%s): fewer than 2 bars", symbol)
	}

	history := make([]float64, len(parsed.Bars))
	for i, b := range parsed.Bars {
		history[i] = b.Close
	}
	current := history[len(history)-1]
	previous := history[len(history)-2]
	volume := parsed.Bars[len(parsed.Bars)-1].Volume

	changePct := 0.0
	if previous != 0 {
		changePct = (current/previous - 1) * 100
	}

	return domain.PriceBar{
		Symbol:    symbol,
		Current:   current,
		Previous:  previous,
		ChangePct: changePct,
		History:   history,
		Volume:    volume,
	}, nil
}
