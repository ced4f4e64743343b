// Package yahoo implements fetch.PriceProvider against Yahoo Finance's
// public chart endpoint. The parallel-array chart payload can carry a null
// at a given index for a halted or thinly-traded bar: a bar with a null
// close is dropped rather than failing the whole fetch, and a null volume
// leaves the last non-null volume in place.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/marketkg/sentinel/internal/domain"
	"github.com/marketkg/sentinel/internal/market/fetch/cache"
)

const chartURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// Provider fetches daily close-price history from Yahoo Finance's chart
// API, caching each symbol's bar for a configurable TTL.
type Provider struct {
	HTTPClient *http.Client
	RangeDays  int
	cache      *cache.TTL[string, domain.PriceBar]
}

// New builds a Provider. timeoutSeconds bounds each HTTP call;
// cacheSeconds bounds how long a fetched bar is reused before refetching.
func New(timeoutSeconds, rangeDays, cacheSeconds int) *Provider {
	return &Provider{
		HTTPClient: &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		RangeDays:  rangeDays,
		cache:      cache.New[string, domain.PriceBar](time.Duration(cacheSeconds) * time.Second),
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error any `json:"error"`
	} `json:"chart"`
}

// Fetch returns symbol's recent close-price history, using the cache when
// a fresh-enough bar is already on hand.
func (p *Provider) Fetch(ctx context.Context, symbol string) (domain.PriceBar, error) {
	if bar, ok := p.cache.Get(symbol); ok {
		return bar, nil
	}

	rangeStr := fmt.Sprintf("%dd", p.RangeDays)
	u := chartURL + url.PathEscape(symbol) + "?interval=1d&range=" + rangeStr

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("yahoo.Fetch(%s): build request: %w", symbol, err)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("yahoo.Fetch(%s): request: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.PriceBar{}, fmt.Errorf("yahoo.Fetch(%s): status %d", symbol, resp.StatusCode)
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.PriceBar{}, fmt.Errorf("yahoo.Fetch(%s): decode: %w", symbol, err)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return domain.PriceBar{}, fmt.Errorf("yahoo.Fetch(%s): empty chart result", symbol)
	}

	quote := parsed.Chart.Result[0].Indicators.Quote[0]
	history := parseCandles(quote.Close)
	if len(history) < 2 {
		return domain.PriceBar{}, fmt.Errorf("yahoo.Fetch(%s): fewer than 2 usable closes", symbol)
	}

	var volume float64
	for i := len(quote.Volume) - 1; i >= 0; i-- {
		if quote.Volume[i] != nil {
			volume = *quote.Volume[i]
			break
		}
	}

	current := history[len(history)-1]
	previous := history[len(history)-2]
	bar := domain.PriceBar{
		Symbol:    symbol,
		Current:   current,
		Previous:  previous,
		ChangePct: changePct(current, previous),
		History:   history,
		Volume:    volume,
	}
	p.cache.Set(symbol, bar)
	return bar, nil
}

// parseCandles drops any index where close is null, tolerating a null in
// any position of the parallel close array rather than failing the whole
// bar.
func parseCandles(closes []*float64) []float64 {
	out := make([]float64, 0, len(closes))
	for _, c := range closes {
		if c == nil {
			continue
		}
		out = append(out, *c)
	}
	return out
}

func changePct(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current/previous - 1) * 100
}
