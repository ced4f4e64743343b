// Package signals computes the per-investible technical indicators and
// macro regime signals used by the Think worker and the committee. Every
// function here is pure: given the same price history it always returns
// the same numbers, which keeps this package trivially table-testable and
// keeps the Market worker free to retry fetches without recomputing
// anything speculative.
package signals

import (
	"math"

	"github.com/marketkg/sentinel/internal/domain"
)

// MinHistoryForIndicators is the minimum number of closes (current bar
// plus 20 lookback bars) required before any indicator is computed from
// real data; below it every field is zero except RSI, which defaults to
// the neutral 50.
const MinHistoryForIndicators = 21

// Indicators computes momentum, volatility, z-score, and RSI from a
// close-price history ordered oldest-first, the last element being the
// current close. With fewer than MinHistoryForIndicators closes every
// field is zero and RSI is 50 (neutral), per the documented edge case for
// thin histories (e.g. a newly listed instrument).
func Indicators(closes []float64) domain.Indicators {
	n := len(closes)
	if n < MinHistoryForIndicators {
		return domain.Indicators{RSI: 50}
	}

	last := closes[n-1]
	window := closes[n-MinHistoryForIndicators : n] // 21 bars: 20 lookback + current

	mom5 := 0.0
	if n >= 6 {
		mom5 = last/closes[n-6] - 1
	}
	mom20 := last/window[0] - 1

	mean, stddev := meanStddev(window)
	volatility := stddev
	zscore := 0.0
	if stddev > 0 {
		zscore = (last - mean) / stddev
	}

	return domain.Indicators{
		Mom5:       mom5,
		Mom20:      mom20,
		Volatility: volatility,
		ZScore:     zscore,
		RSI:        simpleRSI(window),
	}
}

func meanStddev(xs []float64) (mean, stddev float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean = sum / n

	variance := 0.0
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= n
	return mean, math.Sqrt(variance)
}

// simpleRSI computes RSI using a plain arithmetic mean of gains and losses
// over the window rather than Wilder's exponential smoothing. This is an
// intentional simplification: Wilder smoothing needs a running state
// carried call to call, which would make this package no longer a pure
// function of the input window.
func simpleRSI(window []float64) float64 {
	var gainSum, lossSum float64
	periods := 0
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
		periods++
	}
	if periods == 0 || (gainSum == 0 && lossSum == 0) {
		return 50
	}
	avgGain := gainSum / float64(periods)
	avgLoss := lossSum / float64(periods)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// clamp01 bounds a signal to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// BellwetherChange is one bellwether's percent change, keyed by symbol as
// carried in the snapshot's bells_json.
type BellwetherChange struct {
	Symbol    string
	ChangePct float64
}

// lookup returns the change for symbol, or (0, false) if absent — a
// missing bellwether input contributes 0 to every signal that reads it,
// it never errors the whole computation.
func lookup(changes []BellwetherChange, symbol string) (float64, bool) {
	for _, c := range changes {
		if c.Symbol == symbol {
			return c.ChangePct, true
		}
	}
	return 0, false
}

// Signals derives the four macro regime signals from bellwether percent
// changes. Each formula reads only the bellwethers it cares about; any
// bellwether missing from the snapshot is treated as zero change rather
// than failing the computation, since the universe's bellwether set is
// configurable and a thin deployment may not fetch all of them.
//
//   - risk_off:   VIX up and SPY/QQQ down — proxies a broad risk-off day.
//   - rates_up:   ^TNX (10y yield proxy) up sharply.
//   - oil_shock:  CL=F (crude future) up sharply.
//   - semi_pulse: a semiconductor bellwether move, magnitude either way.
func Signals(changes []BellwetherChange) domain.Signals {
	vix, _ := lookup(changes, "^VIX")
	spy, _ := lookup(changes, "SPY")
	qqq, _ := lookup(changes, "QQQ")
	tnx, _ := lookup(changes, "^TNX")
	oil, _ := lookup(changes, "CL=F")
	semi, _ := lookup(changes, "SMH")

	riskOff := clamp01(0.5*posPart(vix/5) + 0.25*posPart(-spy/2) + 0.25*posPart(-qqq/2))
	ratesUp := clamp01(posPart(tnx / 3))
	oilShock := clamp01(posPart(oil / 4))
	semiPulse := clamp01(math.Abs(semi) / 3)

	return domain.Signals{RiskOff: riskOff, RatesUp: ratesUp, OilShock: oilShock, SemiPulse: semiPulse}
}

func posPart(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
