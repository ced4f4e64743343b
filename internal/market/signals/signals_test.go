package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndicatorsBelowMinHistoryReturnsNeutral(t *testing.T) {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 100
	}
	ind := Indicators(closes)
	assert.Zero(t, ind.Mom5)
	assert.Zero(t, ind.Mom20)
	assert.Zero(t, ind.Volatility)
	assert.Zero(t, ind.ZScore)
	assert.Equal(t, 50.0, ind.RSI)
}

func TestIndicatorsFlatSeriesIsZeroVolNeutralRSI(t *testing.T) {
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100
	}
	ind := Indicators(closes)
	assert.Zero(t, ind.Mom5)
	assert.Zero(t, ind.Mom20)
	assert.Zero(t, ind.Volatility)
	assert.Zero(t, ind.ZScore)
	assert.Equal(t, 50.0, ind.RSI)
}

func TestIndicatorsUptrendHasPositiveMomentumAndHighRSI(t *testing.T) {
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	ind := Indicators(closes)
	assert.Greater(t, ind.Mom5, 0.0)
	assert.Greater(t, ind.Mom20, 0.0)
	assert.Greater(t, ind.ZScore, 0.0)
	assert.Greater(t, ind.RSI, 50.0)
}

func TestIndicatorsDowntrendHasLowRSI(t *testing.T) {
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 121 - float64(i)
	}
	ind := Indicators(closes)
	assert.Less(t, ind.Mom5, 0.0)
	assert.Less(t, ind.RSI, 50.0)
}

func TestSignalsMissingBellwetherContributesZero(t *testing.T) {
	s := Signals(nil)
	assert.Zero(t, s.RiskOff)
	assert.Zero(t, s.RatesUp)
	assert.Zero(t, s.OilShock)
	assert.Zero(t, s.SemiPulse)
}

func TestSignalsRiskOffRisesWithVixUpAndSpyDown(t *testing.T) {
	s := Signals([]BellwetherChange{
		{Symbol: "^VIX", ChangePct: 8},
		{Symbol: "SPY", ChangePct: -2},
		{Symbol: "QQQ", ChangePct: -3},
	})
	assert.Greater(t, s.RiskOff, 0.5)
	assert.LessOrEqual(t, s.RiskOff, 1.0)
}

func TestSignalsClampToUnitInterval(t *testing.T) {
	s := Signals([]BellwetherChange{
		{Symbol: "^VIX", ChangePct: 1000},
		{Symbol: "^TNX", ChangePct: 1000},
		{Symbol: "CL=F", ChangePct: 1000},
		{Symbol: "SMH", ChangePct: -1000},
	})
	assert.Equal(t, 1.0, s.RiskOff)
	assert.Equal(t, 1.0, s.RatesUp)
	assert.Equal(t, 1.0, s.OilShock)
	assert.Equal(t, 1.0, s.SemiPulse)
}
