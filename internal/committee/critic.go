package committee

import (
	"strings"

	"github.com/marketkg/sentinel/internal/domain"
)

// Critic scores a candidate insight before it is allowed to star. The
// score is a fixed-weight heuristic, not a second LLM call: reserving the
// LLM budget for committee decisions and Dream assessments rather than
// spending it on grading the committee's own prose.
type Critic struct{}

const (
	criticBase             = 0.22
	criticConfidenceWeight = 0.48
	criticLengthBonus      = 0.10
	criticKeywordBonus     = 0.10
	criticBuyPenalty       = 0.06
	criticSellPenalty      = 0.04

	// criticOverextendedCount is the number of committed decisions (on one
	// side, with a non-zero allocation) at or above which the critic treats
	// the insight as overextended and shaves the score.
	criticOverextendedCount = 10
)

// criticReasoningKeywords are the connective words a genuine synthesis
// tends to use; their absence suggests a templated, low-substance
// explanation.
var criticReasoningKeywords = []string{"because", "however", "therefore", "driven", "while", "but", "risk"}

// Score rates an insight in [0,1]:
//
//	0.22
//	+ 0.48 * confidence
//	+ 0.10 if len(explanation) >= minLength
//	+ 0.10 if explanation contains a reasoning keyword
//	- 0.06 if 10+ BUY decisions carry a non-zero allocation
//	- 0.04 if 10+ SELL decisions carry a non-zero allocation
//
// clamped to [0,1]. The BUY/SELL penalties catch a committee that commits
// to too many names at once, which the per-cycle guard rails would trim
// anyway but which the critic should already distrust.
func (Critic) Score(decisions []domain.Decision, explanation string, confidence float64, minLength int) float64 {
	score := criticBase + criticConfidenceWeight*clamp01(confidence)

	if len(explanation) >= minLength {
		score += criticLengthBonus
	}

	lower := strings.ToLower(explanation)
	for _, kw := range criticReasoningKeywords {
		if strings.Contains(lower, kw) {
			score += criticKeywordBonus
			break
		}
	}

	buys, sells := 0, 0
	for _, d := range decisions {
		if d.AllocationPct <= 0 {
			continue
		}
		switch d.Action {
		case domain.SideBuy:
			buys++
		case domain.SideSell:
			sells++
		}
	}
	if buys >= criticOverextendedCount {
		score -= criticBuyPenalty
	}
	if sells >= criticOverextendedCount {
		score -= criticSellPenalty
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
