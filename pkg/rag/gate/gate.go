package gate

import "oncare-chatbot-be/internal/entity"

const (
	DefaultMinFusedScore      = 0.25
	DefaultMinKeywordCoverage = 0.5
)

// ConfidenceGate decides whether a retrieval result is strong enough to answer from.
//
// Fused scores are relative to the lists they came from, so the top chunk also needs absolute
// evidence: a vector match (which already cleared the similarity floor) or keyword coverage of
// at least minCoverage of the query terms.
type ConfidenceGate struct {
	minScore    float64
	minCoverage float64
}

func NewConfidenceGate(minScore, minCoverage float64) *ConfidenceGate {
	if minScore <= 0 {
		minScore = DefaultMinFusedScore
	}
	if minCoverage <= 0 {
		minCoverage = DefaultMinKeywordCoverage
	}
	return &ConfidenceGate{minScore: minScore, minCoverage: minCoverage}
}

// Evaluate is true only for a non-empty result whose top chunk reaches the score threshold and
// is corroborated.
func (g *ConfidenceGate) Evaluate(result entity.RetrievalResult) bool {
	if len(result) == 0 || result.TopScore() < g.minScore {
		return false
	}
	top := result[0]
	if top.MatchKind == entity.MatchKindVector || top.MatchKind == entity.MatchKindBoth {
		return true
	}
	return top.Coverage >= g.minCoverage
}

func (g *ConfidenceGate) MinScore() float64 {
	return g.minScore
}

func (g *ConfidenceGate) MinCoverage() float64 {
	return g.minCoverage
}
