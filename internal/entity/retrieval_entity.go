package entity

import "time"

type MatchKind string

const (
	MatchKindVector  MatchKind = "vector"
	MatchKindKeyword MatchKind = "keyword"
	MatchKindBoth    MatchKind = "both"
)

type Query struct {
	Text     string
	IssuedAt time.Time
}

type RetrievedChunk struct {
	Chunk     *Chunk
	Score     float64
	MatchKind MatchKind
	// Coverage is the share of distinct query terms found in the chunk's search terms.
	Coverage float64
}

// RetrievalResult is ordered by Score descending, then PublishedAt descending, then chunk Id ascending.
type RetrievalResult []RetrievedChunk

func (r RetrievalResult) TopScore() float64 {
	if len(r) == 0 {
		return 0
	}
	return r[0].Score
}
