// FILE: pkg/chunker/chunker.go
// PURPOSE: Split cleaned documents into self-contained retrieval units with provenance

package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/pkg/apperror"
	"oncare-chatbot-be/pkg/hashing"
	"oncare-chatbot-be/pkg/lexical"
)

const (
	DefaultMinTokens = 150
	DefaultMaxTokens = 400
)

var (
	paragraphSplitter = regexp.MustCompile(`\n\s*\n`)
	sentenceSplitter  = regexp.MustCompile(`[^.!?。\n]+(?:[.!?。]+|\n|$)`)
	headingPattern    = regexp.MustCompile(`^(#{1,6}\s|\d+\.\s|[■▶◆●]\s?|Q[.:]\s?)`)
	timestampPattern  = regexp.MustCompile(`^\[?((?:\d{1,2}:)?\d{1,2}:\d{2})\]?\s*`)
)

// Chunker splits documents at paragraph and topic boundaries inside a token band.
type Chunker struct {
	minTokens int
	maxTokens int
	countFn   func(string) int
}

type Option func(*Chunker)

// WithTokenBand sets the target [min, max] token range of a chunk.
func WithTokenBand(min, max int) Option {
	return func(c *Chunker) {
		if min > 0 {
			c.minTokens = min
		}
		if max > 0 {
			c.maxTokens = max
		}
	}
}

// WithTokenCounter overrides lexical.ApproxTokens.
func WithTokenCounter(fn func(string) int) Option {
	return func(c *Chunker) {
		if fn != nil {
			c.countFn = fn
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		minTokens: DefaultMinTokens,
		maxTokens: DefaultMaxTokens,
		countFn:   lexical.ApproxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.minTokens > c.maxTokens {
		c.minTokens = c.maxTokens
	}
	return c
}

// unit is an atomic piece of text the packer never splits further.
type unit struct {
	text      string
	tokens    int
	heading   bool
	timestamp string
}

// Chunk splits doc.RawText into ordered chunks. Identical input always yields identical
// positions and content hashes. Duplicate chunk text inside one document is dropped.
func (c *Chunker) Chunk(doc *entity.Document) ([]*entity.Chunk, error) {
	if doc == nil {
		return nil, apperror.ErrInvalidInput.Wrap(fmt.Errorf("nil document"))
	}
	if strings.TrimSpace(doc.SourceURL) == "" || strings.TrimSpace(doc.Title) == "" {
		return nil, apperror.ErrMalformedChunk.
			WithDetail("document_id", doc.Id.String()).
			WithDetail("source_url", doc.SourceURL)
	}

	units := c.split(doc.RawText)
	groups := c.pack(units)

	seen := make(map[string]bool, len(groups))
	chunks := make([]*entity.Chunk, 0, len(groups))
	for _, g := range groups {
		text := joinUnits(g)
		if text == "" {
			continue
		}
		hash := hashing.SumString(text)
		if seen[hash] {
			continue
		}
		seen[hash] = true

		chunks = append(chunks, &entity.Chunk{
			DocumentId:  doc.Id,
			Text:        text,
			Position:    len(chunks),
			TokenCount:  c.countFn(text),
			ContentHash: hash,
			SearchTerms: lexical.Terms(doc.Title + "\n" + text),
			PublishedAt: doc.PublishedAt,
			Metadata: entity.ChunkMetadata{
				SourceURL:      doc.SourceURL,
				Title:          doc.Title,
				SourceType:     doc.SourceType,
				Category:       doc.Category,
				TimestampRange: timestampRange(g),
			},
		})
	}
	return chunks, nil
}

// EmbeddingInput is the text sent to the embedder for a chunk: a provenance header then the body.
func EmbeddingInput(chunk *entity.Chunk) string {
	return fmt.Sprintf("이 내용은 '%s'에서 추출되었습니다.\n%s", chunk.Metadata.Title, chunk.Text)
}

// Validate rejects chunks that cannot be traced back to a source.
func Validate(chunk *entity.Chunk) error {
	if chunk == nil || !chunk.HasProvenance() {
		pos := -1
		if chunk != nil {
			pos = chunk.Position
		}
		return apperror.ErrMalformedChunk.WithDetail("position", pos)
	}
	return nil
}

// split turns raw text into paragraph units, breaking oversized paragraphs at sentence boundaries.
func (c *Chunker) split(raw string) []unit {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var units []unit
	for _, para := range paragraphSplitter.Split(raw, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		ts := ""
		if m := timestampPattern.FindStringSubmatch(para); m != nil {
			ts = m[1]
		}
		tokens := c.countFn(para)
		if tokens <= c.maxTokens {
			units = append(units, unit{text: para, tokens: tokens, heading: headingPattern.MatchString(para), timestamp: ts})
			continue
		}
		for i, s := range c.splitSentences(para) {
			u := unit{text: s, tokens: c.countFn(s)}
			if i == 0 {
				u.heading = headingPattern.MatchString(para)
				u.timestamp = ts
			} else if m := timestampPattern.FindStringSubmatch(s); m != nil {
				u.timestamp = m[1]
			}
			units = append(units, u)
		}
	}
	return units
}

// splitSentences groups sentences of an oversized paragraph so that no piece exceeds maxTokens.
// A single sentence longer than maxTokens is cut at word boundaries.
func (c *Chunker) splitSentences(para string) []string {
	sentences := sentenceSplitter.FindAllString(para, -1)
	var pieces []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			pieces = append(pieces, s)
		}
		current.Reset()
		currentTokens = 0
	}

	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n := c.countFn(s)
		if n > c.maxTokens {
			flush()
			pieces = append(pieces, c.splitWords(s)...)
			continue
		}
		if currentTokens+n > c.maxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(s)
		currentTokens += n
	}
	flush()
	return pieces
}

func (c *Chunker) splitWords(sentence string) []string {
	var pieces []string
	var words []string
	for _, w := range strings.Fields(sentence) {
		candidate := append(words, w)
		if len(words) > 0 && c.countFn(strings.Join(candidate, " ")) > c.maxTokens {
			pieces = append(pieces, strings.Join(words, " "))
			words = []string{w}
			continue
		}
		words = candidate
	}
	if len(words) > 0 {
		pieces = append(pieces, strings.Join(words, " "))
	}
	return pieces
}

// pack greedily groups units into chunks. A heading starts a new chunk once the current one has
// reached minTokens. An undersized trailing group is merged into its predecessor.
func (c *Chunker) pack(units []unit) [][]unit {
	var groups [][]unit
	var current []unit
	currentTokens := 0

	for _, u := range units {
		topicShift := u.heading && currentTokens >= c.minTokens
		if len(current) > 0 && (currentTokens+u.tokens > c.maxTokens || topicShift) {
			groups = append(groups, current)
			current = nil
			currentTokens = 0
		}
		current = append(current, u)
		currentTokens += u.tokens
	}
	if len(current) > 0 {
		if currentTokens < c.minTokens && len(groups) > 0 {
			groups[len(groups)-1] = append(groups[len(groups)-1], current...)
		} else {
			groups = append(groups, current)
		}
	}
	return groups
}

func joinUnits(units []unit) string {
	parts := make([]string, 0, len(units))
	for _, u := range units {
		parts = append(parts, u.text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n"))
}

func timestampRange(units []unit) string {
	first, last := "", ""
	for _, u := range units {
		if u.timestamp == "" {
			continue
		}
		if first == "" {
			first = u.timestamp
		}
		last = u.timestamp
	}
	if first == "" {
		return ""
	}
	if first == last {
		return first
	}
	return first + "-" + last
}
