// FILE: pkg/lexical/tokenizer.go
// PURPOSE: Shared Korean/English term extraction for keyword search, token budgeting and test embedders

package lexical

import (
	"sort"
	"strings"
	"unicode"
)

// particles are Korean postpositions and verb endings stripped from the tail of a word.
// Sorted longest-first at init so "에서는" wins over "는".
var particles = []string{
	"되었습니다", "했습니다", "입니다", "됩니다", "합니다", "습니다", "인가요", "하나요", "할까요",
	"에서는", "으로는", "에게서", "으로써", "이라는", "이라고", "에서도", "에게는",
	"에서", "에게", "으로", "까지", "부터", "처럼", "보다", "이나", "라는", "하고", "이며", "에는", "과의", "와의",
	"은", "는", "이", "가", "을", "를", "에", "의", "와", "과", "도", "로", "만", "요",
}

var stopWords = map[string]bool{
	// Korean
	"이": true, "그": true, "저": true, "것": true, "수": true, "등": true, "및": true, "제": true,
	"좀": true, "더": true, "또": true, "혹시": true, "어떻게": true, "무엇": true, "뭐": true,
	"있나요": true, "있습니다": true, "없나요": true, "되나요": true, "인가요": true, "하나요": true,
	"주세요": true, "해주세요": true, "알려주세요": true, "에서": true, "에게": true, "으로": true,
	// English
	"the": true, "a": true, "an": true, "is": true, "are": true, "of": true, "to": true, "in": true,
	"and": true, "or": true, "for": true, "what": true, "how": true, "my": true, "i": true, "me": true,
}

func init() {
	sort.SliceStable(particles, func(i, j int) bool {
		return len([]rune(particles[i])) > len([]rune(particles[j]))
	})
}

// Words splits text into lower-cased words on anything that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Tokenize returns normalized search terms in input order. Duplicates are kept so callers can
// count term frequency.
func Tokenize(text string) []string {
	words := Words(text)
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if stopWords[word] {
			continue
		}
		term := stripParticle(word)
		if term == "" || stopWords[term] {
			continue
		}
		terms = append(terms, term)
	}
	return terms
}

// Terms joins Tokenize output with single spaces, the form stored in chunks.search_terms.
func Terms(text string) string {
	return strings.Join(Tokenize(text), " ")
}

// UniqueTerms returns the distinct terms of text in first-seen order.
func UniqueTerms(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range Tokenize(text) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// ApproxTokens estimates the LLM token count of text. Hangul runs at about two syllables per
// token and Latin words at about four characters per token.
func ApproxTokens(text string) int {
	total := 0
	for _, word := range strings.Fields(text) {
		hangul, other := 0, 0
		for _, r := range word {
			switch {
			case unicode.Is(unicode.Hangul, r):
				hangul++
			case unicode.IsLetter(r) || unicode.IsDigit(r):
				other++
			}
		}
		n := (hangul+1)/2 + (other+3)/4
		if n == 0 {
			n = 1
		}
		total += n
	}
	return total
}

func stripParticle(word string) string {
	if !containsHangul(word) {
		return word
	}
	runes := []rune(word)
	for _, p := range particles {
		pr := []rune(p)
		if len(runes)-len(pr) < 2 {
			continue
		}
		if strings.HasSuffix(word, p) {
			return string(runes[:len(runes)-len(pr)])
		}
	}
	return word
}

func containsHangul(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}
