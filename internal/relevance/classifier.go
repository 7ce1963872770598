// Package relevance scores and ranks stored episodes and core
// principles against a query prompt.
package relevance

import (
	"math"

	"github.com/mnemo-ai/mnemo/internal/token"
)

// Classifier measures how strongly a prompt's tokens invoke a target's
// keys. Implementations are pluggable so retrieval breadth can change
// without touching call sites.
type Classifier interface {
	// Score returns a match confidence in [0,1] for the given
	// normalized prompt tokens against a target's invoke keys.
	Score(promptTokens, keys []string) float64
}

// NewClassifier returns the classifier for a configured strategy name.
// Unknown names fall back to the rule-based matcher.
func NewClassifier(name string) Classifier {
	if name == "similarity" {
		return SimilarityClassifier{}
	}
	return RuleClassifier{}
}

// RuleClassifier matches on exact normalized key overlap: the fraction
// of the target's invoke keys present in the prompt, dampened so a
// single shared key on a long key list still registers.
type RuleClassifier struct{}

func (RuleClassifier) Score(promptTokens, keys []string) float64 {
	if len(keys) == 0 || len(promptTokens) == 0 {
		return 0
	}
	set := make(map[string]bool, len(promptTokens))
	for _, t := range promptTokens {
		set[t] = true
	}
	hits := 0
	for _, k := range keys {
		if set[k] {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	// sqrt dampening: 1 of 9 keys scores 1/3, not 1/9.
	return math.Sqrt(float64(hits) / float64(len(keys)))
}

// SimilarityClassifier augments exact overlap with prefix affinity, so
// morphological variants ("index", "indexing") still match.
type SimilarityClassifier struct{}

func (SimilarityClassifier) Score(promptTokens, keys []string) float64 {
	if len(keys) == 0 || len(promptTokens) == 0 {
		return 0
	}
	var sum float64
	for _, k := range keys {
		best := 0.0
		for _, t := range promptTokens {
			var s float64
			switch {
			case t == k:
				s = 1.0
			case len(t) >= 5 && len(k) >= 5 && t[:5] == k[:5]:
				s = 0.6
			}
			if s > best {
				best = s
			}
		}
		sum += best
	}
	return math.Sqrt(sum / float64(len(keys)))
}

// cosine computes term-frequency cosine similarity between two texts.
func cosine(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, na, nb float64
	for t, fa := range a {
		na += float64(fa) * float64(fa)
		if fb, ok := b[t]; ok {
			dot += float64(fa) * float64(fb)
		}
	}
	for _, fb := range b {
		nb += float64(fb) * float64(fb)
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// textVector builds the term-frequency vector for a blob of text.
func textVector(texts ...string) map[string]int {
	freq := make(map[string]int)
	for _, t := range texts {
		for _, tok := range token.Tokenize(t) {
			freq[tok]++
		}
	}
	return freq
}
