// Package token normalizes and tokenizes conversational text for
// indexing and retrieval. Both the indexer and the relevance engine go
// through these functions so invoke keys and prompt tokens always live
// in the same namespace.
package token

import (
	"sort"
	"strings"
	"unicode"
)

// stopwords are excluded from keywords and overlap scoring.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "about": true, "from": true, "by": true, "as": true,
	"it": true, "its": true, "this": true, "that": true, "these": true, "those": true,
	"i": true, "me": true, "my": true, "you": true, "your": true, "we": true,
	"they": true, "them": true, "he": true, "she": true, "his": true, "her": true,
	"do": true, "does": true, "did": true, "have": true, "has": true, "had": true,
	"will": true, "would": true, "can": true, "could": true, "should": true,
	"not": true, "no": true, "yes": true, "so": true, "if": true, "then": true,
	"what": true, "how": true, "when": true, "where": true, "why": true, "who": true,
	"just": true, "like": true, "get": true, "got": true, "there": true,
	"user": true, "assistant": true, "system": true,
}

// Normalize canonicalizes a single token or topic string: lowercase,
// trimmed of surrounding punctuation.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Tokenize splits text into normalized tokens, stopwords and
// single-character fragments removed.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-' && r != '_'
	})

	var out []string
	for _, f := range fields {
		t := Normalize(f)
		if len(t) < 2 || stopwords[t] {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Frequencies returns the token frequency map of text.
func Frequencies(text string) map[string]int {
	freq := make(map[string]int)
	for _, t := range Tokenize(text) {
		freq[t]++
	}
	return freq
}

// Keywords returns the n most frequent tokens of text, ordered by
// descending frequency with alphabetical tie-break so identical input
// always yields identical output.
func Keywords(text string, n int) []string {
	freq := Frequencies(text)

	keys := make([]string, 0, len(freq))
	for k := range freq {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if freq[keys[i]] != freq[keys[j]] {
			return freq[keys[i]] > freq[keys[j]]
		}
		return keys[i] < keys[j]
	})

	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// Unique returns the sorted set union of the given normalized strings,
// empties removed.
func Unique(groups ...[]string) []string {
	set := make(map[string]bool)
	for _, g := range groups {
		for _, s := range g {
			if t := Normalize(s); t != "" {
				set[t] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
