package store

import (
	"regexp"
	"strings"
)

// tokenRegex matches alphanumeric sequences. Punctuation in figures
// ("1,234.56") and fiscal periods ("2025-Q2") acts as a separator, so both
// sides remain searchable terms.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// quarterRegex matches a bare quarter token like "q2".
var quarterRegex = regexp.MustCompile(`^q[1-4]$`)

// TokenizeFinance splits text with finance-aware rules.
// All tokens are lowercased. Short tokens are dropped except quarter markers
// ("q1".."q4") and numbers, which carry signal in financial documents.
func TokenizeFinance(text string) []string {
	var tokens []string

	words := tokenRegex.FindAllString(text, -1)
	for _, word := range words {
		lower := strings.ToLower(word)
		if keepToken(lower) {
			tokens = append(tokens, lower)
		}
	}

	return tokens
}

// keepToken reports whether a lowercased token should be indexed.
func keepToken(token string) bool {
	if token == "" {
		return false
	}
	if isNumeric(token) {
		return true
	}
	if quarterRegex.MatchString(token) {
		return true
	}
	return len(token) >= 2
}

// isNumeric reports whether the token is all digits.
func isNumeric(token string) bool {
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(token) > 0
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a map for efficient lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
