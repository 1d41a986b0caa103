package stub

import (
	"regexp"
	"strings"
)

var punctuationRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// Relevance weights
const (
	queryCoverageWeight = 0.60 // fraction of query tokens found in the document
	docCoverageWeight   = 0.20 // fraction of document tokens found in the query
	jaccardWeight       = 0.20
	fuzzyWeightFactor   = 0.8 // fuzzy token hits count 80% of exact ones
	substringBonus      = 0.10
	fuzzyEditDistance   = 1
)

var stopWords = map[string]bool{
	// English
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true, "in": true,
	"on": true, "for": true, "with": true, "to": true, "by": true, "from": true,
	// French
	"le": true, "la": true, "les": true, "un": true, "une": true, "des": true, "de": true,
	"du": true, "et": true, "pour": true, "avec": true, "en": true,
	// Shopping noise
	"buy": true, "cheap": true, "best": true, "new": true, "sale": true, "online": true,
	"pas": true, "cher": true, "acheter": true,
}

// tokenize lowercases s, strips punctuation, and drops stop words, single characters and pure numbers
func tokenize(s string) []string {
	cleaned := punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")

	var tokens []string
	for _, word := range strings.Fields(cleaned) {
		if len([]rune(word)) <= 1 || stopWords[word] || isNumeric(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// relevance scores how well document answers query, in [0, 1.1].
// Exact token hits count fully; near-misses within one edit count fuzzyWeightFactor.
func relevance(query, document string) float64 {
	queryTokens := tokenize(query)
	docTokens := tokenize(document)
	if len(queryTokens) == 0 || len(docTokens) == 0 {
		return 0
	}

	queryHits := coverage(queryTokens, docTokens)
	docHits := coverage(docTokens, queryTokens)
	union := unionSize(queryTokens, docTokens)

	score := queryHits/float64(len(queryTokens))*queryCoverageWeight +
		docHits/float64(len(docTokens))*docCoverageWeight +
		queryHits/float64(union)*jaccardWeight

	q := strings.Join(queryTokens, " ")
	if len(q) > 3 && strings.Contains(strings.Join(docTokens, " "), q) {
		score += substringBonus
	}
	return score
}

// coverage counts tokens of a present in b, fuzzy hits weighted down
func coverage(a, b []string) float64 {
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}

	var hits float64
	seen := make(map[string]bool, len(a))
	for _, t := range a {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			hits++
			continue
		}
		for _, candidate := range b {
			if fuzzyTokenMatch(t, candidate, fuzzyEditDistance) {
				hits += fuzzyWeightFactor
				break
			}
		}
	}
	return hits
}

func unionSize(a, b []string) int {
	set := make(map[string]bool, len(a)+len(b))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		set[t] = true
	}
	return len(set)
}

// fuzzyTokenMatch reports whether two tokens of four or more characters are within threshold edits
func fuzzyTokenMatch(a, b string, threshold int) bool {
	if a == b {
		return true
	}
	if len(a) < 4 || len(b) < 4 {
		return false
	}
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if diff > threshold {
		return false
	}
	return levenshteinDistance(a, b) <= threshold
}

func levenshteinDistance(s1, s2 string) int {
	r1, r2 := []rune(s1), []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}
