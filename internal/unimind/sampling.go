package unimind

import (
	"hash/fnv"
	"strings"
)

// adaptiveSamplePercent of cold-pair requests enter the adaptive path; the
// rest get static parameters and stay out of the feedback loop.
const adaptiveSamplePercent = 66

// SampleColdPair decides, deterministically per request id, whether a pair
// outside the supported-token list is eligible for the adaptive path.
func SampleColdPair(requestID string) bool {
	h := fnv.New32a()
	h.Write([]byte(requestID))
	return h.Sum32()%100 < adaptiveSamplePercent
}

// SupportedTokens is the curated token set; a pair is warm when both legs
// are in it.
type SupportedTokens map[string]bool

// NewSupportedTokens normalizes a configured token list.
func NewSupportedTokens(tokens []string) SupportedTokens {
	m := make(SupportedTokens, len(tokens))
	for _, t := range tokens {
		m[strings.ToUpper(strings.TrimSpace(t))] = true
	}
	return m
}

// PairSupported reports whether both legs of "BASE/QUOTE" are curated.
func (s SupportedTokens) PairSupported(pair string) bool {
	legs := strings.SplitN(pair, "/", 2)
	if len(legs) != 2 {
		return false
	}
	return s[strings.ToUpper(legs[0])] && s[strings.ToUpper(legs[1])]
}
