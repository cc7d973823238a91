// Package unimind recomputes per-pair auction decay parameters from observed
// fill behavior and serves them, guarded, at quote time.
package unimind

import (
	"encoding/json"
	"fmt"
	"math"
)

// AlgorithmVersion tags stored parameter records. A stored record with a
// different version is treated as absent and reseeded, never reused.
const AlgorithmVersion = 1

// IntrinsicValues is the controller-owned parameter vector. Lambda1 and
// Lambda2 are raw; they are sigmoid-remapped into (-1,1) before use. Sigma
// is the log-scale decay rate.
type IntrinsicValues struct {
	Lambda1 float64 `json:"lambda1"`
	Lambda2 float64 `json:"lambda2"`
	Sigma   float64 `json:"sigma"`
}

// DefaultIntrinsicValues seeds a pair on first observation.
func DefaultIntrinsicValues() IntrinsicValues {
	return IntrinsicValues{Lambda1: 0, Lambda2: 8, Sigma: math.Log(0.00005)}
}

// Encode serializes the vector for storage in a parameter record.
func (v IntrinsicValues) Encode() string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

// DecodeIntrinsicValues parses a stored vector.
func DecodeIntrinsicValues(s string) (IntrinsicValues, error) {
	var v IntrinsicValues
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return IntrinsicValues{}, fmt.Errorf("decoding intrinsic values: %w", err)
	}
	return v, nil
}

// ExtrinsicValues is the per-request context the serving path feeds in.
type ExtrinsicValues struct {
	PriceImpact float64 // AMM-quoted price impact, fraction in (0,1)
	ExactOutput bool    // requested trade direction is exact-output
}

// Sample is one terminal order's contribution to a batch. WaitTime is nil
// for unfilled orders, which the cost treats as the full auction duration.
type Sample struct {
	WaitTime    *float64
	Filled      bool
	PriceImpact float64
}

// Statistics is the derived batch input to a strategy update.
type Statistics struct {
	Samples []Sample
}

// Guardrail reason tags, machine-readable, attached to every neutral-return.
const (
	ReasonNegativeLambda2   = "negative_lambda2"
	ReasonImpactSingular    = "price_impact_singular"
	ReasonImpactLarge       = "price_impact_large"
	ReasonImpactNonpositive = "price_impact_nonpositive"
	ReasonExactOutput       = "exact_output"
)

// Strategy is the capability interface the controller and the serving path
// share. Implementations are selected once at construction by tag.
type Strategy interface {
	// Update recomputes the parameter vector from one batch. With zero
	// samples the previous vector comes back unchanged.
	Update(stats Statistics, previous IntrinsicValues) IntrinsicValues
	// ComputePi returns the price-improvement parameter, or (0, reason)
	// when a serving guardrail trips.
	ComputePi(v IntrinsicValues, e ExtrinsicValues) (float64, string)
	// ComputeTau returns the decay-duration parameter, or (0, reason).
	ComputeTau(v IntrinsicValues, e ExtrinsicValues) (float64, string)
}

// Tag names a strategy variant.
type Tag string

const TagPriceImpact Tag = "price-impact"

// NewStrategy dispatches on the tag.
func NewStrategy(tag Tag) (Strategy, error) {
	switch tag {
	case TagPriceImpact:
		return &PriceImpactStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown unimind strategy %q", tag)
	}
}
