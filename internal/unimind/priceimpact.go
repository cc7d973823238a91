package unimind

import "math"

// Tunables of the price-impact strategy.
const (
	// AuctionDurationBlocks is the full decay window; it is also the wait
	// time charged to unfilled orders in the batch cost.
	AuctionDurationBlocks = 16.0

	targetFillRate   = 0.96
	targetWaitBlocks = 2.0

	// LargeImpactThreshold is the serving guardrail on AMM price impact.
	LargeImpactThreshold = 0.25

	learningRateLambda1 = 0.01
	learningRateLambda2 = 0.05
	learningRateSigma   = 2.0
)

// PriceImpactStrategy derives the served decay parameters from the
// AMM-quoted price impact of the route. The promised improvement is
//
//	pi = lambda1 + remap(lambda2) * (1 + e^Sigma * ln(p) / (1 - p))
//
// with remap = tanh into (-1,1) and p the AMM price impact; the denominator
// is singular at p = 1. The decay duration is the auction window shortened
// by the promised improvement: tau = D - pi.
type PriceImpactStrategy struct{}

func remap(x float64) float64 { return math.Tanh(x) }

func (s *PriceImpactStrategy) ComputePi(v IntrinsicValues, e ExtrinsicValues) (float64, string) {
	if e.ExactOutput {
		return 0, ReasonExactOutput
	}
	l2 := remap(v.Lambda2)
	if l2 < 0 {
		return 0, ReasonNegativeLambda2
	}
	p := e.PriceImpact
	if p <= 0 {
		return 0, ReasonImpactNonpositive
	}
	if p >= 1 {
		return 0, ReasonImpactSingular
	}
	if p >= LargeImpactThreshold {
		return 0, ReasonImpactLarge
	}
	pi := v.Lambda1 + l2*(1+math.Exp(v.Sigma)*math.Log(p)/(1-p))
	return pi, ""
}

func (s *PriceImpactStrategy) ComputeTau(v IntrinsicValues, e ExtrinsicValues) (float64, string) {
	pi, reason := s.ComputePi(v, e)
	if reason != "" {
		return 0, reason
	}
	return AuctionDurationBlocks - pi, ""
}

// Update applies one gradient-descent step. Sigma moves directly with the
// batch fill-rate deviation from target. Lambda1 and Lambda2 descend the
// average gradient of the quadratic wait-time cost (w - w*)^2, taken through
// the chain wait-time -> decay duration -> price-impact-of-filler: the
// modeled wait is w = D * (1 - pi_f), so dw/dpi = -D.
func (s *PriceImpactStrategy) Update(stats Statistics, previous IntrinsicValues) IntrinsicValues {
	if len(stats.Samples) == 0 {
		return previous
	}

	filled := 0
	for _, smp := range stats.Samples {
		if smp.Filled {
			filled++
		}
	}
	fillRate := float64(filled) / float64(len(stats.Samples))

	next := previous
	next.Sigma = previous.Sigma + learningRateSigma*(targetFillRate-fillRate)

	var g1, g2 float64
	n := 0
	dRemap := 1 - math.Pow(math.Tanh(previous.Lambda2), 2)
	for _, smp := range stats.Samples {
		w := AuctionDurationBlocks
		if smp.WaitTime != nil {
			w = *smp.WaitTime
		}
		if _, reason := s.ComputePi(previous, ExtrinsicValues{PriceImpact: smp.PriceImpact}); reason != "" {
			continue
		}
		dJdPi := 2 * (w - targetWaitBlocks) * -AuctionDurationBlocks
		p := smp.PriceImpact
		dPidL2 := dRemap * (1 + math.Exp(previous.Sigma)*math.Log(p)/(1-p))
		g1 += dJdPi
		g2 += dJdPi * dPidL2
		n++
	}
	if n > 0 {
		g1 /= float64(n)
		g2 /= float64(n)
		next.Lambda1 = previous.Lambda1 - learningRateLambda1*g1
		next.Lambda2 = previous.Lambda2 - learningRateLambda2*g2
	}
	return next
}
