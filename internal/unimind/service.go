package unimind

import (
	"context"

	"go.uber.org/zap"

	"github.com/dutchbook/dutchbook/internal/model"
	"github.com/dutchbook/dutchbook/internal/repository"
	"github.com/dutchbook/dutchbook/pkg/metrics"
)

// Service is the serving-time surface: per-request parameter computation
// with guardrails, cold-pair sampling, and quote metadata recording.
type Service struct {
	strategy  Strategy
	params    *repository.UnimindParamsRepo
	quotes    repository.QuoteMetadataRepo
	supported SupportedTokens
	logger    *zap.Logger
}

func NewService(strategy Strategy, params *repository.UnimindParamsRepo, quotes repository.QuoteMetadataRepo, supported SupportedTokens, logger *zap.Logger) *Service {
	return &Service{strategy: strategy, params: params, quotes: quotes, supported: supported, logger: logger}
}

// QuoteResult is what the serving path returns for one request. Adaptive is
// false when the request was routed to static parameters; such quotes stay
// out of the feedback loop.
type QuoteResult struct {
	Pi       float64 `json:"pi"`
	Tau      float64 `json:"tau"`
	Adaptive bool    `json:"adaptive"`
}

// QuoteParameters computes the decay parameters for one request. Guardrail
// trips return neutral (0,0) and are logged with their reason tag.
func (s *Service) QuoteParameters(ctx context.Context, pair, requestID string, e ExtrinsicValues) (QuoteResult, error) {
	if !s.supported.PairSupported(pair) && !SampleColdPair(requestID) {
		return QuoteResult{}, nil
	}

	vals := DefaultIntrinsicValues()
	stored, err := s.params.GetByPair(ctx, pair, AlgorithmVersion)
	if err != nil {
		return QuoteResult{}, err
	}
	if stored != nil {
		if decoded, err := DecodeIntrinsicValues(stored.IntrinsicValues); err == nil {
			vals = decoded
		} else {
			s.logger.Warn("undecodable intrinsic values, using defaults",
				zap.String("pair", pair), zap.Error(err))
		}
	}

	pi, reason := s.strategy.ComputePi(vals, e)
	if reason != "" {
		s.tripGuardrail(pair, requestID, reason)
		return QuoteResult{Adaptive: true}, nil
	}
	tau, reason := s.strategy.ComputeTau(vals, e)
	if reason != "" {
		s.tripGuardrail(pair, requestID, reason)
		return QuoteResult{Adaptive: true}, nil
	}
	return QuoteResult{Pi: pi, Tau: tau, Adaptive: true}, nil
}

// RecordQuote persists the write-once serving-time context for later
// read-join by the controller.
func (s *Service) RecordQuote(ctx context.Context, meta *model.QuoteMetadata) error {
	return s.quotes.Put(ctx, meta)
}

func (s *Service) tripGuardrail(pair, requestID, reason string) {
	metrics.GuardrailTrips.WithLabelValues(reason).Inc()
	s.logger.Warn("unimind guardrail tripped",
		zap.String("reason", reason),
		zap.String("pair", pair),
		zap.String("request_id", requestID))
}
