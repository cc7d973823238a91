package unimind

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dutchbook/dutchbook/internal/model"
	"github.com/dutchbook/dutchbook/internal/repository"
	"github.com/dutchbook/dutchbook/internal/store"
)

func newService(t *testing.T) (*Service, *repository.UnimindParamsRepo, *fakeQuotes) {
	t.Helper()
	st, err := store.OpenInMemory(zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	params := repository.NewUnimindParamsRepo(st, zaptest.NewLogger(t))
	quotes := newFakeQuotes()
	supported := NewSupportedTokens([]string{"WETH", "USDC"})
	svc := NewService(&PriceImpactStrategy{}, params, quotes, supported, zaptest.NewLogger(t))
	return svc, params, quotes
}

func TestQuoteParametersColdPairUnsampled(t *testing.T) {
	svc, _, _ := newService(t)
	// "req-2" hashes outside the sampling band; the cold pair gets the
	// static path.
	res, err := svc.QuoteParameters(context.Background(), "FOO/BAR", "req-2", ExtrinsicValues{PriceImpact: 0.01})
	require.NoError(t, err)
	assert.False(t, res.Adaptive)
	assert.Zero(t, res.Pi)
	assert.Zero(t, res.Tau)
}

func TestQuoteParametersColdPairSampled(t *testing.T) {
	svc, _, _ := newService(t)
	res, err := svc.QuoteParameters(context.Background(), "FOO/BAR", "req-1", ExtrinsicValues{PriceImpact: 0.01})
	require.NoError(t, err)
	assert.True(t, res.Adaptive)
	assert.InDelta(t, 0.999764, res.Pi, 1e-5)
}

func TestQuoteParametersWarmPairDefaults(t *testing.T) {
	svc, _, _ := newService(t)
	// Warm pairs never consult sampling; no stored record means defaults.
	res, err := svc.QuoteParameters(context.Background(), "WETH/USDC", "req-2", ExtrinsicValues{PriceImpact: 0.01})
	require.NoError(t, err)
	assert.True(t, res.Adaptive)
	assert.InDelta(t, 0.999764, res.Pi, 1e-5)
	assert.InDelta(t, 15.000236, res.Tau, 1e-5)
}

func TestQuoteParametersUsesStoredVector(t *testing.T) {
	svc, params, _ := newService(t)
	stored := IntrinsicValues{Lambda1: 0.5, Lambda2: 8, Sigma: DefaultIntrinsicValues().Sigma}
	require.NoError(t, params.Put(context.Background(), &model.UnimindParameters{
		Pair:            "WETH/USDC",
		IntrinsicValues: stored.Encode(),
		Version:         AlgorithmVersion,
	}))

	res, err := svc.QuoteParameters(context.Background(), "WETH/USDC", "req-1", ExtrinsicValues{PriceImpact: 0.01})
	require.NoError(t, err)
	assert.True(t, res.Adaptive)
	assert.InDelta(t, 0.5+0.999764, res.Pi, 1e-4)
}

func TestQuoteParametersGuardrailNeutral(t *testing.T) {
	svc, _, _ := newService(t)
	res, err := svc.QuoteParameters(context.Background(), "WETH/USDC", "req-1", ExtrinsicValues{PriceImpact: 0.5})
	require.NoError(t, err)
	assert.True(t, res.Adaptive)
	assert.Zero(t, res.Pi)
	assert.Zero(t, res.Tau)

	res, err = svc.QuoteParameters(context.Background(), "WETH/USDC", "req-1", ExtrinsicValues{PriceImpact: 0.01, ExactOutput: true})
	require.NoError(t, err)
	assert.True(t, res.Adaptive)
	assert.Zero(t, res.Pi)
}

func TestRecordQuote(t *testing.T) {
	svc, _, quotes := newService(t)
	qid := uuid.New()
	require.NoError(t, svc.RecordQuote(context.Background(), &model.QuoteMetadata{
		QuoteID:     qid,
		Pair:        "WETH/USDC",
		PriceImpact: 0.01,
		UsedUnimind: true,
	}))
	got, err := quotes.GetByQuoteID(context.Background(), qid)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "WETH/USDC", got.Pair)
}

func TestParamsVersionMismatchReadsAbsent(t *testing.T) {
	_, params, _ := newService(t)
	require.NoError(t, params.Put(context.Background(), &model.UnimindParameters{
		Pair:            "WETH/USDC",
		IntrinsicValues: DefaultIntrinsicValues().Encode(),
		Version:         AlgorithmVersion + 1,
	}))
	p, err := params.GetByPair(context.Background(), "WETH/USDC", AlgorithmVersion)
	require.NoError(t, err)
	assert.Nil(t, p)
}
