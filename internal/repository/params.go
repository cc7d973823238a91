package repository

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	apperrors "github.com/dutchbook/dutchbook/common/errors"
	"github.com/dutchbook/dutchbook/internal/model"
	"github.com/dutchbook/dutchbook/internal/store"
)

// UnimindParamsRepo persists the per-pair adaptive parameter records. Only
// the controller mutates them; overlapping runs are last-write-wins.
type UnimindParamsRepo struct {
	store  *store.Store
	logger *zap.Logger
}

func NewUnimindParamsRepo(st *store.Store, logger *zap.Logger) *UnimindParamsRepo {
	return &UnimindParamsRepo{store: st, logger: logger}
}

func paramsKey(pair string) string { return "unimind/" + pair }

// GetByPair returns the stored parameters for pair, or nil when absent. A
// record carrying a different algorithm version counts as absent, which
// forces the controller to reseed with defaults instead of reusing stale
// intrinsic values.
func (r *UnimindParamsRepo) GetByPair(ctx context.Context, pair string, expectedVersion int) (*model.UnimindParameters, error) {
	raw, err := r.store.GetKV(paramsKey(pair))
	if err == store.ErrAbsent {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p model.UnimindParameters
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apperrors.WrapInternal(err, "decoding unimind parameters")
	}
	if p.Version != expectedVersion {
		r.logger.Info("unimind parameter version mismatch, treating as absent",
			zap.String("pair", pair),
			zap.Int("stored_version", p.Version),
			zap.Int("expected_version", expectedVersion))
		return nil, nil
	}
	return &p, nil
}

// Put writes the record for its pair.
func (r *UnimindParamsRepo) Put(ctx context.Context, p *model.UnimindParameters) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return apperrors.WrapInternal(err, "marshaling unimind parameters")
	}
	return r.store.PutKV(paramsKey(p.Pair), raw)
}
