package unimind

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dutchbook/dutchbook/internal/index"
	"github.com/dutchbook/dutchbook/internal/model"
	"github.com/dutchbook/dutchbook/internal/repository"
	"github.com/dutchbook/dutchbook/pkg/metrics"
)

// ControllerConfig tunes the batch feedback loop.
type ControllerConfig struct {
	// Lookback is how far back each run reaches for completed orders.
	Lookback time.Duration
	// UpdateThreshold is the sample count below which a pair only
	// accumulates, avoiding recomputation on low-traffic pairs.
	UpdateThreshold int
	// PageLimit bounds each repository query issued by a run.
	PageLimit int
}

func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Lookback:        15 * time.Minute,
		UpdateThreshold: 25,
		PageLimit:       200,
	}
}

// Controller is the batch half of unimind: on each externally scheduled
// run it re-derives per-pair parameters from recently completed orders. It
// only ever reads orders through the repository and writes nothing but the
// per-pair parameter records.
type Controller struct {
	orders   *repository.OrderRepository
	params   *repository.UnimindParamsRepo
	quotes   repository.QuoteMetadataRepo
	strategy Strategy
	cfg      ControllerConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewController(orders *repository.OrderRepository, params *repository.UnimindParamsRepo, quotes repository.QuoteMetadataRepo, strategy Strategy, cfg ControllerConfig, logger *zap.Logger) *Controller {
	return &Controller{
		orders:   orders,
		params:   params,
		quotes:   quotes,
		strategy: strategy,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one scheduled batch. Pair failures are isolated: one pair's
// error is logged, leaves that pair's stored state untouched, and never
// aborts the rest of the batch.
func (c *Controller) Run(ctx context.Context) error {
	cutoff := c.now().Add(-c.cfg.Lookback).Unix()

	byPair := make(map[string][]*model.Order)
	for _, status := range []model.OrderStatus{model.StatusFilled, model.StatusExpired} {
		orders, err := c.fetchAll(ctx,
			map[model.Field]string{model.FieldOrderStatus: string(status)},
			&index.Range{Op: index.OpGTE, Value: cutoff}, false, 0)
		if err != nil {
			return err
		}
		for _, o := range orders {
			if o.Pair == "" {
				continue
			}
			byPair[o.Pair] = append(byPair[o.Pair], o)
		}
	}

	for pair, group := range byPair {
		if err := c.runPair(ctx, pair, group); err != nil {
			metrics.ControllerBatches.WithLabelValues("failed").Inc()
			c.logger.Error("unimind pair update failed",
				zap.String("pair", pair),
				zap.Int("orders", len(group)),
				zap.Error(err))
		}
	}
	return nil
}

func (c *Controller) runPair(ctx context.Context, pair string, group []*model.Order) error {
	prev, err := c.params.GetByPair(ctx, pair, AlgorithmVersion)
	if err != nil {
		return err
	}

	if prev == nil {
		seed := &model.UnimindParameters{
			Pair:            pair,
			IntrinsicValues: DefaultIntrinsicValues().Encode(),
			Count:           len(group),
			Version:         AlgorithmVersion,
		}
		metrics.ControllerBatches.WithLabelValues("seeded").Inc()
		c.logger.Info("seeded unimind parameters", zap.String("pair", pair), zap.Int("count", len(group)))
		return c.params.Put(ctx, seed)
	}

	total := prev.Count + len(group)
	if total < c.cfg.UpdateThreshold {
		// Cheap path: accumulate only, no recomputation.
		prev.Count = total
		metrics.ControllerBatches.WithLabelValues("accumulated").Inc()
		return c.params.Put(ctx, prev)
	}

	recent, err := c.fetchAll(ctx,
		map[model.Field]string{model.FieldPair: pair}, nil, true, total)
	if err != nil {
		return err
	}
	stats, err := c.deriveStatistics(ctx, recent)
	if err != nil {
		return err
	}

	vals, err := DecodeIntrinsicValues(prev.IntrinsicValues)
	if err != nil {
		vals = DefaultIntrinsicValues()
	}
	updated := c.strategy.Update(stats, vals)

	prev.IntrinsicValues = updated.Encode()
	prev.Count = 0
	prev.BatchNumber++
	if err := c.params.Put(ctx, prev); err != nil {
		return err
	}
	metrics.ControllerBatches.WithLabelValues("updated").Inc()
	c.logger.Info("unimind parameters updated",
		zap.String("pair", pair),
		zap.Int("samples", len(stats.Samples)),
		zap.Int("batch_number", prev.BatchNumber),
		zap.Float64("lambda1", updated.Lambda1),
		zap.Float64("lambda2", updated.Lambda2),
		zap.Float64("sigma", updated.Sigma))
	return nil
}

// fetchAll drains a filtered query. max = 0 means no bound beyond the
// filters.
func (c *Controller) fetchAll(ctx context.Context, filters map[model.Field]string, rng *index.Range, desc bool, max int) ([]*model.Order, error) {
	var out []*model.Order
	cursor := ""
	for {
		limit := c.cfg.PageLimit
		if max > 0 && max-len(out) < limit {
			limit = max - len(out)
		}
		if limit <= 0 {
			return out, nil
		}
		page, err := c.orders.GetOrders(ctx, limit, filters, rng, desc, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Orders...)
		if page.Cursor == "" {
			return out, nil
		}
		cursor = page.Cursor
	}
}

// deriveStatistics builds the strategy input from terminal orders joined to
// their quote metadata. Orders missing any required field are excluded
// entirely, never counted as zero.
func (c *Controller) deriveStatistics(ctx context.Context, orders []*model.Order) (Statistics, error) {
	var stats Statistics
	for _, o := range orders {
		if !o.OrderStatus.Terminal() || o.QuoteID == nil || o.DecayStartBlock == 0 {
			continue
		}
		meta, err := c.quotes.GetByQuoteID(ctx, *o.QuoteID)
		if err != nil {
			return Statistics{}, err
		}
		if meta == nil || !meta.UsedUnimind || meta.PriceImpact <= 0 {
			continue
		}

		smp := Sample{Filled: o.OrderStatus == model.StatusFilled, PriceImpact: meta.PriceImpact}
		if smp.Filled {
			if o.FillBlock == 0 {
				continue
			}
			w := float64(0)
			if o.FillBlock > o.DecayStartBlock {
				w = float64(o.FillBlock - o.DecayStartBlock)
			}
			smp.WaitTime = &w
		}
		stats.Samples = append(stats.Samples, smp)
	}
	return stats, nil
}
