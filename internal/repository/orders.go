// Package repository is the only component that talks to the underlying
// store. It owns atomic order writes, the nonce dual-write, router-driven
// paginated queries, and the unimind parameter and quote metadata records.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	apperrors "github.com/dutchbook/dutchbook/common/errors"
	"github.com/dutchbook/dutchbook/internal/events"
	"github.com/dutchbook/dutchbook/internal/index"
	"github.com/dutchbook/dutchbook/internal/model"
	"github.com/dutchbook/dutchbook/internal/store"
	"github.com/dutchbook/dutchbook/pkg/metrics"
)

// OrderRepository persists orders and their derived index entries.
type OrderRepository struct {
	store     *store.Store
	router    *index.Router
	publisher events.Publisher
	logger    *zap.Logger
}

// NewOrderRepository wires a repository over the store. The router decides
// which filter sets are queryable; the publisher receives the full new image
// after every successful mutation.
func NewOrderRepository(st *store.Store, router *index.Router, publisher events.Publisher, logger *zap.Logger) *OrderRepository {
	return &OrderRepository{store: st, router: router, publisher: publisher, logger: logger}
}

// FillData carries the completion fields persisted on a FILLED transition.
type FillData struct {
	TxHash         common.Hash
	FillBlock      uint64
	SettledAmounts []model.SettledAmount
}

// OrdersPage is one page of query results. Cursor is empty when the index
// is exhausted.
type OrdersPage struct {
	Orders []*model.Order
	Cursor string
}

func hashKey(h common.Hash) string {
	return strings.ToLower(h.Hex())
}

func nonceKey(offerer common.Address, chainID uint64) string {
	return fmt.Sprintf("nonce/%s/%d", model.NormalizeAddress(offerer.Hex()), chainID)
}

func indexEntries(o *model.Order) []store.IndexEntry {
	fields := model.DeriveIndexFields(o)
	out := make([]store.IndexEntry, 0, len(fields))
	for name, composite := range fields {
		out = append(out, store.IndexEntry{
			Index:        name,
			PartitionKey: composite,
			SortKey:      o.CreatedAt,
			PrimaryKey:   hashKey(o.OrderHash),
		})
	}
	return out
}

func statusIndexEntries(o *model.Order, status model.OrderStatus) []store.IndexEntry {
	fields := model.DeriveStatusUpdateFields(o, status)
	out := make([]store.IndexEntry, 0, len(fields))
	for name, composite := range fields {
		out = append(out, store.IndexEntry{
			Index:        name,
			PartitionKey: composite,
			SortKey:      o.CreatedAt,
			PrimaryKey:   hashKey(o.OrderHash),
		})
	}
	return out
}

// PutOrderAndUpdateNonce inserts or replaces the order and updates the
// (offerer, chainId) nonce record in a single atomic transaction. Stale
// index entries of a replaced order are dropped in the same transaction.
// Store contention surfaces as a conflict error, distinct from internal.
func (r *OrderRepository) PutOrderAndUpdateNonce(ctx context.Context, order *model.Order) error {
	pk := hashKey(order.OrderHash)
	doc, err := json.Marshal(order)
	if err != nil {
		return apperrors.WrapInternal(err, "marshaling order")
	}

	err = r.store.TransactUpdate(pk, func(old []byte) (*store.Mutation, error) {
		var del []store.IndexEntry
		if old != nil {
			var prev model.Order
			if err := json.Unmarshal(old, &prev); err != nil {
				return nil, apperrors.WrapInternal(err, "decoding stored order")
			}
			del = indexEntries(&prev)
		}
		return &store.Mutation{
			Doc: doc,
			Put: indexEntries(order),
			Del: del,
			Extra: map[string][]byte{
				nonceKey(order.Offerer, order.ChainID): []byte(order.Nonce),
			},
		}, nil
	})
	if err != nil {
		return err
	}

	metrics.OrderWrites.WithLabelValues("put").Inc()
	r.logger.Debug("order persisted",
		zap.String("order_hash", pk),
		zap.String("offerer", order.FieldValue(model.FieldOfferer)),
		zap.Uint64("chain_id", order.ChainID))
	r.publish(ctx, order)
	return nil
}

// GetByHash returns the order, or a not-found error when absent.
func (r *OrderRepository) GetByHash(ctx context.Context, hash common.Hash) (*model.Order, error) {
	doc, err := r.store.Get(hashKey(hash))
	if err == store.ErrAbsent {
		return nil, apperrors.NotFoundf("order %s not found", hashKey(hash))
	}
	if err != nil {
		return nil, err
	}
	var order model.Order
	if err := json.Unmarshal(doc, &order); err != nil {
		return nil, apperrors.WrapInternal(err, "decoding stored order")
	}
	return &order, nil
}

// UpdateOrderStatus reads the current entity, recomputes the
// status-dependent index fields, and writes everything atomically. fill is
// only consulted on a FILLED transition.
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, hash common.Hash, newStatus model.OrderStatus, fill *FillData) error {
	pk := hashKey(hash)
	var updated model.Order

	err := r.store.TransactUpdate(pk, func(old []byte) (*store.Mutation, error) {
		if old == nil {
			return nil, apperrors.NotFoundf("order %s not found", pk)
		}
		var cur model.Order
		if err := json.Unmarshal(old, &cur); err != nil {
			return nil, apperrors.WrapInternal(err, "decoding stored order")
		}

		del := statusIndexEntries(&cur, cur.OrderStatus)
		cur.OrderStatus = newStatus
		if newStatus == model.StatusFilled && fill != nil {
			tx := fill.TxHash
			cur.TxHash = &tx
			cur.FillBlock = fill.FillBlock
			cur.SettledAmounts = fill.SettledAmounts
		}
		doc, err := json.Marshal(&cur)
		if err != nil {
			return nil, apperrors.WrapInternal(err, "marshaling order")
		}
		updated = cur
		return &store.Mutation{
			Doc: doc,
			Put: statusIndexEntries(&cur, newStatus),
			Del: del,
		}, nil
	})
	if err != nil {
		return err
	}

	metrics.OrderWrites.WithLabelValues("status_update").Inc()
	metrics.StatusTransitions.WithLabelValues(string(newStatus)).Inc()
	r.logger.Info("order status updated",
		zap.String("order_hash", pk),
		zap.String("status", string(newStatus)))
	r.publish(ctx, &updated)
	return nil
}

// GetOrders resolves filters through the router and pages through the
// selected index until limit is satisfied or the index is exhausted. The
// returned cursor is absent on exhaustion.
func (r *OrderRepository) GetOrders(ctx context.Context, limit int, filters map[model.Field]string, rng *index.Range, desc bool, cursor string) (*OrdersPage, error) {
	if limit <= 0 {
		return nil, apperrors.Validationf("limit must be positive, got %d", limit)
	}
	sel, err := r.router.Select(filters)
	if err != nil {
		metrics.QueryRejections.Inc()
		return nil, err
	}
	minSort, maxSort, err := sortBounds(rng)
	if err != nil {
		return nil, err
	}

	var startAfter *store.IndexEntry
	if cursor != "" {
		c, err := index.DecodeCursor(cursor, sel.Index.Name)
		if err != nil {
			return nil, err
		}
		startAfter = &store.IndexEntry{
			Index:        sel.Index.Name,
			PartitionKey: sel.PartitionKey,
			SortKey:      c.SortKey,
			PrimaryKey:   c.PrimaryKey,
		}
	}

	page := &OrdersPage{}
	var last store.IndexEntry
	for {
		want := limit - len(page.Orders)
		entries, err := r.store.QueryIndex(store.IndexQuery{
			Index:        sel.Index.Name,
			PartitionKey: sel.PartitionKey,
			MinSort:      minSort,
			MaxSort:      maxSort,
			Desc:         desc,
			Limit:        want,
			StartAfter:   startAfter,
		})
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			order, err := r.GetByHash(ctx, common.HexToHash(e.PrimaryKey))
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					continue // index entry raced a delete
				}
				return nil, err
			}
			page.Orders = append(page.Orders, order)
			last = e
		}
		if len(entries) < want {
			// short page: the index is exhausted within the bounds
			return page, nil
		}
		e := entries[len(entries)-1]
		startAfter = &e
		if len(page.Orders) >= limit {
			break
		}
	}

	page.Cursor = index.Cursor{
		Index:      sel.Index.Name,
		PrimaryKey: last.PrimaryKey,
		SortKey:    last.SortKey,
	}.Encode()
	return page, nil
}

// DeleteOrders removes the given orders and their index entries. Each hash
// is atomic on its own; the batch is best-effort and continues past
// individual failures.
func (r *OrderRepository) DeleteOrders(ctx context.Context, hashes []common.Hash) error {
	var lastErr error
	for _, h := range hashes {
		order, err := r.GetByHash(ctx, h)
		if errors.Is(err, apperrors.ErrNotFound) {
			continue
		}
		if err != nil {
			lastErr = err
			continue
		}
		if err := r.store.Delete(hashKey(h), indexEntries(order)); err != nil {
			r.logger.Error("failed to delete order", zap.Error(err), zap.String("order_hash", hashKey(h)))
			lastErr = err
			continue
		}
		metrics.OrderWrites.WithLabelValues("delete").Inc()
	}
	return lastErr
}

// CountByOffererAndStatus counts orders through the router-selected index
// without materializing documents.
func (r *OrderRepository) CountByOffererAndStatus(ctx context.Context, offerer common.Address, status model.OrderStatus) (int, error) {
	sel, err := r.router.Select(map[model.Field]string{
		model.FieldOfferer:     model.NormalizeAddress(offerer.Hex()),
		model.FieldOrderStatus: string(status),
	})
	if err != nil {
		metrics.QueryRejections.Inc()
		return 0, err
	}
	return r.store.CountIndex(sel.Index.Name, sel.PartitionKey, 0, math.MaxInt64)
}

func (r *OrderRepository) publish(ctx context.Context, order *model.Order) {
	if err := r.publisher.OrderUpdated(ctx, order); err != nil {
		// The write already committed; fan-out is at-least-once and the
		// failure is recorded, not propagated.
		r.logger.Warn("order event publish failed", zap.Error(err))
	}
}

func sortBounds(rng *index.Range) (int64, int64, error) {
	minSort, maxSort := int64(0), int64(math.MaxInt64)
	if rng == nil {
		return minSort, maxSort, nil
	}
	switch rng.Op {
	case index.OpLT:
		maxSort = rng.Value - 1
	case index.OpLTE:
		maxSort = rng.Value
	case index.OpGT:
		minSort = rng.Value + 1
	case index.OpGTE:
		minSort = rng.Value
	case index.OpBetween:
		minSort, maxSort = rng.Value, rng.Upper
	default:
		return 0, 0, apperrors.Validationf("unsupported range operator %q", rng.Op)
	}
	return minSort, maxSort, nil
}
