// Package index maps equality-filter predicate sets to exactly one supported
// secondary index. Lookup is by exact set equality against a declarative
// table; unsupported combinations are rejected, never downgraded to a scan.
package index

import (
	"sort"
	"strings"

	apperrors "github.com/dutchbook/dutchbook/common/errors"
	"github.com/dutchbook/dutchbook/internal/model"
)

// RangeOp is a comparison operator on the createdAt sort key.
type RangeOp string

const (
	OpLT      RangeOp = "lt"
	OpLTE     RangeOp = "lte"
	OpGT      RangeOp = "gt"
	OpGTE     RangeOp = "gte"
	OpBetween RangeOp = "between"
)

// Range is the single optional range predicate on createdAt. Upper is only
// meaningful for between (inclusive on both ends).
type Range struct {
	Op    RangeOp
	Value int64
	Upper int64
}

// Selection is the resolved target of a predicate set: one named index and
// the partition key built from the filter values in the index's field order.
type Selection struct {
	Index        model.IndexDef
	PartitionKey string
}

// Router resolves predicate sets for one entity type. It is a configuration
// value: instantiate once per order type with that type's predicate table.
type Router struct {
	entity    string
	byKey     map[string]model.IndexDef
	supported []string
}

// NewRouter builds a router over the given index table. The entity label
// only appears in rejection messages.
func NewRouter(entity string, table []model.IndexDef) *Router {
	r := &Router{entity: entity, byKey: make(map[string]model.IndexDef, len(table))}
	for _, def := range table {
		key := setKey(def.Fields)
		r.byKey[key] = def
		r.supported = append(r.supported, "{"+key+"}")
	}
	sort.Strings(r.supported)
	return r
}

// Select resolves filters to the one matching index, or rejects. Matching is
// exact set equality: same size, same members. Sort and pagination inputs are
// not part of the set and must not appear in filters.
func (r *Router) Select(filters map[model.Field]string) (Selection, error) {
	if len(filters) == 0 {
		return Selection{}, apperrors.Validationf(
			"%s query requires at least one filter; supported filter sets: %s",
			r.entity, strings.Join(r.supported, ", "))
	}
	fields := make([]model.Field, 0, len(filters))
	for f := range filters {
		fields = append(fields, f)
	}
	def, ok := r.byKey[setKey(fields)]
	if !ok {
		return Selection{}, apperrors.Validationf(
			"unsupported %s filter combination {%s}; supported filter sets: %s",
			r.entity, setKey(fields), strings.Join(r.supported, ", "))
	}
	parts := make([]string, len(def.Fields))
	for i, f := range def.Fields {
		parts[i] = filters[f]
	}
	return Selection{Index: def, PartitionKey: strings.Join(parts, model.Delimiter)}, nil
}

// setKey canonicalizes a field set: sorted, deduplicated, comma joined.
func setKey(fields []model.Field) string {
	names := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !seen[string(f)] {
			seen[string(f)] = true
			names = append(names, string(f))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Tables per order type. Dutch and limit orders support the full index
// table; relay orders are not pair-priced, so the pair-bearing indexes are
// not queryable for them.
var (
	DutchTable = model.AllIndexes
	LimitTable = model.AllIndexes
	RelayTable = withoutField(model.AllIndexes, model.FieldPair)
)

func withoutField(table []model.IndexDef, f model.Field) []model.IndexDef {
	out := make([]model.IndexDef, 0, len(table))
	for _, def := range table {
		if !def.HasField(f) {
			out = append(out, def)
		}
	}
	return out
}
