package model

import "strings"

// Delimiter joins constituent field values inside a composite index key.
// Field renderings never contain it: addresses are hex, chain ids decimal,
// statuses upper-case words, pairs use "/".
const Delimiter = "_"

// IndexDef names one supported secondary index: a fixed ordered field list
// whose joined values form the partition key. createdAt is the sort key of
// every index.
type IndexDef struct {
	Name   string
	Fields []Field
}

func newIndexDef(fields ...Field) IndexDef {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = string(f)
	}
	return IndexDef{Name: strings.Join(parts, Delimiter), Fields: fields}
}

// AllIndexes is the fixed, finite table of supported indexes. The write path
// maintains an entry in every one of them for every order; the router only
// ever resolves filter sets against this table (or a per-order-type subset).
var AllIndexes = []IndexDef{
	newIndexDef(FieldOfferer),
	newIndexDef(FieldFiller),
	newIndexDef(FieldChainID),
	newIndexDef(FieldOrderStatus),
	newIndexDef(FieldPair),
	newIndexDef(FieldOfferer, FieldOrderStatus),
	newIndexDef(FieldFiller, FieldOrderStatus),
	newIndexDef(FieldFiller, FieldOfferer),
	newIndexDef(FieldChainID, FieldOrderStatus),
	newIndexDef(FieldChainID, FieldFiller),
	newIndexDef(FieldChainID, FieldOrderStatus, FieldFiller),
	newIndexDef(FieldFiller, FieldOfferer, FieldOrderStatus),
}

// HasField reports whether the index key includes f.
func (d IndexDef) HasField(f Field) bool {
	for _, g := range d.Fields {
		if g == f {
			return true
		}
	}
	return false
}

// CompositeKey derives the partition key value of this index for o.
func (d IndexDef) CompositeKey(o *Order) string {
	parts := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		parts[i] = o.FieldValue(f)
	}
	return strings.Join(parts, Delimiter)
}

// DeriveIndexFields computes every composite index key for o. The result is
// a pure function of the current base fields.
func DeriveIndexFields(o *Order) map[string]string {
	out := make(map[string]string, len(AllIndexes))
	for _, def := range AllIndexes {
		out[def.Name] = def.CompositeKey(o)
	}
	return out
}

// DeriveStatusUpdateFields recomputes only the keys that include
// orderStatus, as they would be after setting o's status to newStatus. The
// input order is not mutated.
func DeriveStatusUpdateFields(o *Order, newStatus OrderStatus) map[string]string {
	updated := *o
	updated.OrderStatus = newStatus
	out := make(map[string]string)
	for _, def := range AllIndexes {
		if def.HasField(FieldOrderStatus) {
			out[def.Name] = def.CompositeKey(&updated)
		}
	}
	return out
}
