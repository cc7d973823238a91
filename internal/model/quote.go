package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteMetadata is the ephemeral extrinsic context captured when a quote is
// served, keyed by quote id and write-once. The unimind controller joins it
// back to terminal orders when deriving batch statistics.
type QuoteMetadata struct {
	QuoteID        uuid.UUID       `json:"quoteId"`
	Pair           string          `json:"pair"`
	ReferencePrice decimal.Decimal `json:"referencePrice"`
	PriceImpact    float64         `json:"priceImpact"`
	Route          string          `json:"route"`
	BlockNumber    uint64          `json:"blockNumber"`
	UsedUnimind    bool            `json:"usedUnimind"`
}

// UnimindParameters is the per-pair record the controller maintains: the
// serialized intrinsic parameter vector plus batch bookkeeping. Mutated only
// by the controller; version mismatches are treated as absent at read time.
type UnimindParameters struct {
	Pair            string `json:"pair"`
	IntrinsicValues string `json:"intrinsicValues"`
	Count           int    `json:"count"`
	Version         int    `json:"version"`
	BatchNumber     int    `json:"batchNumber"`
}
